// Package files 实现文件目录及其生命周期状态机。
//
// 状态机 active/archived/trashed（行被删除即为终态 purged）：
//   - active -> archived（记 archived_at）
//   - archived -> active（清 archived_at）
//   - active|archived -> trashed（记 trashed_at）
//   - trashed -> archived（restore，永不直接回到 active）
//   - trashed -> 删除行（purge）
//
// 单个操作对前置状态严格校验并返回分类错误；批量操作把前置条件写进
// WHERE 子句，不满足的 id 被静默跳过，只报告实际生效的行数。
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/models"
)

const fileColumns = `id, user_id, file_name, mime_type, file_type, file_url, audio_url, file_size, status, archived_at, trashed_at, created_at, updated_at`

// TrashRetention 回收站保留期，超过后在下一次读取回收站时被自动清除
const TrashRetention = 30 * 24 * time.Hour

// Store 文件目录仓储
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create 写入目录记录，id 与时间戳由仓储填充
func (s *Store) Create(ctx context.Context, f *models.UserFile) (*models.UserFile, error) {
	f.ID = uuid.New()
	if f.Status == "" {
		f.Status = models.StatusActive
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users_files (id, user_id, file_name, mime_type, file_type, file_url, audio_url, file_size, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.UserID, f.FileName, f.MimeType, f.FileType, f.FileURL, f.AudioURL,
		f.FileSize, f.Status, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FindByID 按 id 查询
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.UserFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM users_files WHERE id = $1`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.New("file %s not found", id)
	}
	return f, err
}

// FindManyByIDs 批量解析 id，不存在的 id 直接缺席于结果
func (s *Store) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]models.UserFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + fileColumns + ` FROM users_files WHERE id IN (` + placeholders(1, len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFiles(rows)
}

// orderColumn 列表排序使用与状态相关的时间戳
func orderColumn(status models.FileStatus) string {
	switch status {
	case models.StatusArchived:
		return "archived_at"
	case models.StatusTrashed:
		return "trashed_at"
	default:
		return "created_at"
	}
}

// ListByUser 按状态全量列出，按状态相关时间戳倒序
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, status models.FileStatus) ([]models.UserFile, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM users_files WHERE user_id = $1 AND status = $2 ORDER BY %s DESC`,
		fileColumns, orderColumn(status),
	)
	rows, err := s.db.QueryContext(ctx, query, userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFiles(rows)
}

// ListPaginated 偏移分页。total 由同一条查询里的窗口计数给出，避免第二次往返
func (s *Store) ListPaginated(ctx context.Context, userID uuid.UUID, status models.FileStatus, page, limit int) (*models.FilePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) OVER() AS total_count
		 FROM users_files
		 WHERE user_id = $1 AND status = $2
		 ORDER BY %s DESC
		 LIMIT $3 OFFSET $4`,
		fileColumns, orderColumn(status),
	)
	rows, err := s.db.QueryContext(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []models.UserFile
		total int
	)
	for rows.Next() {
		var f models.UserFile
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileType, &f.FileURL, &f.AudioURL,
			&f.FileSize, &f.Status, &f.ArchivedAt, &f.TrashedAt, &f.CreatedAt, &f.UpdatedAt,
			&total,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}

	return &models.FilePage{
		Files: out,
		Pagination: models.Pagination{
			Total:       total,
			CurrentPage: page,
			Limit:       limit,
			Pages:       pages,
		},
	}, nil
}

var frameNumberRe = regexp.MustCompile(`^frame_(\d+)`)

// LatestFrameNumber 返回该用户生成文件名中最大的序号，没有则为 0。
// 序号在 Go 里解析，保持 SQL 对 PostgreSQL/SQLite 双方言兼容
func (s *Store) LatestFrameNumber(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name FROM users_files WHERE user_id = $1 AND file_name LIKE 'frame_%'`, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	latest := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, err
		}
		if m := frameNumberRe.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > latest {
				latest = n
			}
		}
	}
	return latest, rows.Err()
}

// Archive active -> archived
func (s *Store) Archive(ctx context.Context, id uuid.UUID) error {
	f, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch f.Status {
	case models.StatusArchived:
		return apperrors.ErrValidation.New("file is already archived")
	case models.StatusTrashed:
		return apperrors.ErrValidation.New("file is in trash")
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE users_files
		SET status = $1, archived_at = $2, trashed_at = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.StatusArchived, now, now, id, models.StatusActive)
	return err
}

// Unarchive archived -> active
func (s *Store) Unarchive(ctx context.Context, id uuid.UUID) error {
	f, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if f.Status != models.StatusArchived {
		return apperrors.ErrValidation.New("file is not archived")
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE users_files
		SET status = $1, archived_at = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.StatusActive, now, id, models.StatusArchived)
	return err
}

// Trash active|archived -> trashed
func (s *Store) Trash(ctx context.Context, id uuid.UUID) error {
	f, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if f.Status == models.StatusTrashed {
		return apperrors.ErrValidation.New("file is already in trash")
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE users_files
		SET status = $1, trashed_at = $2, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)`,
		models.StatusTrashed, now, now, id, models.StatusActive, models.StatusArchived)
	return err
}

// Restore trashed -> archived。恢复永不直接回到 active；
// archived_at 记为恢复时刻，保证归档列表的排序仍然有意义
func (s *Store) Restore(ctx context.Context, id uuid.UUID) error {
	f, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if f.Status != models.StatusTrashed {
		return apperrors.ErrValidation.New("file is not in trash")
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE users_files
		SET status = $1, trashed_at = NULL, archived_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.StatusArchived, now, now, id, models.StatusTrashed)
	return err
}

// ArchiveMany 批量归档该用户的文件，仅作用于 active 的 id，返回生效行数。
// 不满足前置条件或归属他人的 id 静默跳过，不报错
func (s *Store) ArchiveMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	query := `
		UPDATE users_files
		SET status = $1, archived_at = $2, trashed_at = NULL, updated_at = $3
		WHERE user_id = $4 AND status = $5 AND id IN (` + placeholders(6, len(ids)) + `)`
	args := append([]interface{}{models.StatusArchived, now, now, userID, models.StatusActive}, idArgs(ids)...)
	return s.execCount(ctx, query, args...)
}

// UnarchiveMany 批量取消归档，仅作用于 archived 的 id
func (s *Store) UnarchiveMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	query := `
		UPDATE users_files
		SET status = $1, archived_at = NULL, updated_at = $2
		WHERE user_id = $3 AND status = $4 AND id IN (` + placeholders(5, len(ids)) + `)`
	args := append([]interface{}{models.StatusActive, now, userID, models.StatusArchived}, idArgs(ids)...)
	return s.execCount(ctx, query, args...)
}

// TrashMany 批量移入回收站，作用于 active 或 archived 的 id
func (s *Store) TrashMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	query := `
		UPDATE users_files
		SET status = $1, trashed_at = $2, updated_at = $3
		WHERE user_id = $4 AND status IN ($5, $6) AND id IN (` + placeholders(7, len(ids)) + `)`
	args := append([]interface{}{models.StatusTrashed, now, now, userID, models.StatusActive, models.StatusArchived}, idArgs(ids)...)
	return s.execCount(ctx, query, args...)
}

// RestoreMany 批量恢复，仅作用于 trashed 的 id，恢复到 archived
func (s *Store) RestoreMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	query := `
		UPDATE users_files
		SET status = $1, trashed_at = NULL, archived_at = $2, updated_at = $3
		WHERE user_id = $4 AND status = $5 AND id IN (` + placeholders(6, len(ids)) + `)`
	args := append([]interface{}{models.StatusArchived, now, now, userID, models.StatusTrashed}, idArgs(ids)...)
	return s.execCount(ctx, query, args...)
}

// DeleteByIDs 删除目录行（purge 的目录侧），返回删除行数。
// 对象删除与账本扣减由编排层负责
func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM users_files WHERE id IN (` + placeholders(1, len(ids)) + `)`
	return s.execCount(ctx, query, idArgs(ids)...)
}

// ListTrashedIDs 该用户回收站内全部 id
func (s *Store) ListTrashedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.collectIDs(ctx,
		`SELECT id FROM users_files WHERE user_id = $1 AND status = $2`,
		userID, models.StatusTrashed)
}

// ExpiredTrashedIDs 回收站中早于 cutoff 的 id，供惰性清理
func (s *Store) ExpiredTrashedIDs(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]uuid.UUID, error) {
	return s.collectIDs(ctx,
		`SELECT id FROM users_files WHERE user_id = $1 AND status = $2 AND trashed_at < $3`,
		userID, models.StatusTrashed, cutoff)
}

func (s *Store) collectIDs(ctx context.Context, query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) execCount(ctx context.Context, query string, args ...interface{}) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanFile(row *sql.Row) (*models.UserFile, error) {
	var f models.UserFile
	err := row.Scan(
		&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileType, &f.FileURL, &f.AudioURL,
		&f.FileSize, &f.Status, &f.ArchivedAt, &f.TrashedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collectFiles(rows *sql.Rows) ([]models.UserFile, error) {
	var out []models.UserFile
	for rows.Next() {
		var f models.UserFile
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileType, &f.FileURL, &f.AudioURL,
			&f.FileSize, &f.Status, &f.ArchivedAt, &f.TrashedAt, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// placeholders 生成 $start..$start+n-1 的占位符串
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func idArgs(ids []uuid.UUID) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
