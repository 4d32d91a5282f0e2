package files

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/models"
)

const originalColumns = `id, user_id, file_name, mime_type, file_url, file_size, created_at, updated_at`

// OriginalStore 原件目录仓储。原件没有状态机：存在直到被显式删除
type OriginalStore struct {
	db *sql.DB
}

func NewOriginalStore(db *sql.DB) *OriginalStore {
	return &OriginalStore{db: db}
}

// Create 写入原件记录
func (s *OriginalStore) Create(ctx context.Context, f *models.OriginalFile) (*models.OriginalFile, error) {
	f.ID = uuid.New()
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO original_files (id, user_id, file_name, mime_type, file_url, file_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.UserID, f.FileName, f.MimeType, f.FileURL, f.FileSize, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FindByID 按 id 查询
func (s *OriginalStore) FindByID(ctx context.Context, id uuid.UUID) (*models.OriginalFile, error) {
	var f models.OriginalFile
	err := s.db.QueryRowContext(ctx,
		`SELECT `+originalColumns+` FROM original_files WHERE id = $1`, id,
	).Scan(&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileURL, &f.FileSize, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.New("original file %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindManyByIDs 批量解析 id，不存在的 id 缺席于结果
func (s *OriginalStore) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]models.OriginalFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + originalColumns + ` FROM original_files WHERE id IN (` + placeholders(1, len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOriginals(rows)
}

// ListPaginated 偏移分页，可按 MIME 类型前缀过滤，total 来自窗口计数
func (s *OriginalStore) ListPaginated(ctx context.Context, userID uuid.UUID, page, limit int, mimePrefix string) (*models.OriginalFilePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	query := `SELECT ` + originalColumns + `, COUNT(*) OVER() AS total_count
		FROM original_files
		WHERE user_id = $1`
	args := []interface{}{userID}

	if mimePrefix != "" {
		query += ` AND mime_type LIKE $2`
		args = append(args, mimePrefix+"%")
		query += ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []models.OriginalFile
		total int
	)
	for rows.Next() {
		var f models.OriginalFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileURL, &f.FileSize, &f.CreatedAt, &f.UpdatedAt, &total); err != nil {
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

	return &models.OriginalFilePage{
		Files: out,
		Pagination: models.Pagination{
			Total:       total,
			CurrentPage: page,
			Limit:       limit,
			Pages:       pages,
		},
	}, nil
}

// DeleteByIDs 删除原件目录行，对象删除与账本扣减由编排层负责
func (s *OriginalStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM original_files WHERE id IN (` + placeholders(1, len(ids)) + `)`
	res, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func collectOriginals(rows *sql.Rows) ([]models.OriginalFile, error) {
	var out []models.OriginalFile
	for rows.Next() {
		var f models.OriginalFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.FileURL, &f.FileSize, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
