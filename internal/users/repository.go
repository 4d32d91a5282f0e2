// Package users 提供用户表的行级仓储。
package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/models"
)

const userColumns = `id, name, email, password, provider, is_verified, token_version, storage_used, loop_delay, created_at, updated_at`

// Repository 用户仓储
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create 插入用户并返回完整记录
func (r *Repository) Create(ctx context.Context, name, email, passwordHash string, provider models.AuthProvider) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Provider:     provider,
		TokenVersion: 0,
		StorageUsed:  0,
		LoopDelay:    2,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, provider, is_verified, token_version, storage_used, loop_delay, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Provider,
		user.IsVerified, user.TokenVersion, user.StorageUsed, user.LoopDelay,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID 按 id 查询
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail 按邮箱查询
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UpdateLoopDelay 更新客户端轮播间隔（透传字段，存储引擎不解释其含义）
func (r *Repository) UpdateLoopDelay(ctx context.Context, id uuid.UUID, loopDelay int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET loop_delay = $1, updated_at = $2 WHERE id = $3`,
		loopDelay, time.Now(), id)
	if err != nil {
		return err
	}
	return r.requireAffected(res, id)
}

// IncrementTokenVersion 令牌版本 +1，使所有已签发的访问令牌失效
func (r *Repository) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = $1
		WHERE id = $2
		RETURNING token_version`,
		time.Now(), id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.ErrNotFound.New("user %s not found", id)
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *Repository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Provider,
		&u.IsVerified, &u.TokenVersion, &u.StorageUsed, &u.LoopDelay,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.New("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) requireAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound.New("user %s not found", id)
	}
	return nil
}
