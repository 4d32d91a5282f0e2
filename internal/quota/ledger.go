// Package quota 维护每用户已用存储字节的账本，并在上传前对照全局上限做
// 预检。Adjust 必须是单条原子 SQL 更新：同一用户的并发上传/删除不允许丢失
// 任何一次增减。
package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/models"
)

// Direction 调整方向
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// Availability 配额预检结果
type Availability struct {
	Allowed        bool  `json:"allowed"`
	AvailableBytes int64 `json:"availableBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	TotalBytes     int64 `json:"totalBytes"`
}

// Invalidator 身份缓存失效接口，由 internal/cache 实现
type Invalidator interface {
	Del(key string)
}

// Ledger 配额账本
type Ledger struct {
	db     *sql.DB
	limit  int64
	cache  Invalidator
	logger *logrus.Logger
}

// NewLedger 创建账本。limit 为全局用户存储上限（字节）
func NewLedger(db *sql.DB, limit int64, cache Invalidator, logger *logrus.Logger) *Ledger {
	return &Ledger{db: db, limit: limit, cache: cache, logger: logger}
}

// Limit 全局上限
func (l *Ledger) Limit() int64 {
	return l.limit
}

// CheckAvailable 上传前检查剩余配额。只读，不做任何修改
func (l *Ledger) CheckAvailable(ctx context.Context, userID uuid.UUID, requestedBytes int64) (*Availability, error) {
	if requestedBytes < 0 {
		return nil, apperrors.ErrValidation.New("requested bytes must be non-negative")
	}

	var used int64
	err := l.db.QueryRowContext(ctx, `SELECT storage_used FROM users WHERE id = $1`, userID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.New("user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}

	available := l.limit - used
	if available < 0 {
		available = 0
	}

	return &Availability{
		Allowed:        available >= requestedBytes,
		AvailableBytes: available,
		UsedBytes:      used,
		TotalBytes:     l.limit,
	}, nil
}

// Adjust 以一条原子 UPDATE 调整已用字节。减少时在 SQL 内钳制到 0，永不下溢。
// 成功后让该用户的身份缓存条目失效（缓存的用户快照内含 storage_used）
func (l *Ledger) Adjust(ctx context.Context, userID uuid.UUID, deltaBytes int64, direction Direction) (int64, error) {
	if deltaBytes < 0 {
		return 0, apperrors.ErrValidation.New("delta bytes must be non-negative")
	}
	if direction != Increase && direction != Decrease {
		return 0, apperrors.ErrValidation.New("unknown direction %q", direction)
	}

	var (
		newUsed int64
		err     error
	)
	now := time.Now()

	if direction == Decrease {
		err = l.db.QueryRowContext(ctx, `
			UPDATE users
			SET storage_used = CASE WHEN storage_used - $1 < 0 THEN 0 ELSE storage_used - $2 END,
			    updated_at = $3
			WHERE id = $4
			RETURNING storage_used`,
			deltaBytes, deltaBytes, now, userID,
		).Scan(&newUsed)
	} else {
		err = l.db.QueryRowContext(ctx, `
			UPDATE users
			SET storage_used = storage_used + $1, updated_at = $2
			WHERE id = $3
			RETURNING storage_used`,
			deltaBytes, now, userID,
		).Scan(&newUsed)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.ErrNotFound.New("user %s not found", userID)
	}
	if err != nil {
		return 0, err
	}

	if l.cache != nil {
		l.cache.Del(models.UserCacheKey(userID))
	}

	l.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"delta":     deltaBytes,
		"direction": direction,
		"used":      newUsed,
	}).Debug("storage usage adjusted")

	return newUsed, nil
}
