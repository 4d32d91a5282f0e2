package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthProvider 账号来源
type AuthProvider string

const (
	ProviderCustom AuthProvider = "custom"
	ProviderGoogle AuthProvider = "google"
	ProviderGithub AuthProvider = "github"
)

// User 用户记录。StorageUsed 由配额账本维护（见 internal/quota）
type User struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Provider     AuthProvider `json:"provider"`
	IsVerified   bool         `json:"is_verified"`
	TokenVersion int          `json:"token_version"`
	StorageUsed  int64        `json:"storage_used"`
	LoopDelay    int          `json:"loop_delay"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// UserCacheKey 身份缓存键约定，沿用 "users:" 前缀
func UserCacheKey(id uuid.UUID) string {
	return "users:" + id.String()
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

type UpdateLoopDelayRequest struct {
	LoopDelay *int `json:"loopDelay" binding:"required"`
}
