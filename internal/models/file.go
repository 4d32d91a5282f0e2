package models

import (
	"time"

	"github.com/google/uuid"
)

// FileStatus 文件生命周期状态
type FileStatus string

const (
	StatusActive   FileStatus = "active"
	StatusArchived FileStatus = "archived"
	StatusTrashed  FileStatus = "trashed"
)

// AvailableFileStatus 所有合法状态，用于请求校验
var AvailableFileStatus = []FileStatus{StatusActive, StatusArchived, StatusTrashed}

// FileType 媒体类别
type FileType string

const (
	TypeImage FileType = "image"
	TypeVideo FileType = "video"
)

// UserFile 已处理资源的目录记录
type UserFile struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	FileName   string     `json:"file_name"`
	MimeType   string     `json:"mime_type"`
	FileType   FileType   `json:"file_type"`
	FileURL    string     `json:"file_url"`
	AudioURL   string     `json:"audio_url,omitempty"`
	FileSize   int64      `json:"file_size"`
	Status     FileStatus `json:"status"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	TrashedAt  *time.Time `json:"trashed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// OriginalFile 双上传流程保留的未处理原件，没有状态机，删除即终结
type OriginalFile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	FileURL   string    `json:"file_url"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pagination 分页元数据，total 来自与数据页同一条查询的窗口计数
type Pagination struct {
	Total       int `json:"total"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
	Pages       int `json:"pages"`
}

type FilePage struct {
	Files      []UserFile `json:"files"`
	Pagination Pagination `json:"pagination"`
}

type OriginalFilePage struct {
	Files      []OriginalFile `json:"files"`
	Pagination Pagination     `json:"pagination"`
}

type BulkIDsRequest struct {
	FileIDs []uuid.UUID `json:"fileIds" binding:"required,min=1"`
}

// BulkDeleteResult 批量删除结果：逐项尽力而为，未匹配到目录行的 id 记入 FailedIDs
type BulkDeleteResult struct {
	DeletedCount   int         `json:"deletedCount"`
	FailedIDs      []uuid.UUID `json:"failedIds"`
	TotalFilesSize int64       `json:"totalFilesSize"`
}
