package main

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/auth"
	"github.com/framevault/internal/config"
	"github.com/framevault/internal/files"
	"github.com/framevault/internal/jobs"
	"github.com/framevault/internal/middleware"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/storage"
	"github.com/framevault/internal/transcode"
)

// ========================================
// 文件相关 Handlers
// ========================================

// handleUpload 上传入口。图片同步走编排器；
// 视频先落临时文件再排进转码队列，立即返回任务 id
func handleUpload(storageService *storage.Service, queue *jobs.Queue, cfg *config.Config, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeError(c, apperrors.ErrValidation.New("缺少 file 字段"))
			return
		}

		mimeType := fileHeader.Header.Get("Content-Type")
		fileType, allowed := models.FileTypeFromMime(mimeType)
		if !allowed {
			writeError(c, apperrors.ErrValidation.New("不支持的文件类型: %s", mimeType))
			return
		}

		if fileType == models.TypeVideo {
			inputPath, err := saveTemp(fileHeader, cfg.Media.MaxVideoSize)
			if err != nil {
				writeError(c, err)
				return
			}

			job := &jobs.VideoJob{
				UserID:    userID,
				InputPath: inputPath,
				FileName:  fileHeader.Filename,
				Options:   parseTranscodeOptions(c),
			}
			if err := queue.Enqueue(c.Request.Context(), job); err != nil {
				if removeErr := os.Remove(inputPath); removeErr != nil {
					logger.WithError(removeErr).Warn("清理上传临时文件失败")
				}
				writeError(c, err)
				return
			}

			c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "message": "视频已进入转码队列"})
			return
		}

		data, err := readUpload(fileHeader, cfg.Media.MaxImageSize)
		if err != nil {
			writeError(c, err)
			return
		}

		file, err := storageService.UploadFile(c.Request.Context(), userID, storage.Upload{
			Data:         data,
			MimeType:     mimeType,
			OriginalName: fileHeader.Filename,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"file": file})
	}
}

// handleUploadWithOriginal 双上传：processed 与 original 两个字段
func handleUploadWithOriginal(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		processed, err := formUpload(c, "processed")
		if err != nil {
			writeError(c, err)
			return
		}
		original, err := formUpload(c, "original")
		if err != nil {
			writeError(c, err)
			return
		}

		result, err := storageService.UploadWithOriginal(c.Request.Context(), userID, processed, original)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

// handleListFiles 文件列表。
// all=true 返回该状态下的全量列表，否则分页；
// 读取回收站视图前先惰性清理过期文件，并附带当前回收站占用的总字节数。
// 响应额外带上用户当前的 loopDelay，供播放端使用
func handleListFiles(fileStore *files.Store, storageService *storage.Service, authService *auth.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		status := models.FileStatus(c.DefaultQuery("status", string(models.StatusActive)))
		if !validStatus(status) {
			writeError(c, apperrors.ErrValidation.New("无效的状态: %s", status))
			return
		}

		ctx := c.Request.Context()
		if status == models.StatusTrashed {
			if _, err := storageService.CleanExpiredTrash(ctx, userID); err != nil {
				// 清理失败不阻塞列表本身
				logger.WithError(err).WithField("user_id", userID).Warn("清理过期回收站失败")
			}
		}

		loopDelay := 0
		if user, err := authService.GetUserByID(ctx, userID); err == nil {
			loopDelay = user.LoopDelay
		}

		if c.Query("all") == "true" {
			list, err := fileStore.ListByUser(ctx, userID, status)
			if err != nil {
				writeError(c, err)
				return
			}
			resp := gin.H{"files": list, "loopDelay": loopDelay}
			if status == models.StatusTrashed {
				resp["totalFilesSize"] = sumSizes(list)
			}
			c.JSON(http.StatusOK, resp)
			return
		}

		page := queryInt(c, "page", 1)
		limit := queryInt(c, "limit", 20)
		result, err := fileStore.ListPaginated(ctx, userID, status, page, limit)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := gin.H{"files": result.Files, "pagination": result.Pagination, "loopDelay": loopDelay}
		if status == models.StatusTrashed {
			resp["totalFilesSize"] = sumSizes(result.Files)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleFileDetails 单文件详情
func handleFileDetails(fileStore *files.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		file, err := findOwnedFile(c.Request.Context(), fileStore, c.Param("id"), userID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"file": file})
	}
}

// handleTransition 单文件状态迁移，归属校验后执行
func handleTransition(fileStore *files.Store, op func(context.Context, uuid.UUID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		ctx := c.Request.Context()
		file, err := findOwnedFile(ctx, fileStore, c.Param("id"), userID)
		if err != nil {
			writeError(c, err)
			return
		}

		if err := op(ctx, file.ID); err != nil {
			writeError(c, err)
			return
		}

		updated, err := fileStore.FindByID(ctx, file.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"file": updated})
	}
}

// handleBulkTransition 批量状态迁移，返回实际生效数量
func handleBulkTransition(op func(context.Context, uuid.UUID, []uuid.UUID) (int, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		var req models.BulkIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		count, err := op(c.Request.Context(), userID, req.FileIDs)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleBulkDelete 批量清除回收站文件
func handleBulkDelete(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		var req models.BulkIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		result, err := storageService.BulkDelete(c.Request.Context(), userID, req.FileIDs)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleEmptyTrash 清空回收站
func handleEmptyTrash(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		result, err := storageService.EmptyTrash(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleDeleteTrashed 永久删除单个回收站文件
func handleDeleteTrashed(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		fileID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			writeError(c, apperrors.ErrValidation.New("无效的文件 id"))
			return
		}

		file, err := storageService.DeleteOne(c.Request.Context(), userID, fileID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"file": file})
	}
}

// handleListOriginals 原件分页列表，支持 mime 前缀过滤（如 image/）
func handleListOriginals(originalStore *files.OriginalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		page := queryInt(c, "page", 1)
		limit := queryInt(c, "limit", 20)
		mimePrefix := c.Query("mimeType")

		result, err := originalStore.ListPaginated(c.Request.Context(), userID, page, limit, mimePrefix)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleDeleteOriginal 删除单个原件
func handleDeleteOriginal(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		fileID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			writeError(c, apperrors.ErrValidation.New("无效的文件 id"))
			return
		}

		file, err := storageService.DeleteOriginal(c.Request.Context(), userID, fileID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"file": file})
	}
}

// handleBulkDeleteOriginals 批量删除原件
func handleBulkDeleteOriginals(storageService *storage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		var req models.BulkIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		result, err := storageService.BulkDeleteOriginals(c.Request.Context(), userID, req.FileIDs)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// ========================================
// 辅助函数
// ========================================

func findOwnedFile(ctx context.Context, fileStore *files.Store, rawID string, userID uuid.UUID) (*models.UserFile, error) {
	fileID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.ErrValidation.New("无效的文件 id")
	}
	file, err := fileStore.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, apperrors.ErrNotFound.New("文件不存在")
	}
	return file, nil
}

func validStatus(status models.FileStatus) bool {
	for _, s := range models.AvailableFileStatus {
		if s == status {
			return true
		}
	}
	return false
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func sumSizes(list []models.UserFile) int64 {
	var total int64
	for _, f := range list {
		total += f.FileSize
	}
	return total
}

// parseTranscodeOptions 从表单字段收集转码参数，非法值交给服务端钳制
func parseTranscodeOptions(c *gin.Context) transcode.Options {
	intField := func(key string) int {
		v, _ := strconv.Atoi(c.PostForm(key))
		return v
	}
	return transcode.Options{
		FPS:        intField("fps"),
		Quality:    intField("quality"),
		Transpose:  intField("transpose"),
		CropWidth:  intField("cropWidth"),
		CropHeight: intField("cropHeight"),
	}
}

func formUpload(c *gin.Context, field string) (storage.Upload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return storage.Upload{}, apperrors.ErrValidation.New("缺少 %s 字段", field)
	}
	data, err := readUpload(header, 0)
	if err != nil {
		return storage.Upload{}, err
	}
	return storage.Upload{
		Data:         data,
		MimeType:     header.Header.Get("Content-Type"),
		OriginalName: header.Filename,
	}, nil
}

func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	if limit > 0 && header.Size > limit {
		return nil, apperrors.ErrPayloadTooLarge.New("文件超过上限 %d 字节", limit)
	}
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// saveTemp 把上传的视频落到本地临时文件，供转码工作进程消费
func saveTemp(header *multipart.FileHeader, limit int64) (string, error) {
	if limit > 0 && header.Size > limit {
		return "", apperrors.ErrPayloadTooLarge.New("文件超过上限 %d 字节", limit)
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", fmt.Sprintf("upload_%d_*.tmp", time.Now().UnixNano()))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}

	return dst.Name(), nil
}
