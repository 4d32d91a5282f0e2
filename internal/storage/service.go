package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/config"
	"github.com/framevault/internal/files"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/quota"
)

// ObjectStore 对象存储能力
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectPath string) error
	RemoveMany(ctx context.Context, objectPaths []string) []string
	PathFromURL(fileURL string) (string, error)
}

// Upload 一次上传的原始负载
type Upload struct {
	Data         []byte
	MimeType     string
	OriginalName string
}

// DualUploadResult 双上传返回：处理件目录行 + 原件目录行
type DualUploadResult struct {
	TotalSize int64                `json:"totalSize"`
	File      *models.UserFile     `json:"file"`
	Original  *models.OriginalFile `json:"originalFile"`
}

// Service 存储编排：串起校验、对象写入、目录登记与配额记账。
// 对象先落盘，目录与记账随后并行提交；提交失败时执行补偿删除，
// 避免出现无人记账的孤儿对象
type Service struct {
	objects      ObjectStore
	store        *files.Store
	originals    *files.OriginalStore
	ledger       *quota.Ledger
	maxImageSize int64
	maxVideoSize int64
	logger       *logrus.Logger
}

func NewService(objects ObjectStore, store *files.Store, originals *files.OriginalStore, ledger *quota.Ledger, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		objects:      objects,
		store:        store,
		originals:    originals,
		ledger:       ledger,
		maxImageSize: cfg.Media.MaxImageSize,
		maxVideoSize: cfg.Media.MaxVideoSize,
		logger:       logger,
	}
}

// UploadFile 单文件上传：校验 → 配额 → 写对象 → 并行登记目录与记账
func (s *Service) UploadFile(ctx context.Context, userID uuid.UUID, up Upload) (*models.UserFile, error) {
	fileType, ok := models.FileTypeFromMime(up.MimeType)
	if !ok {
		return nil, apperrors.ErrValidation.New("不支持的文件类型: %s", up.MimeType)
	}

	size := int64(len(up.Data))
	if err := s.checkSizeCeiling(fileType, size); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, userID, size); err != nil {
		return nil, err
	}

	fileName, err := s.nextFileName(ctx, userID, up.OriginalName, up.MimeType)
	if err != nil {
		return nil, err
	}

	fileURL, err := s.objects.Put(ctx, objectKey(userID, fileName), bytes.NewReader(up.Data), size, up.MimeType)
	if err != nil {
		return nil, err
	}

	return s.commitFile(ctx, userID, &models.UserFile{
		UserID:   userID,
		FileName: fileName,
		MimeType: up.MimeType,
		FileType: fileType,
		FileURL:  fileURL,
		FileSize: size,
	}, size, []string{objectKey(userID, fileName)})
}

// UploadVideoAndAudio 转码产物上传：视频与音轨并行写入，任一失败整体失败，
// 成功后落一条带 AudioURL 的目录行，配额按两者合计记账
func (s *Service) UploadVideoAndAudio(ctx context.Context, userID uuid.UUID, video, audio Upload) (*models.UserFile, error) {
	videoSize := int64(len(video.Data))
	audioSize := int64(len(audio.Data))
	totalSize := videoSize + audioSize

	if videoSize > s.maxVideoSize {
		return nil, apperrors.ErrPayloadTooLarge.New("视频超过上限 %d 字节", s.maxVideoSize)
	}
	if err := s.checkQuota(ctx, userID, totalSize); err != nil {
		return nil, err
	}

	videoName, err := s.nextFileName(ctx, userID, video.OriginalName, video.MimeType)
	if err != nil {
		return nil, err
	}
	audioName := replaceExt(videoName, ".aac")

	videoKey := objectKey(userID, videoName)
	audioKey := objectKey(userID, audioName)

	var videoURL, audioURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		videoURL, err = s.objects.Put(gctx, videoKey, bytes.NewReader(video.Data), videoSize, video.MimeType)
		return err
	})
	g.Go(func() error {
		var err error
		audioURL, err = s.objects.Put(gctx, audioKey, bytes.NewReader(audio.Data), audioSize, audio.MimeType)
		return err
	})
	if err := g.Wait(); err != nil {
		// 全有或全无：任一写入失败时清掉可能已写入的另一半
		s.removeBestEffort(ctx, videoKey, audioKey)
		return nil, err
	}

	return s.commitFile(ctx, userID, &models.UserFile{
		UserID:   userID,
		FileName: videoName,
		MimeType: video.MimeType,
		FileType: models.TypeVideo,
		FileURL:  videoURL,
		AudioURL: audioURL,
		FileSize: totalSize,
	}, totalSize, []string{videoKey, audioKey})
}

// UploadWithOriginal 双上传：客户端同时交来处理件与原件，配额按合计校验，
// 两个对象并行写入，目录上各落一行
func (s *Service) UploadWithOriginal(ctx context.Context, userID uuid.UUID, processed, original Upload) (*DualUploadResult, error) {
	fileType, ok := models.FileTypeFromMime(processed.MimeType)
	if !ok {
		return nil, apperrors.ErrValidation.New("不支持的文件类型: %s", processed.MimeType)
	}

	processedSize := int64(len(processed.Data))
	originalSize := int64(len(original.Data))
	totalSize := processedSize + originalSize

	if err := s.checkQuota(ctx, userID, totalSize); err != nil {
		return nil, err
	}

	processedName, err := s.nextFileName(ctx, userID, processed.OriginalName, processed.MimeType)
	if err != nil {
		return nil, err
	}
	originalName := markOriginal(processedName)

	processedKey := objectKey(userID, processedName)
	originalKey := objectKey(userID, originalName)

	var processedURL, originalURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		processedURL, err = s.objects.Put(gctx, processedKey, bytes.NewReader(processed.Data), processedSize, processed.MimeType)
		return err
	})
	g.Go(func() error {
		var err error
		originalURL, err = s.objects.Put(gctx, originalKey, bytes.NewReader(original.Data), originalSize, original.MimeType)
		return err
	})
	if err := g.Wait(); err != nil {
		s.removeBestEffort(ctx, processedKey, originalKey)
		return nil, err
	}

	var userFile *models.UserFile
	var originalFile *models.OriginalFile
	var adjusted bool

	g2, g2ctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		var err error
		userFile, err = s.store.Create(g2ctx, &models.UserFile{
			UserID:   userID,
			FileName: processedName,
			MimeType: processed.MimeType,
			FileType: fileType,
			FileURL:  processedURL,
			FileSize: processedSize,
		})
		return err
	})
	g2.Go(func() error {
		var err error
		originalFile, err = s.originals.Create(g2ctx, &models.OriginalFile{
			UserID:   userID,
			FileName: originalName,
			MimeType: original.MimeType,
			FileURL:  originalURL,
			FileSize: originalSize,
		})
		return err
	})
	g2.Go(func() error {
		_, err := s.ledger.Adjust(g2ctx, userID, totalSize, quota.Increase)
		if err == nil {
			adjusted = true
		}
		return err
	})
	if err := g2.Wait(); err != nil {
		s.compensate(ctx, userID, []string{processedKey, originalKey}, userFile, originalFile, adjusted, totalSize)
		return nil, err
	}

	return &DualUploadResult{TotalSize: totalSize, File: userFile, Original: originalFile}, nil
}

// commitFile 对象已写入后的提交阶段：目录登记与配额增加并行执行，
// 任何一边失败都回收对象并撤销已生效的另一边
func (s *Service) commitFile(ctx context.Context, userID uuid.UUID, rec *models.UserFile, size int64, keys []string) (*models.UserFile, error) {
	var created *models.UserFile
	var adjusted bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		created, err = s.store.Create(gctx, rec)
		return err
	})
	g.Go(func() error {
		_, err := s.ledger.Adjust(gctx, userID, size, quota.Increase)
		if err == nil {
			adjusted = true
		}
		return err
	})
	if err := g.Wait(); err != nil {
		s.compensate(ctx, userID, keys, created, nil, adjusted, size)
		return nil, err
	}

	return created, nil
}

// compensate 提交失败后的清理：删对象、撤目录行、冲回配额。
// 清理自身的失败只记日志，不改变原始错误
func (s *Service) compensate(ctx context.Context, userID uuid.UUID, keys []string, created *models.UserFile, original *models.OriginalFile, adjusted bool, size int64) {
	s.removeBestEffort(ctx, keys...)
	if created != nil {
		if _, err := s.store.DeleteByIDs(ctx, []uuid.UUID{created.ID}); err != nil {
			s.logger.WithError(err).WithField("file_id", created.ID).Warn("补偿删除目录行失败")
		}
	}
	if original != nil {
		if _, err := s.originals.DeleteByIDs(ctx, []uuid.UUID{original.ID}); err != nil {
			s.logger.WithError(err).WithField("file_id", original.ID).Warn("补偿删除原件行失败")
		}
	}
	if adjusted {
		if _, err := s.ledger.Adjust(ctx, userID, size, quota.Decrease); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("补偿冲回配额失败")
		}
	}
}

func (s *Service) removeBestEffort(ctx context.Context, keys ...string) {
	if failed := s.objects.RemoveMany(ctx, keys); len(failed) > 0 {
		s.logger.WithField("keys", failed).Warn("清理对象失败")
	}
}

// DeleteOne 永久删除单个文件。只有回收站中的文件可以被清除
func (s *Service) DeleteOne(ctx context.Context, userID, fileID uuid.UUID) (*models.UserFile, error) {
	file, err := s.store.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, apperrors.ErrNotFound.New("文件不存在")
	}
	if file.Status != models.StatusTrashed {
		return nil, apperrors.ErrValidation.New("file is not in trash")
	}

	keys, err := s.resolveKeys(file)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if err := s.objects.Remove(ctx, key); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.DeleteByIDs(ctx, []uuid.UUID{file.ID}); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Adjust(ctx, userID, file.FileSize, quota.Decrease); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("删除后冲减配额失败")
	}

	return file, nil
}

// BulkDelete 批量清除回收站文件。逐项尽力而为：
// 查不到目录行、不属于该用户或不在回收站的 id 记入 FailedIDs，
// 其余对象一次批量删除后移除目录行并按合计冲减配额
func (s *Service) BulkDelete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*models.BulkDeleteResult, error) {
	result := &models.BulkDeleteResult{FailedIDs: []uuid.UUID{}}
	if len(ids) == 0 {
		return result, nil
	}

	found, err := s.store.FindManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	deletable := make(map[uuid.UUID]models.UserFile, len(found))
	for _, f := range found {
		if f.UserID == userID && f.Status == models.StatusTrashed {
			deletable[f.ID] = f
		}
	}

	var validIDs []uuid.UUID
	var paths []string
	var totalSize int64
	for _, id := range ids {
		f, ok := deletable[id]
		if !ok {
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		validIDs = append(validIDs, id)
		totalSize += f.FileSize
		keys, err := s.resolveKeys(&f)
		if err != nil {
			// 地址无法解析时跳过对象清理，目录行照常移除
			s.logger.WithField("file_id", f.ID).Warn("无法从地址解析对象键，跳过对象删除")
			continue
		}
		paths = append(paths, keys...)
	}

	if len(validIDs) == 0 {
		return result, nil
	}

	if len(paths) > 0 {
		if failed := s.objects.RemoveMany(ctx, paths); len(failed) > 0 {
			return nil, apperrors.ErrUpstreamStorage.New("批量删除对象失败: %s", strings.Join(failed, ", "))
		}
	}

	deleted, err := s.store.DeleteByIDs(ctx, validIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Adjust(ctx, userID, totalSize, quota.Decrease); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("批量删除后冲减配额失败")
	}

	result.DeletedCount = deleted
	result.TotalFilesSize = totalSize
	return result, nil
}

// EmptyTrash 清空回收站
func (s *Service) EmptyTrash(ctx context.Context, userID uuid.UUID) (*models.BulkDeleteResult, error) {
	ids, err := s.store.ListTrashedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.BulkDelete(ctx, userID, ids)
}

// CleanExpiredTrash 惰性清理：清除回收站中超过保留期的文件，返回清除数量。
// 没有到期文件时什么都不做，可以随意重复调用
func (s *Service) CleanExpiredTrash(ctx context.Context, userID uuid.UUID) (int, error) {
	cutoff := time.Now().Add(-files.TrashRetention)
	ids, err := s.store.ExpiredTrashedIDs(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.BulkDelete(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// DeleteOriginal 删除原件。原件没有状态机，删除即永久
func (s *Service) DeleteOriginal(ctx context.Context, userID, fileID uuid.UUID) (*models.OriginalFile, error) {
	file, err := s.originals.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, apperrors.ErrNotFound.New("文件不存在")
	}

	key, err := s.objects.PathFromURL(file.FileURL)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Remove(ctx, key); err != nil {
		return nil, err
	}
	if _, err := s.originals.DeleteByIDs(ctx, []uuid.UUID{file.ID}); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Adjust(ctx, userID, file.FileSize, quota.Decrease); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("删除原件后冲减配额失败")
	}

	return file, nil
}

// BulkDeleteOriginals 批量删除原件，部分失败语义与 BulkDelete 相同
func (s *Service) BulkDeleteOriginals(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*models.BulkDeleteResult, error) {
	result := &models.BulkDeleteResult{FailedIDs: []uuid.UUID{}}
	if len(ids) == 0 {
		return result, nil
	}

	found, err := s.originals.FindManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	deletable := make(map[uuid.UUID]models.OriginalFile, len(found))
	for _, f := range found {
		if f.UserID == userID {
			deletable[f.ID] = f
		}
	}

	var validIDs []uuid.UUID
	var paths []string
	var totalSize int64
	for _, id := range ids {
		f, ok := deletable[id]
		if !ok {
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		validIDs = append(validIDs, id)
		totalSize += f.FileSize
		key, err := s.objects.PathFromURL(f.FileURL)
		if err != nil {
			s.logger.WithField("file_id", f.ID).Warn("无法从地址解析对象键，跳过对象删除")
			continue
		}
		paths = append(paths, key)
	}

	if len(validIDs) == 0 {
		return result, nil
	}

	if len(paths) > 0 {
		if failed := s.objects.RemoveMany(ctx, paths); len(failed) > 0 {
			return nil, apperrors.ErrUpstreamStorage.New("批量删除对象失败: %s", strings.Join(failed, ", "))
		}
	}

	deleted, err := s.originals.DeleteByIDs(ctx, validIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Adjust(ctx, userID, totalSize, quota.Decrease); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("批量删除原件后冲减配额失败")
	}

	result.DeletedCount = deleted
	result.TotalFilesSize = totalSize
	return result, nil
}

func (s *Service) checkSizeCeiling(fileType models.FileType, size int64) error {
	switch fileType {
	case models.TypeImage:
		if size > s.maxImageSize {
			return apperrors.ErrPayloadTooLarge.New("图片超过上限 %d 字节", s.maxImageSize)
		}
	case models.TypeVideo:
		if size > s.maxVideoSize {
			return apperrors.ErrPayloadTooLarge.New("视频超过上限 %d 字节", s.maxVideoSize)
		}
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, userID uuid.UUID, size int64) error {
	avail, err := s.ledger.CheckAvailable(ctx, userID, size)
	if err != nil {
		return err
	}
	if !avail.Allowed {
		return apperrors.ErrQuotaExceeded.New("存储空间不足，剩余 %d 字节", avail.AvailableBytes)
	}
	return nil
}

// nextFileName 生成 frame_<序号>_<时间戳>.<扩展名>。
// 序号取该用户已有最大帧号加一，扩展名优先按输出 MIME 推导，
// 这样转码后的文件名不会沿用源文件的扩展名
func (s *Service) nextFileName(ctx context.Context, userID uuid.UUID, originalName, mimeType string) (string, error) {
	latest, err := s.store.LatestFrameNumber(ctx, userID)
	if err != nil {
		return "", err
	}

	ext := models.ExtFromMime(mimeType)
	if ext == "" {
		if idx := strings.LastIndex(originalName, "."); idx >= 0 && idx < len(originalName)-1 {
			ext = strings.ToLower(originalName[idx+1:])
		}
	}
	if ext == "" {
		return "", apperrors.ErrValidation.New("无法确定文件扩展名: %s", originalName)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("frame_%d_%s.%s", latest+1, timestamp, ext), nil
}

// resolveKeys 从目录行还原全部对象键，视频行可能附带音轨
func (s *Service) resolveKeys(f *models.UserFile) ([]string, error) {
	key, err := s.objects.PathFromURL(f.FileURL)
	if err != nil {
		return nil, err
	}
	keys := []string{key}
	if f.AudioURL != "" {
		audioKey, err := s.objects.PathFromURL(f.AudioURL)
		if err != nil {
			return nil, err
		}
		keys = append(keys, audioKey)
	}
	return keys, nil
}

func objectKey(userID uuid.UUID, fileName string) string {
	return userID.String() + "/" + fileName
}

func replaceExt(name, newExt string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx] + newExt
	}
	return name + newExt
}

func markOriginal(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx] + "_original" + name[idx:]
	}
	return name + "_original"
}
