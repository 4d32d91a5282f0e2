package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/config"
)

// Service 封装单桶对象存储。所有用户共用一个桶，对象键以用户 id 为前缀隔离
type Service struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewService(cfg *config.Config) (*Service, error) {
	client, err := minio.New(cfg.Storage.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.MinIO.AccessKey, cfg.Storage.MinIO.SecretKey, ""),
		Secure: cfg.Storage.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Service{
		client:        client,
		bucket:        cfg.Storage.MinIO.BucketName,
		publicBaseURL: cfg.PublicBaseURL(),
	}, nil
}

// EnsureBucket 启动时调用一次，桶不存在则创建
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.ErrUpstreamStorage.Wrap(fmt.Errorf("check bucket exists: %w", err))
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return apperrors.ErrUpstreamStorage.Wrap(fmt.Errorf("create bucket: %w", err))
		}
	}

	return nil
}

// Put 写入对象并返回对外可访问的地址
func (s *Service) Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error) {
	objectKey := normalizePath(objectPath)

	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperrors.ErrUpstreamStorage.Wrap(fmt.Errorf("put object: %w", err))
	}

	return s.URL(objectKey), nil
}

func (s *Service) Get(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, normalizePath(objectPath), minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.ErrUpstreamStorage.Wrap(fmt.Errorf("get object: %w", err))
	}
	return obj, nil
}

func (s *Service) Remove(ctx context.Context, objectPath string) error {
	err := s.client.RemoveObject(ctx, s.bucket, normalizePath(objectPath), minio.RemoveObjectOptions{})
	if err != nil {
		return apperrors.ErrUpstreamStorage.Wrap(fmt.Errorf("remove object: %w", err))
	}
	return nil
}

// RemoveMany 批量删除，返回删除失败的对象键
func (s *Service) RemoveMany(ctx context.Context, objectPaths []string) []string {
	objectsCh := make(chan minio.ObjectInfo)

	go func() {
		defer close(objectsCh)
		for _, p := range objectPaths {
			objectsCh <- minio.ObjectInfo{Key: normalizePath(p)}
		}
	}()

	var failed []string
	errCh := s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{})
	for e := range errCh {
		if e.Err != nil {
			failed = append(failed, e.ObjectName)
		}
	}

	return failed
}

// URL 由对象键拼出对外地址：{publicBaseURL}/{bucket}/{key}
func (s *Service) URL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.publicBaseURL, "/"), s.bucket, normalizePath(objectKey))
}

// PathFromURL 从对外地址还原对象键，地址不含本桶前缀时报错
func (s *Service) PathFromURL(fileURL string) (string, error) {
	marker := "/" + s.bucket + "/"
	idx := strings.Index(fileURL, marker)
	if idx < 0 {
		return "", apperrors.ErrValidation.New("无法从地址解析对象键: %s", fileURL)
	}
	key := fileURL[idx+len(marker):]
	if key == "" {
		return "", apperrors.ErrValidation.New("无法从地址解析对象键: %s", fileURL)
	}
	return key, nil
}

func normalizePath(p string) string {
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	return p
}
