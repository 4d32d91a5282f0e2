package jobs

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/framevault/internal/models"
	"github.com/framevault/internal/storage"
	"github.com/framevault/internal/transcode"
)

// Uploader 转码产物的上传能力
type Uploader interface {
	UploadVideoAndAudio(ctx context.Context, userID uuid.UUID, video, audio storage.Upload) (*models.UserFile, error)
}

// Worker 转码工作进程，串行消费视频队列。
// 单任务内视频转码与音轨提取并行，两者都成功才会上传
type Worker struct {
	queue      *Queue
	transcoder transcode.Transcoder
	uploader   Uploader
	logger     *logrus.Logger
}

func NewWorker(queue *Queue, transcoder transcode.Transcoder, uploader Uploader, logger *logrus.Logger) *Worker {
	return &Worker{
		queue:      queue,
		transcoder: transcoder,
		uploader:   uploader,
		logger:     logger,
	}
}

// Run 消费循环，ctx 取消后返回
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("转码工作进程已启动")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Error("出队失败")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		log := w.logger.WithFields(logrus.Fields{"job_id": job.ID, "user_id": job.UserID})
		if file, err := w.process(ctx, job); err != nil {
			log.WithError(err).Error("转码任务失败")
		} else {
			log.WithField("file_id", file.ID).Info("转码任务完成")
		}
	}
}

// process 处理单条任务。输入临时文件无论成败都会被清理
func (w *Worker) process(ctx context.Context, job *VideoJob) (*models.UserFile, error) {
	defer func() {
		if err := os.Remove(job.InputPath); err != nil && !os.IsNotExist(err) {
			w.logger.WithError(err).WithField("path", job.InputPath).Warn("清理输入临时文件失败")
		}
	}()

	var video, audio *transcode.Output
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		video, err = w.transcoder.TranscodeVideo(gctx, job.InputPath, job.Options)
		return err
	})
	g.Go(func() error {
		var err error
		audio, err = w.transcoder.ExtractAudio(gctx, job.InputPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return w.uploader.UploadVideoAndAudio(ctx, job.UserID,
		storage.Upload{Data: video.Data, MimeType: video.MimeType, OriginalName: job.FileName},
		storage.Upload{Data: audio.Data, MimeType: audio.MimeType, OriginalName: job.FileName},
	)
}
