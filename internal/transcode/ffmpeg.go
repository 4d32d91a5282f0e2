package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/config"
)

// Output 转码产物。进程退出后从临时文件一次性读入，临时文件随即删除
type Output struct {
	Data     []byte
	MimeType string
	Ext      string
}

// Transcoder 视频处理能力。两个操作互相独立，可以并发调用
type Transcoder interface {
	TranscodeVideo(ctx context.Context, inputPath string, opts Options) (*Output, error)
	ExtractAudio(ctx context.Context, inputPath string) (*Output, error)
}

// FFmpeg 基于外部 ffmpeg 进程的实现
type FFmpeg struct {
	binPath string
	timeout time.Duration
	logger  *logrus.Logger
}

func NewFFmpeg(cfg *config.Config, logger *logrus.Logger) *FFmpeg {
	return &FFmpeg{
		binPath: cfg.Media.FFmpegPath,
		timeout: cfg.Media.TranscodeTimeout,
		logger:  logger,
	}
}

// TranscodeVideo 将视频转为低帧率 MJPEG。输入超过体积上限时不启动进程直接失败
func (f *FFmpeg) TranscodeVideo(ctx context.Context, inputPath string, opts Options) (*Output, error) {
	if err := checkInputSize(inputPath, MaxVideoInputBytes); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(os.TempDir(), fmt.Sprintf("transcode_out_%d.mjpeg", time.Now().UnixNano()))
	data, err := f.run(ctx, BuildVideoArgs(inputPath, outputPath, opts), outputPath)
	if err != nil {
		return nil, err
	}

	return &Output{Data: data, MimeType: "video/x-mjpeg", Ext: ".mjpeg"}, nil
}

// ExtractAudio 从视频中抽出音轨并压成单声道 AAC
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath string) (*Output, error) {
	if err := checkInputSize(inputPath, MaxAudioInputBytes); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(os.TempDir(), fmt.Sprintf("transcode_audio_%d.aac", time.Now().UnixNano()))
	data, err := f.run(ctx, BuildAudioArgs(inputPath, outputPath), outputPath)
	if err != nil {
		return nil, err
	}

	return &Output{Data: data, MimeType: "audio/aac", Ext: ".aac"}, nil
}

// run 启动进程并等待。超时强杀进程；stderr 缓冲进失败信息；
// 无论哪条退出路径，输出临时文件都会被清理
func (f *FFmpeg) run(ctx context.Context, args []string, outputPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	defer func() {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			f.logger.WithError(err).WithField("path", outputPath).Warn("清理转码临时文件失败")
		}
	}()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.ErrTranscodeTimeout.New("转码超过 %s 被终止", f.timeout)
		}
		return nil, apperrors.ErrTranscodeFailed.New("ffmpeg 退出异常: %v: %s", err, stderr.String())
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, apperrors.ErrTranscodeFailed.New("读取转码输出失败: %v", err)
	}
	if len(data) == 0 {
		return nil, apperrors.ErrTranscodeFailed.New("转码输出为空文件")
	}

	return data, nil
}

func checkInputSize(inputPath string, limit int64) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return apperrors.ErrTranscodeFailed.New("读取输入文件失败: %v", err)
	}
	if info.Size() > limit {
		return apperrors.ErrPayloadTooLarge.New("输入文件 %d 字节超过上限 %d 字节", info.Size(), limit)
	}
	return nil
}
