package jobs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/storage"
	"github.com/framevault/internal/transcode"
)

type fakeTranscoder struct {
	videoErr error
	audioErr error
}

func (f *fakeTranscoder) TranscodeVideo(_ context.Context, _ string, _ transcode.Options) (*transcode.Output, error) {
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return &transcode.Output{Data: []byte("mjpeg-bytes"), MimeType: "video/x-mjpeg", Ext: ".mjpeg"}, nil
}

func (f *fakeTranscoder) ExtractAudio(_ context.Context, _ string) (*transcode.Output, error) {
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return &transcode.Output{Data: []byte("aac-bytes"), MimeType: "audio/aac", Ext: ".aac"}, nil
}

type fakeUploader struct {
	video  storage.Upload
	audio  storage.Upload
	called bool
}

func (f *fakeUploader) UploadVideoAndAudio(_ context.Context, userID uuid.UUID, video, audio storage.Upload) (*models.UserFile, error) {
	f.called = true
	f.video = video
	f.audio = audio
	return &models.UserFile{ID: uuid.New(), UserID: userID}, nil
}

func newTestWorker(tr transcode.Transcoder, up Uploader) *Worker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewWorker(nil, tr, up, logger)
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(path, []byte("raw-video"), 0o644))
	return path
}

func TestWorker_Process(t *testing.T) {
	uploader := &fakeUploader{}
	w := newTestWorker(&fakeTranscoder{}, uploader)
	input := writeInput(t)

	file, err := w.process(context.Background(), &VideoJob{
		ID:        uuid.NewString(),
		UserID:    uuid.New(),
		InputPath: input,
		FileName:  "clip.mp4",
	})
	require.NoError(t, err)
	require.NotNil(t, file)

	assert.True(t, uploader.called)
	assert.Equal(t, []byte("mjpeg-bytes"), uploader.video.Data)
	assert.Equal(t, "video/x-mjpeg", uploader.video.MimeType)
	assert.Equal(t, []byte("aac-bytes"), uploader.audio.Data)
	assert.Equal(t, "audio/aac", uploader.audio.MimeType)

	// 输入临时文件已被清理
	_, err = os.Stat(input)
	assert.True(t, os.IsNotExist(err))
}

func TestWorker_Process_AudioFailureFailsJob(t *testing.T) {
	uploader := &fakeUploader{}
	w := newTestWorker(&fakeTranscoder{audioErr: apperrors.ErrTranscodeFailed.New("no audio stream")}, uploader)
	input := writeInput(t)

	_, err := w.process(context.Background(), &VideoJob{InputPath: input, UserID: uuid.New()})
	assert.True(t, apperrors.ErrTranscodeFailed.Has(err))
	assert.False(t, uploader.called)

	// 失败路径同样清理输入
	_, err = os.Stat(input)
	assert.True(t, os.IsNotExist(err))
}

func TestWorker_Process_VideoTimeout(t *testing.T) {
	uploader := &fakeUploader{}
	w := newTestWorker(&fakeTranscoder{videoErr: apperrors.ErrTranscodeTimeout.New("killed")}, uploader)
	input := writeInput(t)

	_, err := w.process(context.Background(), &VideoJob{InputPath: input, UserID: uuid.New()})
	assert.True(t, apperrors.ErrTranscodeTimeout.Has(err))
	assert.False(t, uploader.called)
}
