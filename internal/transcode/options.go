package transcode

import "fmt"

// 编码参数的安全上限。客户端给出的任何数值都会被收敛到这些范围内，
// 防止恶意参数造成资源耗尽
const (
	MaxFPS       = 24
	MinQuality   = 2
	MaxQuality   = 31
	MaxTranspose = 3
	MaxCropSize  = 480

	DefaultFPS       = 24
	DefaultQuality   = 5
	DefaultTranspose = 1
	DefaultCropSize  = 240

	// 输入体积上限：音频提取的门槛低于整段视频转码
	MaxVideoInputBytes = 50 << 20
	MaxAudioInputBytes = 30 << 20
)

// Options 视频转码参数，零值字段回落到默认值
type Options struct {
	FPS        int    `json:"fps,omitempty"`
	Quality    int    `json:"quality,omitempty"`
	Transpose  int    `json:"transpose,omitempty"`
	CropWidth  int    `json:"cropWidth,omitempty"`
	CropHeight int    `json:"cropHeight,omitempty"`
	PixFmt     string `json:"pixFmt,omitempty"`
}

// Sanitized 返回收敛后的参数副本
func (o Options) Sanitized() Options {
	out := o
	if out.FPS <= 0 {
		out.FPS = DefaultFPS
	}
	if out.FPS > MaxFPS {
		out.FPS = MaxFPS
	}
	if out.Quality <= 0 {
		out.Quality = DefaultQuality
	}
	if out.Quality < MinQuality {
		out.Quality = MinQuality
	}
	if out.Quality > MaxQuality {
		out.Quality = MaxQuality
	}
	if out.Transpose < 0 {
		out.Transpose = 0
	}
	if out.Transpose > MaxTranspose {
		out.Transpose = DefaultTranspose
	}
	if out.CropWidth <= 0 {
		out.CropWidth = DefaultCropSize
	}
	if out.CropWidth > MaxCropSize {
		out.CropWidth = MaxCropSize
	}
	if out.CropHeight <= 0 {
		out.CropHeight = DefaultCropSize
	}
	if out.CropHeight > MaxCropSize {
		out.CropHeight = MaxCropSize
	}
	if out.PixFmt == "" {
		out.PixFmt = "yuvj420p"
	}
	return out
}

// BuildVideoArgs 构造视频转码的完整命令行参数。
// 过滤链按固定顺序拼装：降帧率、可选裁剪（居中）、可选旋转
func BuildVideoArgs(inputPath, outputPath string, opts Options) []string {
	o := opts.Sanitized()

	filters := []string{fmt.Sprintf("fps=%d", o.FPS)}
	if o.CropWidth < MaxCropSize || o.CropHeight < MaxCropSize {
		filters = append(filters, fmt.Sprintf("crop=%d:%d:(iw-ow)/2:(ih-oh)/2", o.CropWidth, o.CropHeight))
	}
	if o.Transpose > 0 {
		filters = append(filters, fmt.Sprintf("transpose=%d", o.Transpose))
	}

	vf := filters[0]
	for _, f := range filters[1:] {
		vf += "," + f
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vf", vf,
		"-pix_fmt", o.PixFmt,
		"-q:v", fmt.Sprintf("%d", o.Quality),
		"-vcodec", "mjpeg",
		"-an",
		"-y", outputPath,
	}
}

// BuildAudioArgs 构造音频提取参数：单声道 24k AAC，响度归一后压低 5dB
func BuildAudioArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-ar", "44100",
		"-ac", "1",
		"-ab", "24k",
		"-filter:a", "loudnorm",
		"-filter:a", "volume=-5dB",
		"-vn",
		"-y", outputPath,
	}
}
