package models

// 允许上传的 MIME 类型白名单
var allowedVideoMimes = map[string]struct{}{
	"video/mp4":        {},
	"video/webm":       {},
	"video/quicktime":  {},
	"video/x-msvideo":  {},
	"video/x-ms-wmv":   {},
	"video/x-matroska": {},
	"video/3gpp":       {},
	"video/3gpp2":      {},
	"video/x-flv":      {},
	"video/x-m4v":      {},
	"video/x-mjpeg":    {},
}

var allowedImageMimes = map[string]struct{}{
	"image/jpeg":    {},
	"image/jpg":     {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
	"image/avif":    {},
	"image/apng":    {},
	"image/tiff":    {},
	"image/bmp":     {},
}

// FileTypeFromMime 判定媒体类别，不在白名单内返回 false
func FileTypeFromMime(mimeType string) (FileType, bool) {
	if _, ok := allowedImageMimes[mimeType]; ok {
		return TypeImage, true
	}
	if _, ok := allowedVideoMimes[mimeType]; ok {
		return TypeVideo, true
	}
	return "", false
}

// 优先按 MIME 推导扩展名，转码后的产物以输出类型为准
var mimeToExt = map[string]string{
	"video/x-mjpeg": "mjpeg",
	"video/mp4":     "mp4",
	"video/webm":    "webm",
	"audio/aac":     "aac",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/webp":    "webp",
	"image/gif":     "gif",
}

// ExtFromMime 返回 MIME 对应的扩展名，未收录的类型返回空串
func ExtFromMime(mimeType string) string {
	return mimeToExt[mimeType]
}
