// Package apperrors 定义存储引擎的错误分类以及到 HTTP 状态码的映射。
// 预期内的失败（配额不足、未找到、上游存储错误等）以分类错误返回，
// 由边界层统一转换成响应；只有未分类错误才按内部错误处理。
package apperrors

import (
	"net/http"

	"github.com/zeebo/errs"
)

var (
	// ErrValidation 输入缺失或非法（含不支持的 MIME 类型）
	ErrValidation = errs.Class("validation")
	// ErrQuotaExceeded 存储配额不足，上传前即被拒绝
	ErrQuotaExceeded = errs.Class("quota exceeded")
	// ErrNotFound 文件/用户不存在
	ErrNotFound = errs.Class("not found")
	// ErrPayloadTooLarge 超过转码输入上限
	ErrPayloadTooLarge = errs.Class("payload too large")
	// ErrUpstreamStorage 对象存储调用失败
	ErrUpstreamStorage = errs.Class("upstream storage")
	// ErrTranscodeTimeout 编解码进程超时被强杀
	ErrTranscodeTimeout = errs.Class("transcode timeout")
	// ErrTranscodeFailed 编解码进程非零退出
	ErrTranscodeFailed = errs.Class("transcode failed")
	// ErrUnauthorized 认证失败
	ErrUnauthorized = errs.Class("unauthorized")
)

// HTTPStatus 将分类错误映射为状态码，未分类错误一律 500
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case ErrValidation.Has(err):
		return http.StatusBadRequest
	case ErrUnauthorized.Has(err):
		return http.StatusUnauthorized
	case ErrNotFound.Has(err):
		return http.StatusNotFound
	case ErrPayloadTooLarge.Has(err):
		return http.StatusRequestEntityTooLarge
	case ErrQuotaExceeded.Has(err):
		return http.StatusInsufficientStorage
	case ErrTranscodeTimeout.Has(err):
		return http.StatusGatewayTimeout
	case ErrTranscodeFailed.Has(err), ErrUpstreamStorage.Has(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code 稳定的机读错误标识
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case ErrValidation.Has(err):
		return "VALIDATION_ERROR"
	case ErrUnauthorized.Has(err):
		return "UNAUTHORIZED"
	case ErrNotFound.Has(err):
		return "NOT_FOUND"
	case ErrPayloadTooLarge.Has(err):
		return "PAYLOAD_TOO_LARGE"
	case ErrQuotaExceeded.Has(err):
		return "QUOTA_EXCEEDED"
	case ErrTranscodeTimeout.Has(err):
		return "TRANSCODE_TIMEOUT"
	case ErrTranscodeFailed.Has(err):
		return "TRANSCODE_FAILED"
	case ErrUpstreamStorage.Has(err):
		return "UPSTREAM_STORAGE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
