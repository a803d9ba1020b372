// Package errors 定义 docquery 核心管线的错误分类。
//
// 错误分为两类：
//   - 致命错误（配置错误、维度不匹配、不支持的输入）：立即中止操作，不重试。
//   - 瞬时错误（嵌入失败、生成失败、超时）：由调用点的重试策略处理，
//     重试耗尽后局部化为单个问题的失败，不影响批次内其他问题。
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 配置参数无效（块大小、权重等），调用方错误，不重试。
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch 向量维度与索引维度不一致，契约违反。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmbedding 嵌入供应商调用失败，可重试。
	ErrEmbedding = errors.New("embedding provider failed")

	// ErrGeneration LLM 生成调用失败，可重试。
	ErrGeneration = errors.New("generation provider failed")

	// ErrUnsupportedFormat 输入格式不受支持，输入错误，不重试。
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrSizeLimit 输入超过大小限制，输入错误，不重试。
	ErrSizeLimit = errors.New("document size limit exceeded")

	// ErrTimeout 外部调用超时，可重试。
	ErrTimeout = errors.New("operation timed out")

	// ErrSessionCancelled 会话被取消，已完成的结果仍然保留。
	ErrSessionCancelled = errors.New("session cancelled")
)

// Configurationf 构造带上下文的配置错误。
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// DimensionMismatchf 构造带上下文的维度错误。
func DimensionMismatchf(want, got int) error {
	return fmt.Errorf("%w: index dimension %d, vector dimension %d", ErrDimensionMismatch, want, got)
}

// Embeddingf 构造带上下文的嵌入错误。
func Embeddingf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrEmbedding}, args...)...)
}

// Generationf 构造带上下文的生成错误。
func Generationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGeneration}, args...)...)
}

// IsRetryable 判断错误是否应触发重试。
// 瞬时错误（嵌入、生成、超时）可重试；配置和契约错误不可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrSizeLimit),
		errors.Is(err, ErrSessionCancelled):
		return false
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrGeneration):
		return true
	}
	// 未分类错误按可重试处理，交由重试上限兜底。
	return true
}

// IsFatal 判断错误是否应中止整个操作（而不是局部化为单项失败）。
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrSizeLimit)
}
