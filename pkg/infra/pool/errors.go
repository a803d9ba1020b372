// Package pool provides bounded worker pooling for the query pipeline.
package pool

import "errors"

// 池相关错误定义
var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolOverload 池已满且配置为非阻塞
	ErrPoolOverload = errors.New("worker pool is overloaded")

	// ErrInvalidPoolConfig 无效的池配置
	ErrInvalidPoolConfig = errors.New("invalid worker pool config")
)
