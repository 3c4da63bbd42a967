// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务层哨兵错误，handler 据此映射 HTTP 状态码。
var (
	// ErrValidation 表示请求载荷不合法（缺字段、非法类型等）。
	ErrValidation = errors.New("invalid request payload")
	// ErrNotFound 表示目标资源不存在或不属于当前用户。
	ErrNotFound = errors.New("resource not found")
	// ErrExtractionFailed 表示所有抽取提供方都失败了。
	ErrExtractionFailed = errors.New("metadata extraction failed")
)
