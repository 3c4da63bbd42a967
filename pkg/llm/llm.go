// Package llm 提供了结构化输出推理客户端。
//
// 两个推理提供方（Gemini 主力、OpenAI 兼容接口兜底）实现同一个
// StructuredClient 能力，主备切换的编排逻辑只在调用方存在一份。
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited 表示提供方返回了限流信号（HTTP 429）。
// 与一般失败区分开，调用方可以据此提示"稍后重试"而非报一般性错误。
var ErrRateLimited = errors.New("inference provider rate limited")

// ImageData 是随提示词一起发送的内联图片。
type ImageData struct {
	Data     []byte
	MIMEType string
}

// StructuredClient 定义了结构化 JSON 输出的推理能力。
// 实现方需使用确定性的低温度配置，保证结构化输出可复现。
type StructuredClient interface {
	// CompleteJSON 发起一次结构化输出推理调用，返回原始 JSON 字节。
	// image 不为 nil 时走提供方的多模态路径。
	CompleteJSON(ctx context.Context, prompt string, image *ImageData) ([]byte, error)
}
