package llm

import (
	"context"
	"errors"
	"fmt"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient 是 StructuredClient 的 Gemini 实现，作为主力提供方。
type GeminiClient struct {
	model *genai.GenerativeModel
}

// NewGeminiClient 创建一个新的 Gemini 客户端。
// 模型固定输出 application/json，温度取低值以保证结构化输出稳定。
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.GenerationConfig.ResponseMIMEType = "application/json"
	model.SetTemperature(float32(cfg.Temperature))

	return &GeminiClient{model: model}, nil
}

// CompleteJSON 向 Gemini 发起一次结构化输出推理调用。
func (c *GeminiClient) CompleteJSON(ctx context.Context, prompt string, image *ImageData) ([]byte, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if image != nil {
		parts = append(parts, genai.Blob{
			MIMEType: image.MIMEType,
			Data:     image.Data,
		})
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 429 {
			log.Warnf("[Gemini] 触发限流: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}

	var out []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out = append(out, []byte(text)...)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("gemini returned empty content")
	}

	return out, nil
}
