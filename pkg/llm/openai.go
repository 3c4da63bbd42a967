package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"
)

// OpenAICompatibleClient 是 StructuredClient 的 OpenAI 兼容接口实现，
// 作为兜底提供方（Groq 等服务暴露同一套 /chat/completions 协议）。
type OpenAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewOpenAICompatibleClient 创建一个新的兜底推理客户端。
func NewOpenAICompatibleClient(cfg config.LLMConfig) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLBlock `json:"image_url,omitempty"`
}

type imageURLBlock struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteJSON 调用 /chat/completions 接口并返回结构化 JSON。
// 携带图片时使用 VisionModel 走多模态路径，否则使用文本模型。
func (c *OpenAICompatibleClient) CompleteJSON(ctx context.Context, prompt string, image *ImageData) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("fallback llm api key is not configured")
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	}
	reqBody.ResponseFormat.Type = "json_object"

	reqBody.Messages = append(reqBody.Messages, chatMessage{
		Role:    "system",
		Content: "You are a metadata extraction expert. Return only valid JSON.",
	})

	if image != nil {
		reqBody.Model = c.cfg.VisionModel
		dataURL := fmt.Sprintf("data:%s;base64,%s", image.MIMEType, base64.StdEncoding.EncodeToString(image.Data))
		reqBody.Messages = append(reqBody.Messages, chatMessage{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURLBlock{URL: dataURL}},
			},
		})
	} else {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: prompt})
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Warnf("[FallbackLLM] 触发限流: %s", resp.Status)
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, errors.New("chat api returned empty content")
	}

	return []byte(chatResp.Choices[0].Message.Content), nil
}
