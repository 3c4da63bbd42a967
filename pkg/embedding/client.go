// Package embedding 提供了文本向量化客户端。
//
// 使用的向量模型面向非对称检索（asymmetric retrieval）训练：
// 入库文档与检索问句必须使用不同的 input_type 编码，二者混用不会报错，
// 但排序质量会静默下降，因此 Mode 作为显式参数贯穿所有调用点。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"
)

// Mode 标识向量化的用途。
type Mode string

const (
	// ModeDocument 用于入库内容的向量化。
	ModeDocument Mode = "search_document"
	// ModeQuery 用于检索问句的向量化。
	ModeQuery Mode = "search_query"
)

// Client 定义了向量化客户端的接口。
// EmbedForIndexing / EmbedForQuery 两个入口替代布尔开关，
// 避免调用方把模式传反而不自知。
type Client interface {
	EmbedForIndexing(ctx context.Context, text string) ([]float32, error)
	EmbedForQuery(ctx context.Context, text string) ([]float32, error)
	// Dimensions 返回模型产出向量的固定维度。
	Dimensions() int
}

type cohereClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient 创建一个新的向量化客户端。
func NewClient(cfg config.EmbeddingConfig) Client {
	return &cohereClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *cohereClient) EmbedForIndexing(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, ModeDocument)
}

func (c *cohereClient) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, ModeQuery)
}

func (c *cohereClient) Dimensions() int {
	return c.cfg.Dimensions
}

// embed 调用 /embed 接口获取指定文本的向量。
func (c *cohereClient) embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_type: %s, input_len: %d", c.cfg.Model, mode, len(text))
	reqBody := embedRequest{
		Model:     c.cfg.Model,
		Texts:     []string{text},
		InputType: string(mode),
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embed", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embed api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embed api returned non-200 status: %s", resp.Status)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(embedResp.Embeddings) == 0 || len(embedResp.Embeddings[0]) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api")
	}

	log.Infof("[EmbeddingClient] 成功获取向量, 维度: %d", len(embedResp.Embeddings[0]))
	return embedResp.Embeddings[0], nil
}
