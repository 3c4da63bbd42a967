// Package es 基于 Elasticsearch 实现了向量索引的管理。
//
// 一个命名索引保存全部向量点：文档 ID 即 contentId，payload 中的
// user_id 是多租户隔离的分片键。索引在首次使用时惰性创建，
// 所有操作入口都会先确保索引存在，以便在索引被外部删除后自愈。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"brainly-go/internal/config"
	"brainly-go/internal/model"
	"brainly-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrDimensionMismatch 表示向量维度与索引配置不一致。
// 这是配置错误，必须让写入失败，绝不能静默截断或补零。
var ErrDimensionMismatch = errors.New("vector dimensionality does not match index configuration")

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return nil
}

// Index 管理一个向量索引的生命周期，并提供 upsert / 过滤检索 / 删除操作。
type Index struct {
	client     *elasticsearch.Client
	indexName  string
	vectorSize int
}

// NewIndex 创建一个新的 Index 实例。
// vectorSize 由向量模型决定，必须与写入向量的维度严格一致。
func NewIndex(client *elasticsearch.Client, indexName string, vectorSize int) *Index {
	return &Index{
		client:     client,
		indexName:  indexName,
		vectorSize: vectorSize,
	}
}

// ensureIndex 检查索引是否存在，不存在则创建（幂等）。
// 并发首次使用导致的创建竞态通过把 "already exists" 视为成功来容忍。
func (i *Index) ensureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.indexName}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[VectorIndex] 检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()

	if !res.IsError() && res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("[VectorIndex] 检查索引 '%s' 时收到意外的状态码: %d", i.indexName, res.StatusCode)
		return fmt.Errorf("unexpected status checking index existence: %d", res.StatusCode)
	}

	// user_id 建为 keyword，使按用户过滤走倒排索引而非全量扫描
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"content_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"title": { "type": "text" },
				"tag_titles": { "type": "keyword" },
				"type": { "type": "keyword" },
				"link": { "type": "keyword" },
				"description": { "type": "text" },
				"summary": { "type": "text" },
				"main_topic": { "type": "text" },
				"topics": { "type": "keyword" },
				"tags_ai": { "type": "keyword" },
				"source_type": { "type": "keyword" },
				"sentiment": { "type": "keyword" },
				"intent": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, i.vectorSize)

	log.Infof("[VectorIndex] 索引 '%s' 不存在，正在创建...", i.indexName)
	createRes, err := i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("[VectorIndex] 创建索引 '%s' 失败: %v", i.indexName, err)
		return err
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		body, _ := io.ReadAll(createRes.Body)
		// 并发创建竞态：别的请求先建好了，视为成功
		if strings.Contains(string(body), "resource_already_exists_exception") {
			log.Infof("[VectorIndex] 索引 '%s' 已被并发创建", i.indexName)
			return nil
		}
		log.Errorf("[VectorIndex] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.indexName, string(body))
		return errors.New("elasticsearch returned an error creating index")
	}

	log.Infof("[VectorIndex] 索引 '%s' 创建成功", i.indexName)
	return nil
}

// Upsert 插入或整体替换 contentId 对应的向量点。
// 向量维度不匹配返回 ErrDimensionMismatch，属于致命错误。
func (i *Index) Upsert(ctx context.Context, doc model.VectorDoc) error {
	if len(doc.Vector) != i.vectorSize {
		log.Errorf("[VectorIndex] 向量维度不匹配, got: %d, want: %d", len(doc.Vector), i.vectorSize)
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Vector), i.vectorSize)
	}

	if err := i.ensureIndex(ctx); err != nil {
		return err
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: doc.ContentID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[VectorIndex] upsert 向量点失败: %s", res.String())
		return errors.New("failed to upsert vector point")
	}

	log.Infof("[VectorIndex] upsert 向量点成功, contentId: %s", doc.ContentID)
	return nil
}

// Search 返回按余弦相似度排序的 contentId 列表，且只返回归属 userID 的点。
// 按用户过滤是强制的：省略过滤是租户隔离缺陷，不是风格问题。
func (i *Index) Search(ctx context.Context, vector []float32, userID string, limit int) ([]string, error) {
	if err := i.ensureIndex(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              limit,
			"num_candidates": limit * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"user_id": userID},
			},
		},
		"size":    limit,
		"_source": false,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode knn query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[VectorIndex] 向量检索请求失败: %v", err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[VectorIndex] 向量检索返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("vector search returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]string, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	log.Infof("[VectorIndex] 检索完成, userId: %s, 命中 %d 条", userID, len(ids))
	return ids, nil
}

// Delete 按 contentId 删除向量点，点不存在不视为错误（幂等墓碑语义）。
func (i *Index) Delete(ctx context.Context, contentID string) error {
	if err := i.ensureIndex(ctx); err != nil {
		return err
	}

	req := esapi.DeleteRequest{
		Index:      i.indexName,
		DocumentID: contentID,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		log.Infof("[VectorIndex] 删除的向量点不存在, contentId: %s", contentID)
		return nil
	}
	if res.IsError() {
		log.Errorf("[VectorIndex] 删除向量点失败: %s", res.String())
		return errors.New("failed to delete vector point")
	}

	log.Infof("[VectorIndex] 删除向量点成功, contentId: %s", contentID)
	return nil
}

// listScanCap 是单次对账扫描的命中上限（Elasticsearch 的单查询窗口上限）。
const listScanCap = 10000

// ListIDs 返回归属 userID 的全部向量点 ID，供对账清理孤儿点使用。
// 命中数达到 listScanCap 时说明该用户的点超出了单次扫描窗口，
// 超出部分不会出现在结果里，调用方需要再次对账。
func (i *Index) ListIDs(ctx context.Context, userID string) ([]string, error) {
	if err := i.ensureIndex(ctx); err != nil {
		return nil, err
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"user_id": userID},
		},
		"size":    listScanCap,
		"_source": false,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode list query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("vector list failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("vector list returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}

	ids := make([]string, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	if len(ids) >= listScanCap {
		log.Warnf("[VectorIndex] 对账扫描命中数达到上限 %d, userId: %s, 超出窗口的点本次未被扫描", listScanCap, userID)
	}
	return ids, nil
}
