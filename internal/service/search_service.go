package service

import (
	"context"
	"fmt"

	"brainly-go/internal/model"
	"brainly-go/internal/repository"
	"brainly-go/pkg/embedding"
	"brainly-go/pkg/log"
)

// defaultSearchLimit 是未指定 limit 时的默认返回条数。
const defaultSearchLimit = 20

// SearchService 接口定义了语义检索的业务操作。
type SearchService interface {
	Search(ctx context.Context, userID uint, query string, limit int) ([]model.SearchResultDTO, error)
}

// searchService 是 SearchService 接口的实现。
type searchService struct {
	contentRepo repository.ContentRepository
	index       VectorIndex
	embedder    embedding.Client
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(contentRepo repository.ContentRepository, index VectorIndex, embedder embedding.Client) SearchService {
	return &searchService{
		contentRepo: contentRepo,
		index:       index,
		embedder:    embedder,
	}
}

// Search 执行一次语义检索：查询侧向量化、按用户过滤的相似度检索、
// 再从关系库取回完整记录并按相关度顺序重排。
// 向量索引里有、关系库里没有的陈旧 ID 被静默丢弃，不影响其余结果。
func (s *searchService) Search(ctx context.Context, userID uint, query string, limit int) ([]model.SearchResultDTO, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vector, err := s.embedder.EmbedForQuery(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 查询向量化失败: %v", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ids, err := s.index.Search(ctx, vector, formatUserID(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(ids) == 0 {
		return []model.SearchResultDTO{}, nil
	}

	contents, err := s.contentRepo.FindByContentIDs(userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve search hits: %w", err)
	}

	byID := make(map[string]*model.Content, len(contents))
	for i := range contents {
		byID[contents[i].ContentID] = &contents[i]
	}

	// 按向量检索的相关度顺序重排，丢弃已无记录的陈旧 ID
	results := make([]model.SearchResultDTO, 0, len(ids))
	for _, id := range ids {
		content, ok := byID[id]
		if !ok {
			log.Warnf("[SearchService] 检索命中陈旧向量点, contentId: %s", id)
			continue
		}
		results = append(results, model.SearchResultDTO{
			ContentID:         content.ContentID,
			Title:             content.Title,
			Link:              content.Link,
			Type:              content.Type,
			Tags:              content.Tags,
			CreatedAt:         content.CreatedAt,
			ExtractedMetadata: content.ExtractedMetadata.Data(),
		})
	}

	log.Infof("[SearchService] 检索完成, userId: %d, 返回 %d 条", userID, len(results))
	return results, nil
}
