package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedContents(t *testing.T, svc ContentService, userID uint, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.Ingest(context.Background(), userID, validInput(id))
		require.NoError(t, err)
	}
}

func TestSearchReturnsOnlyOwnContent(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	contentSvc := newTestContentService(repo, index, &fakeExtractService{}, nil)
	seedContents(t, contentSvc, 1, "a1", "a2")
	seedContents(t, contentSvc, 2, "b1")

	searchSvc := NewSearchService(repo, index, newFakeEmbedder())
	results, err := searchSvc.Search(context.Background(), 1, "anything", 10)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "b1", r.ContentID)
	}
}

func TestSearchPreservesRelevanceOrder(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	contentSvc := newTestContentService(repo, index, &fakeExtractService{}, nil)
	seedContents(t, contentSvc, 1, "c1", "c2", "c3")

	// 相关度排序与插入顺序不同
	index.ranked = []string{"c3", "c1", "c2"}

	searchSvc := NewSearchService(repo, index, newFakeEmbedder())
	results, err := searchSvc.Search(context.Background(), 1, "query", 10)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "c3", results[0].ContentID)
	assert.Equal(t, "c1", results[1].ContentID)
	assert.Equal(t, "c2", results[2].ContentID)
}

func TestSearchDropsStaleIDs(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	contentSvc := newTestContentService(repo, index, &fakeExtractService{}, nil)
	seedContents(t, contentSvc, 1, "c1", "c2")

	// 向量索引里残留了一个已无记录的点
	index.seed("stale", "1")
	index.ranked = []string{"stale", "c1", "c2"}

	searchSvc := NewSearchService(repo, index, newFakeEmbedder())
	results, err := searchSvc.Search(context.Background(), 1, "query", 10)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ContentID)
	assert.Equal(t, "c2", results[1].ContentID)
}

func TestSearchHonorsLimit(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	contentSvc := newTestContentService(repo, index, &fakeExtractService{}, nil)
	seedContents(t, contentSvc, 1, "c1", "c2", "c3")

	searchSvc := NewSearchService(repo, index, newFakeEmbedder())

	results, err := searchSvc.Search(context.Background(), 1, "query", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// limit 大于命中数时返回全部
	results, err = searchSvc.Search(context.Background(), 1, "query", 5)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	searchSvc := NewSearchService(&fakeContentRepo{}, newFakeIndex(), newFakeEmbedder())
	_, err := searchSvc.Search(context.Background(), 1, "", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearchUsesQuerySideEmbedding(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	embedder := newFakeEmbedder()

	searchSvc := NewSearchService(repo, index, embedder)
	_, err := searchSvc.Search(context.Background(), 1, "query", 10)
	require.NoError(t, err)

	// 检索必须走查询侧入口，绝不能用文档侧编码
	assert.Equal(t, 1, embedder.queryCalls)
	assert.Equal(t, 0, embedder.indexCalls)
}

func TestSearchEmptyIndexReturnsEmptySlice(t *testing.T) {
	searchSvc := NewSearchService(&fakeContentRepo{}, newFakeIndex(), newFakeEmbedder())
	results, err := searchSvc.Search(context.Background(), 1, "query", 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
