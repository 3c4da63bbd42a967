package service

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"brainly-go/internal/model"
	"brainly-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContentService(repo *fakeContentRepo, index *fakeIndex, extract *fakeExtractService, published *[]tasks.PreviewUploadTask) ContentService {
	publisher := func(task tasks.PreviewUploadTask) error {
		if published != nil {
			*published = append(*published, task)
		}
		return nil
	}
	return NewContentService(repo, newFakeTagRepo(), index, newFakeEmbedder(), &fakeFetcher{}, extract, publisher)
}

func validInput(contentID string) IngestInput {
	return IngestInput{
		ContentID: contentID,
		Link:      "https://example.com/article",
		Type:      "article",
		Title:     "An Article",
		Tags:      []model.Tag{{TagID: "t1", Title: "golang"}},
	}
}

func TestIngestCreatesRecordAndVectorPoint(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	svc := newTestContentService(repo, index, &fakeExtractService{}, nil)

	result, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	require.NotNil(t, result.Content)
	assert.Nil(t, result.ExtractionErr)

	// 记录与向量点使用同一个 ID
	saved, err := repo.FindByContentID(1, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", saved.ContentID)

	doc, ok := index.docs["c1"]
	require.True(t, ok)
	assert.Equal(t, "1", doc.UserID)
	assert.Equal(t, "An Article", doc.Title)
}

func TestIngestPositionAppendsAtEnd(t *testing.T) {
	repo := &fakeContentRepo{}
	svc := newTestContentService(repo, newFakeIndex(), &fakeExtractService{}, nil)

	first, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), 1, validInput("c2"))
	require.NoError(t, err)

	assert.Equal(t, first.Content.Position+1, second.Content.Position)
}

func TestIngestRejectsUnknownContentType(t *testing.T) {
	svc := newTestContentService(&fakeContentRepo{}, newFakeIndex(), &fakeExtractService{}, nil)

	input := validInput("c1")
	input.Type = "hologram"
	_, err := svc.Ingest(context.Background(), 1, input)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngestPartialSaveOnExtractionFailure(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	extract := &fakeExtractService{err: errors.New("all providers down")}
	svc := newTestContentService(repo, index, extract, nil)

	input := validInput("c1")
	input.AutoExtract = true
	result, err := svc.Ingest(context.Background(), 1, input)

	// 抽取失败不阻断保存：记录与向量点都存在，错误随结果返回
	require.NoError(t, err)
	assert.Error(t, result.ExtractionErr)
	_, findErr := repo.FindByContentID(1, "c1")
	assert.NoError(t, findErr)
	_, ok := index.docs["c1"]
	assert.True(t, ok)
}

func TestIngestUsesExtractedMetadataInVectorDoc(t *testing.T) {
	index := newFakeIndex()
	extract := &fakeExtractService{metadata: &model.ExtractedMetadata{
		Title:         "Deep Dive",
		SourceType:    "article",
		Summary:       "A long read about vector search.",
		MainTopic:     "vector search",
		EmbeddingText: "dense synthesis text",
	}}
	svc := newTestContentService(&fakeContentRepo{}, index, extract, nil)

	input := validInput("c1")
	input.AutoExtract = true
	result, err := svc.Ingest(context.Background(), 1, input)
	require.NoError(t, err)
	require.Nil(t, result.ExtractionErr)

	doc := index.docs["c1"]
	assert.Equal(t, "article", doc.SourceType)
	assert.Equal(t, "vector search", doc.MainTopic)
	assert.Equal(t, "A long read about vector search.", doc.Summary)
}

func TestNormalizeTags(t *testing.T) {
	tags := NormalizeTags([]model.Tag{
		{Title: "  Go  "},
		{Title: "Machine Learning"},
		{Title: "go"}, // 与第一个归一化后重复
		{Title: "   "},
		{Title: "an-extremely-long-tag-title-that-keeps-going"},
	})

	require.Len(t, tags, 3)
	assert.Equal(t, "go", tags[0].Title)
	assert.Equal(t, "machine-learning", tags[1].Title)
	assert.Len(t, tags[2].Title, 24)
	for _, tag := range tags {
		assert.NotEmpty(t, tag.TagID)
	}
}

func TestNormalizeTagsTruncatesOnRuneBoundary(t *testing.T) {
	tags := NormalizeTags([]model.Tag{{Title: "go语言最佳实践指南手册"}})

	require.Len(t, tags, 1)
	// 截断不切断多字节字符
	assert.True(t, utf8.ValidString(tags[0].Title))
	assert.LessOrEqual(t, len(tags[0].Title), maxTagTitleLength)
	assert.Equal(t, "go语言最佳实践指", tags[0].Title)
}

func TestRemoveDeletesRecordAndVectorPoint(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	svc := newTestContentService(repo, index, &fakeExtractService{}, nil)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), 1, "c1"))

	_, findErr := repo.FindByContentID(1, "c1")
	assert.Error(t, findErr)
	_, ok := index.docs["c1"]
	assert.False(t, ok)
}

func TestRemoveNeverIngestedContentSucceeds(t *testing.T) {
	index := newFakeIndex()
	svc := newTestContentService(&fakeContentRepo{}, index, &fakeExtractService{}, nil)

	// 删除是幂等的：从未入库的 contentId 返回成功且无任何状态变化
	require.NoError(t, svc.Remove(context.Background(), 1, "ghost"))
	assert.Empty(t, index.deleted)

	// 重复删除同一 contentId 也成立
	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	require.NoError(t, svc.Remove(context.Background(), 1, "c1"))
	require.NoError(t, svc.Remove(context.Background(), 1, "c1"))
}

func TestRemoveIsScopedToOwner(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	svc := newTestContentService(repo, index, &fakeExtractService{}, nil)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)

	// 其他用户的删除按幂等语义返回成功，但不能动到别人的记录和向量点
	require.NoError(t, svc.Remove(context.Background(), 2, "c1"))
	_, findErr := repo.FindByContentID(1, "c1")
	assert.NoError(t, findErr)
	_, ok := index.docs["c1"]
	assert.True(t, ok)
}

func TestReorderIsIdempotentAndUserScoped(t *testing.T) {
	repo := &fakeContentRepo{}
	svc := newTestContentService(repo, newFakeIndex(), &fakeExtractService{}, nil)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), 1, validInput("c2"))
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), 2, validInput("x1"))
	require.NoError(t, err)

	updates := []model.PositionUpdate{
		{ContentID: "c1", Position: 5},
		{ContentID: "c2", Position: 3},
		{ContentID: "x1", Position: 99}, // 不属于用户 1，应被忽略
	}
	require.NoError(t, svc.Reorder(1, updates))
	require.NoError(t, svc.Reorder(1, updates)) // 重复提交结果一致

	c1, _ := repo.FindByContentID(1, "c1")
	c2, _ := repo.FindByContentID(1, "c2")
	x1, _ := repo.FindByContentID(2, "x1")
	assert.Equal(t, 5, c1.Position)
	assert.Equal(t, 3, c2.Position)
	assert.NotEqual(t, 99, x1.Position)
}

func TestReorderRejectsEmptyUpdates(t *testing.T) {
	svc := newTestContentService(&fakeContentRepo{}, newFakeIndex(), &fakeExtractService{}, nil)
	assert.ErrorIs(t, svc.Reorder(1, nil), ErrValidation)
}

func TestUpdateMissingContentReturnsNotFound(t *testing.T) {
	svc := newTestContentService(&fakeContentRepo{}, newFakeIndex(), &fakeExtractService{}, nil)
	_, err := svc.Update(context.Background(), 1, validInput("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRebuildsVectorPoint(t *testing.T) {
	index := newFakeIndex()
	svc := newTestContentService(&fakeContentRepo{}, index, &fakeExtractService{}, nil)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)

	input := validInput("c1")
	input.Title = "Renamed"
	_, err = svc.Update(context.Background(), 1, input)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", index.docs["c1"].Title)
}

func TestReconcileRemovesOrphanPoints(t *testing.T) {
	repo := &fakeContentRepo{}
	index := newFakeIndex()
	svc := newTestContentService(repo, index, &fakeExtractService{}, nil)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	// 向量已写、记录未写的中断入库留下的孤儿点
	index.seed("orphan1", "1")
	index.seed("other-user", "2")

	removed, err := svc.ReconcileUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := index.docs["orphan1"]
	assert.False(t, ok)
	// 正常点与其他用户的点不受影响
	_, ok = index.docs["c1"]
	assert.True(t, ok)
	_, ok = index.docs["other-user"]
	assert.True(t, ok)
}

func TestIngestPublishesPreviewTask(t *testing.T) {
	var published []tasks.PreviewUploadTask
	extract := &fakeExtractService{metadata: &model.ExtractedMetadata{
		Title:        "With Preview",
		PreviewImage: "https://example.com/thumb.jpg",
	}}
	svc := newTestContentService(&fakeContentRepo{}, newFakeIndex(), extract, &published)

	input := validInput("c1")
	input.AutoExtract = true
	_, err := svc.Ingest(context.Background(), 1, input)
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, "c1", published[0].ContentID)
	assert.Equal(t, "https://example.com/thumb.jpg", published[0].ImageURL)
}

func TestIngestWithoutPreviewPublishesNothing(t *testing.T) {
	var published []tasks.PreviewUploadTask
	svc := newTestContentService(&fakeContentRepo{}, newFakeIndex(), &fakeExtractService{}, &published)

	_, err := svc.Ingest(context.Background(), 1, validInput("c1"))
	require.NoError(t, err)
	assert.Empty(t, published)
}
