package service

import (
	"context"
	"os"
	"testing"

	"brainly-go/internal/model"
	"brainly-go/pkg/fetcher"
	"brainly-go/pkg/log"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// fakeContentRepo 是 ContentRepository 的内存实现。
type fakeContentRepo struct {
	contents []model.Content
}

func (r *fakeContentRepo) Create(content *model.Content) error {
	r.contents = append(r.contents, *content)
	return nil
}

func (r *fakeContentRepo) Update(content *model.Content) error {
	for i := range r.contents {
		if r.contents[i].ContentID == content.ContentID && r.contents[i].UserID == content.UserID {
			r.contents[i] = *content
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeContentRepo) FindByUser(userID uint) ([]model.Content, error) {
	var out []model.Content
	for _, c := range r.contents {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContentRepo) FindByContentID(userID uint, contentID string) (*model.Content, error) {
	for i := range r.contents {
		if r.contents[i].UserID == userID && r.contents[i].ContentID == contentID {
			c := r.contents[i]
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeContentRepo) FindByContentIDs(userID uint, contentIDs []string) ([]model.Content, error) {
	wanted := make(map[string]bool, len(contentIDs))
	for _, id := range contentIDs {
		wanted[id] = true
	}
	var out []model.Content
	for _, c := range r.contents {
		if c.UserID == userID && wanted[c.ContentID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContentRepo) DeleteByContentID(userID uint, contentID string) (int64, error) {
	for i := range r.contents {
		if r.contents[i].UserID == userID && r.contents[i].ContentID == contentID {
			r.contents = append(r.contents[:i], r.contents[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeContentRepo) BulkUpdatePositions(userID uint, updates []model.PositionUpdate) error {
	for _, u := range updates {
		for i := range r.contents {
			if r.contents[i].UserID == userID && r.contents[i].ContentID == u.ContentID {
				r.contents[i].Position = u.Position
			}
		}
	}
	return nil
}

func (r *fakeContentRepo) MaxPosition(userID uint) (int, error) {
	max := 0
	for _, c := range r.contents {
		if c.UserID == userID && c.Position > max {
			max = c.Position
		}
	}
	return max, nil
}

func (r *fakeContentRepo) ListContentIDs(userID uint) ([]string, error) {
	var ids []string
	for _, c := range r.contents {
		if c.UserID == userID {
			ids = append(ids, c.ContentID)
		}
	}
	return ids, nil
}

func (r *fakeContentRepo) UpdateThumbnail(userID uint, contentID, thumbnail string) error {
	for i := range r.contents {
		if r.contents[i].UserID == userID && r.contents[i].ContentID == contentID {
			meta := r.contents[i].Metadata.Data()
			meta.Thumbnail = thumbnail
			r.contents[i].Metadata = datatypes.NewJSONType(meta)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// fakeTagRepo 是 TagRepository 的内存实现。
type fakeTagRepo struct {
	catalog map[string]model.TagCatalog
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{catalog: make(map[string]model.TagCatalog)}
}

func (r *fakeTagRepo) UpsertAll(tags []model.Tag) error {
	for _, t := range tags {
		if _, ok := r.catalog[t.Title]; !ok {
			r.catalog[t.Title] = model.TagCatalog{TagID: t.TagID, Title: t.Title}
		}
	}
	return nil
}

func (r *fakeTagRepo) FindAll() ([]model.TagCatalog, error) {
	out := make([]model.TagCatalog, 0, len(r.catalog))
	for _, t := range r.catalog {
		out = append(out, t)
	}
	return out, nil
}

// fakeIndex 是 VectorIndex 的内存实现。
// ranked 非空时 Search 按 ranked 顺序返回（仍按 user_id 过滤）。
type fakeIndex struct {
	docs    map[string]model.VectorDoc
	order   []string
	ranked  []string
	deleted []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]model.VectorDoc)}
}

func (f *fakeIndex) Upsert(ctx context.Context, doc model.VectorDoc) error {
	if _, exists := f.docs[doc.ContentID]; !exists {
		f.order = append(f.order, doc.ContentID)
	}
	f.docs[doc.ContentID] = doc
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, userID string, limit int) ([]string, error) {
	candidates := f.ranked
	if candidates == nil {
		candidates = f.order
	}
	var out []string
	for _, id := range candidates {
		doc, ok := f.docs[id]
		if !ok || doc.UserID != userID {
			continue
		}
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) Delete(ctx context.Context, contentID string) error {
	f.deleted = append(f.deleted, contentID)
	if _, ok := f.docs[contentID]; !ok {
		return nil
	}
	delete(f.docs, contentID)
	for i, id := range f.order {
		if id == contentID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeIndex) ListIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for _, id := range f.order {
		if f.docs[id].UserID == userID {
			out = append(out, id)
		}
	}
	return out, nil
}

// seed 直接写入一个向量点，绕过 Upsert，用于构造孤儿点等场景。
func (f *fakeIndex) seed(contentID, userID string) {
	f.docs[contentID] = model.VectorDoc{ContentID: contentID, UserID: userID}
	f.order = append(f.order, contentID)
}

// fakeEmbedder 是 embedding.Client 的测试替身，记录最后一次调用的入口。
type fakeEmbedder struct {
	vector      []float32
	indexCalls  int
	queryCalls  int
	indexingErr error
	queryErr    error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3, 0.4}}
}

func (f *fakeEmbedder) EmbedForIndexing(ctx context.Context, text string) ([]float32, error) {
	f.indexCalls++
	if f.indexingErr != nil {
		return nil, f.indexingErr
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

// fakeFetcher 是 ResourceFetcher 的测试替身。
type fakeFetcher struct {
	result fetcher.Result
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) fetcher.Result {
	return f.result
}

// fakeExtractService 是 ExtractService 的测试替身。
type fakeExtractService struct {
	metadata *model.ExtractedMetadata
	err      error
	calls    int
}

func (f *fakeExtractService) Extract(ctx context.Context, input ExtractInput) (*model.ExtractedMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.metadata, nil
}
