package es

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"brainly-go/internal/model"
	"brainly-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// newTestIndex 创建一个指向内存 HTTP 桩的 Index。
// 桩对 HEAD 请求（索引存在性检查）固定返回 200。
func newTestIndex(t *testing.T, dims int, handler http.HandlerFunc) (*Index, func()) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewIndex(client, "test_vectors", dims), server.Close
}

func writeHits(w http.ResponseWriter, ids []string) {
	hits := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]string{"_id": id})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{"hits": hits},
	})
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	searched := false
	idx, closeFn := newTestIndex(t, 4, func(w http.ResponseWriter, r *http.Request) {
		searched = true
	})
	defer closeFn()

	err := idx.Upsert(context.Background(), model.VectorDoc{
		ContentID: "c1",
		UserID:    "1",
		Vector:    []float32{0.1, 0.2},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	// 维度检查先于任何网络请求
	assert.False(t, searched)
}

func TestSearchAppliesUserFilter(t *testing.T) {
	var captured map[string]interface{}
	idx, closeFn := newTestIndex(t, 4, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeHits(w, []string{"c2", "c1"})
	})
	defer closeFn()

	ids, err := idx.Search(context.Background(), []float32{0.1, 0.2, 0.3, 0.4}, "42", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, ids)

	knn, ok := captured["knn"].(map[string]interface{})
	require.True(t, ok)
	filter := knn["filter"].(map[string]interface{})
	term := filter["term"].(map[string]interface{})
	assert.Equal(t, "42", term["user_id"])
}

func TestListIDsReturnsFullScanWindow(t *testing.T) {
	// 命中数正好达到扫描窗口上限：结果完整返回且不报错，
	// 超出窗口的点由下一次对账处理
	idx, closeFn := newTestIndex(t, 4, func(w http.ResponseWriter, r *http.Request) {
		hits := make([]string, 0, listScanCap)
		for i := 0; i < listScanCap; i++ {
			hits = append(hits, fmt.Sprintf("c%d", i))
		}
		writeHits(w, hits)
	})
	defer closeFn()

	ids, err := idx.ListIDs(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, ids, listScanCap)
}
