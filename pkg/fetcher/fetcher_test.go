package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

func newTestFetcher(maxTextLength int) *Fetcher {
	return NewFetcher(config.FetcherConfig{
		TimeoutSeconds: 2,
		MaxTextLength:  maxTextLength,
	})
}

func TestFetchExtractsMetadataAndBody(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
	<title>Test Page</title>
	<meta name="description" content="A page about testing.">
	<meta property="og:title" content="OG Test Page">
	<meta property="og:description" content="Open graph description.">
	<meta property="og:image" content="/images/preview.png">
	<script>var ignored = true;</script>
</head>
<body>
	<nav>site navigation</nav>
	<h1>Heading</h1>
	<p>Body paragraph with useful text.</p>
	<footer>footer junk</footer>
</body>
</html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	result := newTestFetcher(8000).Fetch(context.Background(), server.URL)

	assert.Contains(t, result.Text, "Title: Test Page")
	assert.Contains(t, result.Text, "OG Title: OG Test Page")
	assert.Contains(t, result.Text, "Description: A page about testing.")
	assert.Contains(t, result.Text, "Body paragraph with useful text.")
	// 噪音元素被剔除
	assert.NotContains(t, result.Text, "site navigation")
	assert.NotContains(t, result.Text, "footer junk")
	assert.NotContains(t, result.Text, "var ignored")
	// 相对预览图地址解析为绝对地址
	assert.Equal(t, server.URL+"/images/preview.png", result.PreviewImage)
}

func TestFetchDirectImageURLSkipsRequest(t *testing.T) {
	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer server.Close()

	imageURL := server.URL + "/photo.jpg"
	result := newTestFetcher(8000).Fetch(context.Background(), imageURL)

	assert.Equal(t, imageURL, result.PreviewImage)
	assert.Empty(t, result.Text)
	assert.False(t, requested, "图片 URL 不应发起网络请求")
}

func TestFetchNonHTMLContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer server.Close()

	result := newTestFetcher(8000).Fetch(context.Background(), server.URL)
	assert.Empty(t, result.Text)
}

func TestFetchServerErrorReturnsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := newTestFetcher(8000).Fetch(context.Background(), server.URL)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.PreviewImage)
}

func TestFetchInvalidURL(t *testing.T) {
	f := newTestFetcher(8000)
	assert.Equal(t, Result{}, f.Fetch(context.Background(), ""))
	assert.Equal(t, Result{}, f.Fetch(context.Background(), "ftp://example.com/file"))
	assert.Equal(t, Result{}, f.Fetch(context.Background(), "not a url at all"))
}

func TestFetchTruncatesLongText(t *testing.T) {
	longBody := strings.Repeat("word ", 2000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Long</title></head><body><p>" + longBody + "</p></body></html>"))
	}))
	defer server.Close()

	result := newTestFetcher(500).Fetch(context.Background(), server.URL)
	assert.LessOrEqual(t, len(result.Text), 500)
	assert.NotEmpty(t, result.Text)
}

func TestTruncateRunesKeepsRuneBoundary(t *testing.T) {
	s := "ab" + strings.Repeat("界", 10)

	// 上限落在多字节字符中间时回退到字符边界
	out := truncateRunes(s, 6)
	assert.Equal(t, "ab界", out)
	assert.True(t, utf8.ValidString(out))

	// 未超限时原样返回
	assert.Equal(t, s, truncateRunes(s, len(s)))
	assert.Equal(t, "", truncateRunes("界", 2))
}

func TestYoutubeVideoID(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/watch?v=abc123", "abc123"},
		{"https://youtu.be/xyz789", "xyz789"},
		{"https://www.youtube.com/shorts/short01", "short01"},
		{"https://m.youtube.com/watch?v=mob42", "mob42"},
		{"https://example.com/watch?v=nope", ""},
		{"https://www.youtube.com/channel/whatever", ""},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.rawURL)
		require.NoError(t, err)
		assert.Equal(t, tc.want, youtubeVideoID(u), tc.rawURL)
	}
}
