// Package fetcher 提供了单页抓取能力，为元数据抽取准备上下文。
//
// 抓取是尽力而为的：网络错误、超时、非 200 状态一律吞掉并返回空结果，
// 抓取失败只会降低元数据质量，绝不能让整个入库流程失败。
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Result 是一次抓取的产出。
type Result struct {
	// Text 是拼接后的页面文本（标题、描述、正文），已按上限截断。
	Text string
	// PreviewImage 是尽力发现的预览图 URL，可能为空。
	PreviewImage string
}

// Fetcher 执行有界超时的单页抓取。
type Fetcher struct {
	cfg    config.FetcherConfig
	client *http.Client
}

// NewFetcher 创建一个新的 Fetcher 实例。
func NewFetcher(cfg config.FetcherConfig) *Fetcher {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = 8000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; BrainlyBot/1.0; +https://brainly.app)"
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".avif": true, ".bmp": true,
}

// Fetch 抓取一个 URL 的可渲染文本与预览图。
// 非法或非 HTTP URL 返回空结果，不报错。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	if rawURL == "" || !strings.HasPrefix(rawURL, "http") {
		return Result{}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}
	}

	// URL 本身就是图片时直接返回，无需发起网络请求
	if imageExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return Result{PreviewImage: rawURL}
	}

	// YouTube 链接的缩略图 URL 是确定性的，不依赖 OG 标签
	previewImage := ""
	if id := youtubeVideoID(parsed); id != "" {
		previewImage = fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{PreviewImage: previewImage}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warnf("[Fetcher] 抓取失败, url: %s, error: %v", rawURL, err)
		return Result{PreviewImage: previewImage}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[Fetcher] 抓取返回非 200 状态码, url: %s, status: %d", rawURL, resp.StatusCode)
		return Result{PreviewImage: previewImage}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return Result{PreviewImage: previewImage}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		log.Warnf("[Fetcher] 解析 HTML 失败, url: %s, error: %v", rawURL, err)
		return Result{PreviewImage: previewImage}
	}

	meta := collectMeta(doc, parsed)
	if previewImage == "" {
		previewImage = meta.ogImage
	}

	stripNoise(doc)
	bodyText := flattenBody(doc)

	parts := make([]string, 0, 5)
	if meta.pageTitle != "" {
		parts = append(parts, "Title: "+meta.pageTitle)
	}
	if meta.ogTitle != "" && meta.ogTitle != meta.pageTitle {
		parts = append(parts, "OG Title: "+meta.ogTitle)
	}
	if meta.metaDesc != "" {
		parts = append(parts, "Description: "+meta.metaDesc)
	}
	if meta.ogDesc != "" && meta.ogDesc != meta.metaDesc {
		parts = append(parts, "OG Description: "+meta.ogDesc)
	}
	if bodyText != "" {
		parts = append(parts, "Content: "+bodyText)
	}

	// 截断以控制下游 token 成本
	combined := truncateRunes(strings.Join(parts, "\n\n"), f.cfg.MaxTextLength)

	return Result{Text: combined, PreviewImage: previewImage}
}

// truncateRunes 把字符串截断到不超过 max 字节，且不切断多字节字符。
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// youtubeVideoID 从 youtube.com/watch?v= 或 youtu.be/ 链接提取视频 ID。
func youtubeVideoID(u *url.URL) string {
	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			return strings.TrimPrefix(u.Path, "/shorts/")
		}
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	}
	return ""
}

type pageMeta struct {
	pageTitle string
	ogTitle   string
	metaDesc  string
	ogDesc    string
	ogImage   string
}

// collectMeta 遍历文档收集 title 与 OG/Twitter 元信息。
// 相对的预览图地址会基于原始 URL 解析为绝对地址。
func collectMeta(doc *html.Node, base *url.URL) pageMeta {
	var meta pageMeta
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if meta.pageTitle == "" && n.FirstChild != nil {
					meta.pageTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := attr(n, "name")
				property := attr(n, "property")
				content := attr(n, "content")
				if content == "" {
					break
				}
				switch {
				case name == "description":
					meta.metaDesc = content
				case property == "og:title":
					meta.ogTitle = content
				case property == "og:description":
					meta.ogDesc = content
				case property == "og:image" || name == "twitter:image":
					if meta.ogImage == "" {
						if ref, err := url.Parse(content); err == nil {
							meta.ogImage = base.ResolveReference(ref).String()
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

var noiseElements = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "aside": true, "noscript": true, "iframe": true, "svg": true,
}

// stripNoise 原地删除非正文元素。
func stripNoise(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && noiseElements[c.Data] {
			n.RemoveChild(c)
			continue
		}
		stripNoise(c)
	}
}

// flattenBody 将去噪后的正文转换为紧凑的 Markdown 文本。
func flattenBody(doc *html.Node) string {
	md, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		log.Warnf("[Fetcher] 正文转换失败: %v", err)
		return ""
	}
	// 归一空白，保持单行上下文块
	fields := strings.Fields(string(md))
	return strings.Join(fields, " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
