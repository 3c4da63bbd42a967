// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "strings"

// EntityItem 是抽取出的命名实体。
type EntityItem struct {
	Name string `json:"name"`
	Type string `json:"type"` // person|company|product|place|event|tool|other
}

// ExtractedMetadata 是抽取代理产出的结构化元数据。
// 它不独立持久化，始终作为 Content 的子对象存储。
type ExtractedMetadata struct {
	// Identity
	Title         string `json:"title"`
	SourceType    string `json:"source_type"`
	Platform      string `json:"platform"`
	Author        string `json:"author"`
	PublishedDate string `json:"published_date"`
	Language      string `json:"language"`
	// Content
	Summary        string   `json:"summary"`
	MainTopic      string   `json:"main_topic"`
	KeyPoints      []string `json:"key_points"`
	ContentSnippet string   `json:"content_snippet"`
	// Classification
	Tags       []string     `json:"tags"`
	Categories []string     `json:"categories"`
	Topics     []string     `json:"topics"`
	Entities   []EntityItem `json:"entities"`
	Keywords   []string     `json:"keywords"`
	Intent     string       `json:"intent"`
	Sentiment  string       `json:"sentiment"`
	// Source-specific extra fields
	SourceSpecific map[string]interface{} `json:"source_specific"`
	// EmbeddingText 是 200-500 词的稠密自然语言合成文本，
	// 仅作为向量化输入使用，不作为普通字段展示。
	EmbeddingText string `json:"embedding_text"`
	PreviewImage  string `json:"preview_image,omitempty"`
	// Editable 标记哪些字段允许用户覆盖。
	Editable map[string]bool `json:"_editable"`
}

// CleanedPayload 是 Content 的派生投影，仅作为向量化输入，从不落库。
// 给定同一个 Content，其结果是确定的。
type CleanedPayload struct {
	Title         string
	ContentID     string
	TagTitles     []string
	Description   string
	EmbeddingText string
}

// BuildCleanedPayload 从一条内容记录构造向量化载荷。
// extractedMetadata 的 embedding_text 优先于基础描述。
func BuildCleanedPayload(content *Content) CleanedPayload {
	tagTitles := make([]string, 0, len(content.Tags))
	for _, tag := range content.Tags {
		tagTitles = append(tagTitles, tag.Title)
	}

	payload := CleanedPayload{
		Title:       content.Title,
		ContentID:   content.ContentID,
		TagTitles:   tagTitles,
		Description: content.Metadata.Data().Description,
	}
	if em := content.ExtractedMetadata.Data(); em != nil {
		payload.EmbeddingText = em.EmbeddingText
	}
	return payload
}

// EmbeddingInput 把载荷的文本字段拼接为单条向量化输入。
func (p CleanedPayload) EmbeddingInput() string {
	parts := make([]string, 0, 3)
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if len(p.TagTitles) > 0 {
		parts = append(parts, strings.Join(p.TagTitles, " "))
	}
	// embedding_text 存在时覆盖基础描述
	if p.EmbeddingText != "" {
		parts = append(parts, p.EmbeddingText)
	} else if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, "\n")
}

// VectorDoc 代表存储在向量索引中的一个点。
// 文档 ID 即 contentId，与关系库记录一一对应；payload 冗余了
// 可过滤/可展示字段，其中 user_id 是多租户隔离的唯一分片键。
type VectorDoc struct {
	ContentID   string    `json:"content_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	TagTitles   []string  `json:"tag_titles,omitempty"`
	Type        string    `json:"type"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	MainTopic   string    `json:"main_topic,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	TagsAI      []string  `json:"tags_ai,omitempty"`
	SourceType  string    `json:"source_type,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Vector      []float32 `json:"vector"`
}
