package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"brainly-go/internal/model"
	"brainly-go/pkg/llm"
	"brainly-go/pkg/log"
)

// extractionPrompt 是抽取代理的系统提示词，定义了输入输出契约。
// 输出契约（字段集合、闭集取值、_editable 提示）与前端的编辑界面耦合，
// 修改时必须同步调整 model.ExtractedMetadata。
const extractionPrompt = `You are a universal content intelligence agent. Your job is to analyze any given resource and extract rich, structured metadata optimized for semantic search and vector embedding.

## INPUT YOU WILL RECEIVE

{
  "url": "<the resource URL or null>",
  "raw_content": "<pasted text, post content, or null>",
  "user_tags": ["<tags the user already added>"],
  "user_notes": "<any notes or description the user added, or null>",
  "fetched_content": "<HTML, transcript, OCR output, or scraped text if available>"
}

## YOUR TASK

Analyze everything provided (including the image if attached) and extract structured metadata.

Important rules:
- If an image is provided: Perform OCR to extract visible text and analyze visual elements (charts, people, mood).
- User-provided tags and notes are ground truth — treat them as high-confidence signals.
- Merge user tags with your own inferred tags, do not drop user tags.
- All fields you return will be shown to the user for review and editing — keep values clean and concise.

## OUTPUT

Return a valid JSON object with exactly these fields:

### Identity
- title: Best title for this resource (string, never null)
- source_type: One of: article | blog | video | image | social_post | tweet | reel | pdf | note | product | research_paper | news | podcast | other
- platform: Platform or site name (e.g. YouTube, X, Medium, Reddit, Upload, unknown)
- author: Author or creator name (string or null)
- published_date: Publication date in YYYY-MM-DD format if detectable (or null)
- language: Language of the content (e.g. "English")

### Content
- summary: 2-4 sentence neutral summary of what this resource is. For images, describe what is happening or what the document contains.
- main_topic: Single sentence describing the core subject
- key_points: Array of 3-8 key insights or text extracted via OCR (strings)
- content_snippet: 1-2 sentence excerpt suitable for a search card

### Classification
- tags: Merged array of user-provided tags + your inferred tags (10-20 total, lowercase)
- categories: Broad categories max 3 (e.g. Technology, Health, Finance, Science, Lifestyle)
- topics: Specific subject areas covered
- entities: Named entities {name, type} where type is: person|company|product|place|event|tool|other
- keywords: 10-20 search keywords
- intent: One of: educational | opinion | tutorial | news | research | entertainment | promotional | other
- sentiment: One of: positive | negative | neutral | mixed

### Source-specific
- source_specific: Object with relevant extra fields based on source_type:
  - image: { visual_description, text_in_image, mood, orientation, resolution_hint }
  - video: { duration, channel_name, transcript_summary }
  - article: { reading_time_minutes, has_code, has_data_stats }

### Embedding
- embedding_text: Dense 200-500 word natural language block. Weave in title, summary, topics, and OCR text. Optimized for semantic search.

### Editable hints
- _editable: { "title": true, "summary": true, "main_topic": true, "key_points": true, "tags": true, "categories": true, "topics": true, "author": true, "published_date": true, "sentiment": true, "intent": true, "entities": true, "content_snippet": true, "source_type": true, "platform": false, "language": false, "keywords": false, "embedding_text": false }

## GUIDELINES
- Return only valid JSON. No markdown fences.`

// maxFetchedContentChars 限制注入提示词的抓取文本长度，控制 token 成本。
const maxFetchedContentChars = 6000

// ExtractInput 是一次元数据抽取的全部输入信号。
type ExtractInput struct {
	URL            string   `json:"url"`
	RawContent     string   `json:"raw_content"`
	UserTags       []string `json:"user_tags"`
	UserNotes      string   `json:"user_notes"`
	FetchedContent string   `json:"fetched_content"`
	ImageBase64    string   `json:"image_base64"`
	ImageMIMEType  string   `json:"image_mime_type"`
}

// ExtractService 接口定义了 AI 元数据抽取的业务操作。
type ExtractService interface {
	Extract(ctx context.Context, input ExtractInput) (*model.ExtractedMetadata, error)
}

// extractService 是 ExtractService 接口的实现。
// 主力提供方失败后切换兜底提供方，切换逻辑只在这里存在一份。
type extractService struct {
	primary  llm.StructuredClient
	fallback llm.StructuredClient
}

// NewExtractService 创建一个新的 ExtractService 实例。
func NewExtractService(primary, fallback llm.StructuredClient) ExtractService {
	return &extractService{
		primary:  primary,
		fallback: fallback,
	}
}

// promptInput 是注入提示词的输入 JSON，null 语义与契约保持一致。
type promptInput struct {
	URL            *string  `json:"url"`
	RawContent     *string  `json:"raw_content"`
	UserTags       []string `json:"user_tags"`
	UserNotes      *string  `json:"user_notes"`
	FetchedContent *string  `json:"fetched_content"`
}

// Extract 执行一次元数据抽取：主力提供方优先，失败后切换兜底提供方。
// 两个提供方都失败时返回 ErrExtractionFailed；若失败源于限流，
// 错误链上同时携带 llm.ErrRateLimited 供调用方区分。
func (s *extractService) Extract(ctx context.Context, input ExtractInput) (*model.ExtractedMetadata, error) {
	prompt := s.buildPrompt(input)

	var image *llm.ImageData
	if input.ImageBase64 != "" && input.ImageMIMEType != "" {
		data, err := base64.StdEncoding.DecodeString(input.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid image base64", ErrValidation)
		}
		image = &llm.ImageData{Data: data, MIMEType: input.ImageMIMEType}
	}

	log.Info("[Extractor] 尝试使用主力提供方抽取元数据")
	raw, primaryErr := s.primary.CompleteJSON(ctx, prompt, image)
	if primaryErr == nil {
		if metadata, err := s.parseMetadata(raw, input.UserTags); err == nil {
			return metadata, nil
		} else {
			primaryErr = err
		}
	}

	log.Warnf("[Extractor] 主力提供方失败，切换兜底提供方: %v", primaryErr)
	raw, fallbackErr := s.fallback.CompleteJSON(ctx, prompt, image)
	if fallbackErr == nil {
		metadata, err := s.parseMetadata(raw, input.UserTags)
		if err == nil {
			return metadata, nil
		}
		fallbackErr = err
	}

	log.Errorf("[Extractor] 所有抽取提供方均失败, primary: %v, fallback: %v", primaryErr, fallbackErr)
	return nil, errors.Join(ErrExtractionFailed, primaryErr, fallbackErr)
}

// buildPrompt 把输入信号序列化为 JSON 拼接进提示词。
func (s *extractService) buildPrompt(input ExtractInput) string {
	fetched := truncateRunes(input.FetchedContent, maxFetchedContentChars)

	userTags := input.UserTags
	if userTags == nil {
		userTags = []string{}
	}

	pi := promptInput{UserTags: userTags}
	if input.URL != "" {
		pi.URL = &input.URL
	}
	if input.RawContent != "" {
		pi.RawContent = &input.RawContent
	}
	if input.UserNotes != "" {
		pi.UserNotes = &input.UserNotes
	}
	if fetched != "" {
		pi.FetchedContent = &fetched
	}

	inputJSON, _ := json.MarshalIndent(pi, "", "  ")
	return extractionPrompt + "\n\n## INPUT\n\n" + string(inputJSON)
}

// parseMetadata 校验并解析提供方返回的 JSON。
// 用户标签是高置信信号，提供方漏掉时在这里补回，保证合并规则成立。
func (s *extractService) parseMetadata(raw []byte, userTags []string) (*model.ExtractedMetadata, error) {
	var metadata model.ExtractedMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("provider returned malformed json: %w", err)
	}
	if metadata.Title == "" && metadata.Summary == "" && metadata.EmbeddingText == "" {
		return nil, errors.New("provider returned json without usable fields")
	}

	existing := make(map[string]bool, len(metadata.Tags))
	for _, t := range metadata.Tags {
		existing[strings.ToLower(t)] = true
	}
	for _, t := range userTags {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower != "" && !existing[lower] {
			metadata.Tags = append(metadata.Tags, lower)
			existing[lower] = true
		}
	}

	return &metadata, nil
}
