package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"brainly-go/internal/model"
	"brainly-go/internal/repository"
	"brainly-go/pkg/embedding"
	"brainly-go/pkg/fetcher"
	"brainly-go/pkg/log"
	"brainly-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VectorIndex 定义了内容服务依赖的向量索引能力，由 pkg/es 实现。
type VectorIndex interface {
	Upsert(ctx context.Context, doc model.VectorDoc) error
	Search(ctx context.Context, vector []float32, userID string, limit int) ([]string, error)
	Delete(ctx context.Context, contentID string) error
	ListIDs(ctx context.Context, userID string) ([]string, error)
}

// ResourceFetcher 定义了内容服务依赖的网页抓取能力。
type ResourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) fetcher.Result
}

// PreviewPublisher 把预览图持久化任务投递到消息队列。
// 投递失败只记日志，绝不阻塞主流程。
type PreviewPublisher func(task tasks.PreviewUploadTask) error

// IngestInput 是新增/更新一条内容的请求载荷。
type IngestInput struct {
	ContentID         string                   `json:"contentId" binding:"required"`
	Link              string                   `json:"link"`
	Type              string                   `json:"type" binding:"required"`
	Title             string                   `json:"title" binding:"required"`
	Tags              []model.Tag              `json:"tags"`
	Metadata          model.BasicMetadata      `json:"metadata"`
	ExtractedMetadata *model.ExtractedMetadata `json:"extractedMetadata"`
	// AutoExtract 为 true 且未携带 extractedMetadata 时，入库前内联执行一次抽取。
	AutoExtract   bool   `json:"autoExtract"`
	RawContent    string `json:"rawContent"`
	UserNotes     string `json:"userNotes"`
	ImageBase64   string `json:"imageBase64"`
	ImageMIMEType string `json:"imageMimeType"`
}

// IngestResult 是一次入库的结果。
// ExtractionErr 不为 nil 表示内容已保存但抽取失败（部分成功）：
// 用户的原始输入永远不因 AI 提供方故障而丢失。
type IngestResult struct {
	Content       *model.Content
	ExtractionErr error
}

// ContentService 接口定义了内容的全生命周期业务操作。
type ContentService interface {
	Ingest(ctx context.Context, userID uint, input IngestInput) (*IngestResult, error)
	Update(ctx context.Context, userID uint, input IngestInput) (*model.Content, error)
	List(userID uint) ([]model.Content, error)
	Remove(ctx context.Context, userID uint, contentID string) error
	Reorder(userID uint, updates []model.PositionUpdate) error
	Reindex(ctx context.Context, userID uint, contentID string) error
	ReconcileUser(ctx context.Context, userID uint) (int, error)
	ListTags() ([]model.TagCatalog, error)
}

// contentService 是 ContentService 接口的实现。
type contentService struct {
	contentRepo    repository.ContentRepository
	tagRepo        repository.TagRepository
	index          VectorIndex
	embedder       embedding.Client
	fetcher        ResourceFetcher
	extractService ExtractService
	publishPreview PreviewPublisher
}

// NewContentService 创建一个新的 ContentService 实例。
func NewContentService(
	contentRepo repository.ContentRepository,
	tagRepo repository.TagRepository,
	index VectorIndex,
	embedder embedding.Client,
	resourceFetcher ResourceFetcher,
	extractService ExtractService,
	publishPreview PreviewPublisher,
) ContentService {
	return &contentService{
		contentRepo:    contentRepo,
		tagRepo:        tagRepo,
		index:          index,
		embedder:       embedder,
		fetcher:        resourceFetcher,
		extractService: extractService,
		publishPreview: publishPreview,
	}
}

// tagSanitizePattern 匹配标签标题中需要替换为 '-' 的字符。
var tagSanitizePattern = regexp.MustCompile(`[&/\\#, +()$~%.'":*?<>{}]`)

// maxTagTitleLength 是标签标题的字节长度上限。
const maxTagTitleLength = 24

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

// NormalizeTags 归一化标签：小写、去首尾空白、特殊字符替换为 '-'、
// 截断到长度上限、去重；缺失 tagId 的标签分配新 ID。
// 归一化后为空的标签被丢弃。
func NormalizeTags(tagList []model.Tag) []model.Tag {
	seen := make(map[string]bool, len(tagList))
	normalized := make([]model.Tag, 0, len(tagList))
	for _, tag := range tagList {
		title := strings.ToLower(strings.TrimSpace(tag.Title))
		title = tagSanitizePattern.ReplaceAllString(title, "-")
		title = truncateRunes(title, maxTagTitleLength)
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true

		tagID := tag.TagID
		if tagID == "" {
			tagID = uuid.NewString()
		}
		normalized = append(normalized, model.Tag{TagID: tagID, Title: title})
	}
	return normalized
}

// Ingest 入库一条新内容。
// 先写向量索引再写关系库：关系库记录一旦可见，它就一定可被检索到；
// 反向的孤儿向量点由 ReconcileUser 兜底清理。
// 抽取失败不阻断保存，错误随 IngestResult.ExtractionErr 返回。
func (s *contentService) Ingest(ctx context.Context, userID uint, input IngestInput) (*IngestResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	input.Tags = NormalizeTags(input.Tags)
	if err := s.tagRepo.UpsertAll(input.Tags); err != nil {
		log.Errorf("[ContentService] 更新标签目录失败: %v", err)
		return nil, fmt.Errorf("failed to upsert tags: %w", err)
	}

	// 可选的内联抽取：失败降级为部分保存
	var extractionErr error
	previewImage := ""
	if input.ExtractedMetadata == nil && input.AutoExtract {
		metadata, fetchedPreview, err := s.runExtraction(ctx, input)
		if err != nil {
			log.Warnf("[ContentService] 内联抽取失败，降级为部分保存, contentId: %s, error: %v", input.ContentID, err)
			extractionErr = err
		} else {
			input.ExtractedMetadata = metadata
		}
		previewImage = fetchedPreview
	}
	if previewImage == "" && input.ExtractedMetadata != nil {
		previewImage = input.ExtractedMetadata.PreviewImage
	}

	maxPos, err := s.contentRepo.MaxPosition(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute position: %w", err)
	}

	content := &model.Content{
		ContentID:         input.ContentID,
		UserID:            userID,
		Link:              input.Link,
		Type:              input.Type,
		Title:             input.Title,
		Tags:              datatypes.NewJSONSlice(input.Tags),
		Position:          maxPos + 1,
		Metadata:          datatypes.NewJSONType(input.Metadata),
		ExtractedMetadata: datatypes.NewJSONType(input.ExtractedMetadata),
	}

	if err := s.upsertVector(ctx, content); err != nil {
		return nil, err
	}

	if err := s.contentRepo.Create(content); err != nil {
		log.Errorf("[ContentService] 写入内容记录失败, contentId: %s, error: %v", content.ContentID, err)
		return nil, fmt.Errorf("failed to create content: %w", err)
	}
	log.Infof("[ContentService] 内容入库成功, contentId: %s, userId: %d", content.ContentID, userID)

	s.schedulePreviewUpload(content, previewImage, input)

	return &IngestResult{Content: content, ExtractionErr: extractionErr}, nil
}

// Update 更新一条已有内容并重建其向量点。
func (s *contentService) Update(ctx context.Context, userID uint, input IngestInput) (*model.Content, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	content, err := s.contentRepo.FindByContentID(userID, input.ContentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	input.Tags = NormalizeTags(input.Tags)
	if err := s.tagRepo.UpsertAll(input.Tags); err != nil {
		return nil, fmt.Errorf("failed to upsert tags: %w", err)
	}

	content.Link = input.Link
	content.Type = input.Type
	content.Title = input.Title
	content.Tags = datatypes.NewJSONSlice(input.Tags)
	if input.ExtractedMetadata != nil {
		content.ExtractedMetadata = datatypes.NewJSONType(input.ExtractedMetadata)
	}

	if err := s.upsertVector(ctx, content); err != nil {
		return nil, err
	}

	if err := s.contentRepo.Update(content); err != nil {
		return nil, fmt.Errorf("failed to update content: %w", err)
	}
	log.Infof("[ContentService] 内容更新成功, contentId: %s", content.ContentID)
	return content, nil
}

// List 返回用户的全部内容，按 position 排序。
func (s *contentService) List(userID uint) ([]model.Content, error) {
	return s.contentRepo.FindByUser(userID)
}

// Remove 删除一条内容：记录与向量点一起消失。
// 删除是幂等的：contentId 从未入库（或不归属该用户）时直接返回成功，
// 不触达向量索引，保证不会误删其他用户的向量点。
func (s *contentService) Remove(ctx context.Context, userID uint, contentID string) error {
	if contentID == "" {
		return fmt.Errorf("%w: contentId is required", ErrValidation)
	}

	rows, err := s.contentRepo.DeleteByContentID(userID, contentID)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if rows == 0 {
		log.Infof("[ContentService] 删除的内容不存在，按幂等语义返回成功, contentId: %s, userId: %d", contentID, userID)
		return nil
	}

	if err := s.index.Delete(ctx, contentID); err != nil {
		// 记录已删、向量点还在：留给对账清理，不回滚删除
		log.Errorf("[ContentService] 删除向量点失败, contentId: %s, error: %v", contentID, err)
		return fmt.Errorf("content deleted but vector cleanup failed: %w", err)
	}

	log.Infof("[ContentService] 内容删除成功, contentId: %s", contentID)
	return nil
}

// Reorder 批量更新排序位置，只触达关系库。
// 不属于该用户的 contentId 被静默忽略，重复提交同一组位置是幂等的。
func (s *contentService) Reorder(userID uint, updates []model.PositionUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: positions array is required", ErrValidation)
	}
	return s.contentRepo.BulkUpdatePositions(userID, updates)
}

// Reindex 用关系库中的当前状态重建一条内容的向量点。
func (s *contentService) Reindex(ctx context.Context, userID uint, contentID string) error {
	content, err := s.contentRepo.FindByContentID(userID, contentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}
	return s.upsertVector(ctx, content)
}

// ReconcileUser 清理向量索引中没有对应关系库记录的孤儿点，返回清理数量。
// 孤儿点来源于"向量已写、记录未写"的中断入库。
func (s *contentService) ReconcileUser(ctx context.Context, userID uint) (int, error) {
	indexIDs, err := s.index.ListIDs(ctx, formatUserID(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to list vector points: %w", err)
	}
	dbIDs, err := s.contentRepo.ListContentIDs(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list content ids: %w", err)
	}

	known := make(map[string]bool, len(dbIDs))
	for _, id := range dbIDs {
		known[id] = true
	}

	removed := 0
	for _, id := range indexIDs {
		if known[id] {
			continue
		}
		if err := s.index.Delete(ctx, id); err != nil {
			log.Errorf("[ContentService] 清理孤儿向量点失败, contentId: %s, error: %v", id, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("[ContentService] 对账完成, userId: %d, 清理孤儿向量点 %d 个", userID, removed)
	}
	return removed, nil
}

// ListTags 返回全量标签目录。
func (s *contentService) ListTags() ([]model.TagCatalog, error) {
	return s.tagRepo.FindAll()
}

// runExtraction 抓取资源并执行 AI 抽取，返回元数据与尽力发现的预览图。
func (s *contentService) runExtraction(ctx context.Context, input IngestInput) (*model.ExtractedMetadata, string, error) {
	fetched := fetcher.Result{}
	if input.Link != "" {
		fetched = s.fetcher.Fetch(ctx, input.Link)
	}

	userTags := make([]string, 0, len(input.Tags))
	for _, tag := range input.Tags {
		userTags = append(userTags, tag.Title)
	}

	metadata, err := s.extractService.Extract(ctx, ExtractInput{
		URL:            input.Link,
		RawContent:     input.RawContent,
		UserTags:       userTags,
		UserNotes:      input.UserNotes,
		FetchedContent: fetched.Text,
		ImageBase64:    input.ImageBase64,
		ImageMIMEType:  input.ImageMIMEType,
	})
	if err != nil {
		return nil, fetched.PreviewImage, err
	}
	if metadata.PreviewImage == "" {
		metadata.PreviewImage = fetched.PreviewImage
	}
	return metadata, fetched.PreviewImage, nil
}

// upsertVector 把一条内容向量化并写入向量索引。
func (s *contentService) upsertVector(ctx context.Context, content *model.Content) error {
	payload := model.BuildCleanedPayload(content)
	vector, err := s.embedder.EmbedForIndexing(ctx, payload.EmbeddingInput())
	if err != nil {
		log.Errorf("[ContentService] 文档向量化失败, contentId: %s, error: %v", content.ContentID, err)
		return fmt.Errorf("failed to embed content: %w", err)
	}

	doc := model.VectorDoc{
		ContentID:   content.ContentID,
		UserID:      formatUserID(content.UserID),
		Title:       content.Title,
		TagTitles:   payload.TagTitles,
		Type:        content.Type,
		Link:        content.Link,
		Description: content.Metadata.Data().Description,
		Vector:      vector,
	}
	if em := content.ExtractedMetadata.Data(); em != nil {
		doc.Summary = em.Summary
		doc.MainTopic = em.MainTopic
		doc.Topics = em.Topics
		doc.TagsAI = em.Tags
		doc.SourceType = em.SourceType
		doc.Sentiment = em.Sentiment
		doc.Intent = em.Intent
	}

	if err := s.index.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert vector point: %w", err)
	}
	return nil
}

// schedulePreviewUpload 投递预览图持久化任务（尽力而为的副作用）。
func (s *contentService) schedulePreviewUpload(content *model.Content, previewImage string, input IngestInput) {
	if s.publishPreview == nil {
		return
	}
	if previewImage == "" && input.ImageBase64 == "" {
		return
	}

	task := tasks.PreviewUploadTask{
		ContentID:   content.ContentID,
		UserID:      formatUserID(content.UserID),
		ImageURL:    previewImage,
		ImageBase64: input.ImageBase64,
		MIMEType:    input.ImageMIMEType,
	}
	if err := s.publishPreview(task); err != nil {
		log.Errorf("[ContentService] 投递预览图任务失败, contentId: %s, error: %v", content.ContentID, err)
	}
}

// validateInput 校验入库载荷的必填项与类型闭集。
func validateInput(input *IngestInput) error {
	if input.ContentID == "" {
		return fmt.Errorf("%w: contentId is required", ErrValidation)
	}
	if input.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !model.IsValidContentType(input.Type) {
		return fmt.Errorf("%w: unknown content type %q", ErrValidation, input.Type)
	}
	return nil
}

func formatUserID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
