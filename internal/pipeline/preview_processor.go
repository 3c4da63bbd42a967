// Package pipeline 定义了异步任务的核心处理流程。
package pipeline

import (
	"context"
	"errors"
	"strconv"

	"brainly-go/internal/config"
	"brainly-go/internal/repository"
	"brainly-go/pkg/log"
	"brainly-go/pkg/storage"
	"brainly-go/pkg/tasks"
)

// PreviewProcessor 把外部预览图搬运到自有对象存储，并回写内容记录。
// 整个流程是入库的旁路副作用：失败由消费者按重试策略兜底，
// 最终仍失败时内容记录保留原始外链，不影响主数据。
type PreviewProcessor struct {
	minioCfg    config.MinIOConfig
	contentRepo repository.ContentRepository
}

// NewPreviewProcessor 创建一个新的 PreviewProcessor 实例。
func NewPreviewProcessor(minioCfg config.MinIOConfig, contentRepo repository.ContentRepository) *PreviewProcessor {
	return &PreviewProcessor{
		minioCfg:    minioCfg,
		contentRepo: contentRepo,
	}
}

// Process 处理一个预览图持久化任务。
func (p *PreviewProcessor) Process(ctx context.Context, task tasks.PreviewUploadTask) error {
	log.Infof("[PreviewProcessor] 开始处理预览图, contentId: %s", task.ContentID)

	userID, err := strconv.ParseUint(task.UserID, 10, 64)
	if err != nil {
		// 任务载荷损坏，重试无意义
		log.Errorf("[PreviewProcessor] 任务携带非法 userId: %q", task.UserID)
		return nil
	}

	// 1. 把图片搬运到对象存储
	var objectURL string
	switch {
	case task.ImageBase64 != "":
		objectURL = storage.UploadFromBase64(ctx, p.minioCfg, task.ImageBase64, task.MIMEType)
	case task.ImageURL != "":
		objectURL = storage.UploadFromURL(ctx, p.minioCfg, task.ImageURL)
	default:
		return nil
	}
	if objectURL == "" {
		return errors.New("failed to persist preview image")
	}

	// 2. 回写内容记录的预览图地址
	if err := p.contentRepo.UpdateThumbnail(uint(userID), task.ContentID, objectURL); err != nil {
		log.Errorf("[PreviewProcessor] 回写预览图地址失败, contentId: %s, error: %v", task.ContentID, err)
		return err
	}

	log.Infof("[PreviewProcessor] 预览图持久化完成, contentId: %s, url: %s", task.ContentID, objectURL)
	return nil
}
