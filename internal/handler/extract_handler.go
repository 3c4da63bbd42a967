package handler

import (
	"errors"
	"net/http"

	"brainly-go/internal/service"
	"brainly-go/pkg/llm"
	"brainly-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExtractHandler 负责处理元数据抽取预览请求。
// 预览只做抽取不落库，用户在前端确认后才通过 POST /content 保存。
type ExtractHandler struct {
	extractService service.ExtractService
	fetcher        service.ResourceFetcher
}

// NewExtractHandler 创建一个新的 ExtractHandler 实例。
func NewExtractHandler(extractService service.ExtractService, resourceFetcher service.ResourceFetcher) *ExtractHandler {
	return &ExtractHandler{
		extractService: extractService,
		fetcher:        resourceFetcher,
	}
}

// ExtractRequest 定义了抽取预览 API 的请求体结构。
type ExtractRequest struct {
	URL           string   `json:"url"`
	RawContent    string   `json:"raw_content"`
	UserTags      []string `json:"user_tags"`
	UserNotes     string   `json:"user_notes"`
	ImageBase64   string   `json:"image_base64"`
	ImageMIMEType string   `json:"image_mime_type"`
}

// Extract 处理抽取预览请求：可选抓取 + AI 抽取，返回结构化元数据。
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if req.URL == "" && req.RawContent == "" && req.ImageBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Provide either a url or raw_content to extract metadata from",
		})
		return
	}

	// 1. 提供了 URL 时先抓取页面内容
	fetchedContent := ""
	if req.URL != "" {
		log.Infof("[ExtractHandler] 抓取页面内容: %s", req.URL)
		result := h.fetcher.Fetch(c.Request.Context(), req.URL)
		fetchedContent = result.Text
	}

	// 2. 构造输入并调用抽取代理
	metadata, err := h.extractService.Extract(c.Request.Context(), service.ExtractInput{
		URL:            req.URL,
		RawContent:     req.RawContent,
		UserTags:       req.UserTags,
		UserNotes:      req.UserNotes,
		FetchedContent: fetchedContent,
		ImageBase64:    req.ImageBase64,
		ImageMIMEType:  req.ImageMIMEType,
	})
	if err != nil {
		log.Errorf("[ExtractHandler] 抽取失败: %v", err)
		if errors.Is(err, llm.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "AI provider rate limited, try again later",
			})
			return
		}
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Metadata extraction failed",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"metadata": metadata,
	})
}
