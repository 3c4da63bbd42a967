package handler

import (
	"errors"
	"net/http"

	"brainly-go/internal/model"
	"brainly-go/internal/service"
	"brainly-go/pkg/es"
	"brainly-go/pkg/llm"
	"brainly-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ContentHandler 负责处理内容生命周期相关的 API 请求。
type ContentHandler struct {
	contentService service.ContentService
	searchService  service.SearchService
}

// NewContentHandler 创建一个新的 ContentHandler 实例。
func NewContentHandler(contentService service.ContentService, searchService service.SearchService) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		searchService:  searchService,
	}
}

// Create 处理新增内容请求。
// 抽取失败不影响保存：此时仍返回 200，响应中带 extractionFailed 标记。
func (h *ContentHandler) Create(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var input service.IngestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusLengthRequired, gin.H{"message": "Error in inputs", "error": err.Error()})
		return
	}

	result, err := h.contentService.Ingest(c.Request.Context(), user.ID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"content": result.Content}
	if result.ExtractionErr != nil {
		resp["extractionFailed"] = true
		resp["extractionError"] = result.ExtractionErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// List 返回当前用户的全部内容，按 position 排序。
func (h *ContentHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	contents, err := h.contentService.List(user.ID)
	if err != nil {
		log.Errorf("List: failed to load contents for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allContent": contents})
}

// Update 处理更新内容请求。
func (h *ContentHandler) Update(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var input service.IngestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusLengthRequired, gin.H{"message": "Error in inputs", "error": err.Error()})
		return
	}

	content, err := h.contentService.Update(c.Request.Context(), user.ID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Content updated successfully",
		"updatedContent": content,
	})
}

// DeleteRequest 定义了删除内容 API 的请求体结构。
type DeleteRequest struct {
	ContentID string `json:"contentId" binding:"required"`
}

// Delete 处理删除内容请求，记录与向量点一起删除。
func (h *ContentHandler) Delete(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Content ID is required for deletion"})
		return
	}

	if err := h.contentService.Remove(c.Request.Context(), user.ID, req.ContentID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

// ReorderRequest 定义了批量排序 API 的请求体结构。
type ReorderRequest struct {
	Positions []model.PositionUpdate `json:"positions" binding:"required"`
}

// Reorder 处理批量排序请求，只更新关系库中的位置。
func (h *ContentHandler) Reorder(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Positions array is required"})
		return
	}

	if err := h.contentService.Reorder(user.ID, req.Positions); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order updated successfully"})
}

// SearchRequest 定义了语义检索 API 的请求体结构。
type SearchRequest struct {
	Search string `json:"search" binding:"required"`
	Limit  int    `json:"limit"`
}

// Search 处理语义检索请求，结果按相关度排序。
func (h *ContentHandler) Search(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Search query is required"})
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), user.ID, req.Search, req.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"search": results})
}

// ReindexRequest 定义了重建向量点 API 的请求体结构。
type ReindexRequest struct {
	ContentID string `json:"contentId" binding:"required"`
}

// Reindex 用关系库中的当前状态重建一条内容的向量点。
func (h *ContentHandler) Reindex(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Content ID is required"})
		return
	}

	if err := h.contentService.Reindex(c.Request.Context(), user.ID, req.ContentID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reindexed"})
}

// Reconcile 清理当前用户的孤儿向量点。
func (h *ContentHandler) Reconcile(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	removed, err := h.contentService.ReconcileUser(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Tags 返回全量标签目录。
func (h *ContentHandler) Tags(c *gin.Context) {
	tags, err := h.contentService.ListTags()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// writeError 把业务层哨兵错误映射为 HTTP 状态码。
func (h *ContentHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusLengthRequired, gin.H{"message": "Error in inputs", "error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Content not found or you're not authorized to update it"})
	case errors.Is(err, llm.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "AI provider rate limited, try again later"})
	case errors.Is(err, es.ErrDimensionMismatch):
		log.Errorf("向量维度配置错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Vector index misconfigured"})
	default:
		log.Errorf("未分类的业务错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
	}
}
