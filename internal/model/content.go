// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// ContentTypes 是允许的内容类型闭集。
var ContentTypes = []string{"image", "video", "article", "audio", "product", "youtube", "social", "link"}

// IsValidContentType 判断给定类型是否属于允许的闭集。
func IsValidContentType(t string) bool {
	for _, ct := range ContentTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Tag 是内容上的一个标签，标题在入库前已做归一化。
type Tag struct {
	TagID string `json:"tagId"`
	Title string `json:"title"`
}

// BasicMetadata 是用户侧/抓取侧的基础元数据。
type BasicMetadata struct {
	Thumbnail   string `json:"thumbnail,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
	Description string `json:"description,omitempty"`
}

// Content 对应于数据库中的 'contents' 表，每条记录归属且仅归属一个用户。
// ContentID 由调用方分配，与向量索引中的点一一对应。
type Content struct {
	ID                uint                                     `gorm:"primaryKey;autoIncrement" json:"-"`
	ContentID         string                                   `gorm:"type:varchar(64);not null;uniqueIndex" json:"contentId"`
	UserID            uint                                     `gorm:"not null;index" json:"userId"`
	Link              string                                   `gorm:"type:text;not null" json:"link"`
	Type              string                                   `gorm:"type:varchar(20);not null" json:"type"`
	Title             string                                   `gorm:"type:varchar(255);not null" json:"title"`
	Tags              datatypes.JSONSlice[Tag]                 `gorm:"type:json" json:"tags"`
	Position          int                                      `gorm:"not null;default:0" json:"position"`
	Metadata          datatypes.JSONType[BasicMetadata]        `gorm:"type:json" json:"metadata"`
	ExtractedMetadata datatypes.JSONType[*ExtractedMetadata]   `gorm:"type:json" json:"extractedMetadata"`
	CreatedAt         time.Time                                `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time                                `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Content) TableName() string {
	return "contents"
}

// TagCatalog 对应于数据库中的 'tags' 表，是全量标签目录。
type TagCatalog struct {
	TagID     string    `gorm:"type:varchar(64);primaryKey" json:"tagId"`
	Title     string    `gorm:"type:varchar(24);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TagCatalog) TableName() string {
	return "tags"
}

// PositionUpdate 是批量排序操作中的一项。
type PositionUpdate struct {
	ContentID string `json:"contentId" binding:"required"`
	Position  int    `json:"position"`
}

// SearchResultDTO 定义了返回给前端的搜索结果结构，按向量检索的相关度排序。
type SearchResultDTO struct {
	ContentID         string             `json:"contentId"`
	Title             string             `json:"title"`
	Link              string             `json:"link"`
	Type              string             `json:"type"`
	Tags              []Tag              `json:"tags"`
	CreatedAt         time.Time          `json:"createdAt"`
	ExtractedMetadata *ExtractedMetadata `json:"extractedMetadata,omitempty"`
}
