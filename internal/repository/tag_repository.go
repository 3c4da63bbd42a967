package repository

import (
	"brainly-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository 接口定义了全量标签目录的持久化操作。
type TagRepository interface {
	UpsertAll(tags []model.Tag) error
	FindAll() ([]model.TagCatalog, error)
}

// tagRepository 是 TagRepository 接口的 GORM 实现。
type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository 创建一个新的 TagRepository 实例。
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// UpsertAll 将标签批量写入目录，已存在的标签保持不变。
func (r *tagRepository) UpsertAll(tags []model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	records := make([]model.TagCatalog, 0, len(tags))
	for _, t := range tags {
		records = append(records, model.TagCatalog{TagID: t.TagID, Title: t.Title})
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

// FindAll 返回全量标签目录。
func (r *tagRepository) FindAll() ([]model.TagCatalog, error) {
	var tags []model.TagCatalog
	err := r.db.Order("created_at DESC").Find(&tags).Error
	return tags, err
}
