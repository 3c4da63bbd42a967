package repository

import (
	"brainly-go/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentRepository 接口定义了内容记录的持久化操作。
// 所有读写都以 userID 为作用域，越权访问在仓储层就被挡住。
type ContentRepository interface {
	Create(content *model.Content) error
	Update(content *model.Content) error
	FindByUser(userID uint) ([]model.Content, error)
	FindByContentID(userID uint, contentID string) (*model.Content, error)
	FindByContentIDs(userID uint, contentIDs []string) ([]model.Content, error)
	DeleteByContentID(userID uint, contentID string) (int64, error)
	BulkUpdatePositions(userID uint, updates []model.PositionUpdate) error
	MaxPosition(userID uint) (int, error)
	ListContentIDs(userID uint) ([]string, error)
	UpdateThumbnail(userID uint, contentID, thumbnail string) error
}

// contentRepository 是 ContentRepository 接口的 GORM 实现。
type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository 创建一个新的 ContentRepository 实例。
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

// Create 在数据库中创建一条新的内容记录。
func (r *contentRepository) Create(content *model.Content) error {
	return r.db.Create(content).Error
}

// Update 更新数据库中一条已存在的内容记录。
func (r *contentRepository) Update(content *model.Content) error {
	return r.db.Save(content).Error
}

// FindByUser 返回指定用户的全部内容，按 position 升序排列。
func (r *contentRepository) FindByUser(userID uint) ([]model.Content, error) {
	var contents []model.Content
	err := r.db.Where("user_id = ?", userID).
		Order("position ASC, created_at DESC").
		Find(&contents).Error
	return contents, err
}

// FindByContentID 在指定用户的作用域内按 contentId 查找一条内容。
func (r *contentRepository) FindByContentID(userID uint, contentID string) (*model.Content, error) {
	var content model.Content
	err := r.db.Where("user_id = ? AND content_id = ?", userID, contentID).First(&content).Error
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// FindByContentIDs 在指定用户的作用域内批量查找内容，
// 返回顺序由数据库决定，调用方需要按自己的顺序重排。
func (r *contentRepository) FindByContentIDs(userID uint, contentIDs []string) ([]model.Content, error) {
	if len(contentIDs) == 0 {
		return []model.Content{}, nil
	}
	var contents []model.Content
	err := r.db.Where("user_id = ? AND content_id IN ?", userID, contentIDs).Find(&contents).Error
	return contents, err
}

// DeleteByContentID 删除指定用户的一条内容，返回受影响的行数。
// 行数为 0 表示该内容不存在或不属于该用户。
func (r *contentRepository) DeleteByContentID(userID uint, contentID string) (int64, error) {
	result := r.db.Where("user_id = ? AND content_id = ?", userID, contentID).Delete(&model.Content{})
	return result.RowsAffected, result.Error
}

// BulkUpdatePositions 在一个事务中批量更新排序位置。
// 不属于该用户的 contentId 不会产生任何效果。
func (r *contentRepository) BulkUpdatePositions(userID uint, updates []model.PositionUpdate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&model.Content{}).
				Where("user_id = ? AND content_id = ?", userID, u.ContentID).
				Update("position", u.Position).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// MaxPosition 返回指定用户当前最大的排序位置，无记录时返回 0。
func (r *contentRepository) MaxPosition(userID uint) (int, error) {
	var max int
	err := r.db.Model(&model.Content{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	return max, err
}

// ListContentIDs 返回指定用户全部内容的 contentId，供对账使用。
func (r *contentRepository) ListContentIDs(userID uint) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.Content{}).
		Where("user_id = ?", userID).
		Pluck("content_id", &ids).Error
	return ids, err
}

// UpdateThumbnail 更新一条内容的预览图地址（JSON 列的读改写）。
func (r *contentRepository) UpdateThumbnail(userID uint, contentID, thumbnail string) error {
	content, err := r.FindByContentID(userID, contentID)
	if err != nil {
		return err
	}
	meta := content.Metadata.Data()
	meta.Thumbnail = thumbnail
	content.Metadata = datatypes.NewJSONType(meta)
	return r.db.Save(content).Error
}
