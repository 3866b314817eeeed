package repository

import (
	"context"
	"errors"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
)

// BOMRepository BOM仓库
type BOMRepository struct {
	db *gorm.DB
}

// NewBOMRepository 创建BOM仓库
func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// GetByID 根据ID获取BOM（含行项）。tx为nil时使用默认连接。
func (r *BOMRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*entity.BOMHeader, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var bom entity.BOMHeader
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_number ASC")
		}).
		Preload("Assembly").
		Where("id = ?", id).
		First(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bom, nil
}

// FindActiveByConfiguration 配置当前的Active BOM
func (r *BOMRepository) FindActiveByConfiguration(ctx context.Context, tx *gorm.DB, configurationID string) (*entity.BOMHeader, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var bom entity.BOMHeader
	err := db.WithContext(ctx).
		Where("configuration_id = ? AND status = ?", configurationID, entity.BOMStatusActive).
		First(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bom, nil
}

// ListVersions 配置的BOM版本列表
func (r *BOMRepository) ListVersions(ctx context.Context, configurationID string) ([]entity.BOMHeader, error) {
	var boms []entity.BOMHeader
	err := r.db.WithContext(ctx).
		Where("configuration_id = ?", configurationID).
		Order("version DESC").
		Find(&boms).Error
	return boms, err
}

// MaxVersion 配置历史BOM的最大版本号
func (r *BOMRepository) MaxVersion(ctx context.Context, tx *gorm.DB, configurationID string) (int, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var max int
	err := db.WithContext(ctx).
		Model(&entity.BOMHeader{}).
		Where("configuration_id = ?", configurationID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	return max, err
}

// CreateHeader 事务内创建BOM头
func (r *BOMRepository) CreateHeader(ctx context.Context, tx *gorm.DB, bom *entity.BOMHeader) error {
	if bom.ID == "" {
		bom.ID = generateID()
	}
	return tx.WithContext(ctx).Create(bom).Error
}

// CreateItems 事务内批量创建BOM行项
func (r *BOMRepository) CreateItems(ctx context.Context, tx *gorm.DB, items []entity.BOMLineItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = generateID()
		}
	}
	return tx.WithContext(ctx).Create(&items).Error
}

// UpdateHeader 事务内更新BOM头
func (r *BOMRepository) UpdateHeader(ctx context.Context, tx *gorm.DB, bom *entity.BOMHeader) error {
	return tx.WithContext(ctx).Save(bom).Error
}

// SupersedeActive 事务内将配置当前Active BOM标记为Superseded
// 返回被替代的BOM ID，没有Active BOM时返回空串。
func (r *BOMRepository) SupersedeActive(ctx context.Context, tx *gorm.DB, configurationID string) (string, error) {
	prior, err := r.FindActiveByConfiguration(ctx, tx, configurationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	now := time.Now()
	prior.Status = entity.BOMStatusSuperseded
	prior.SupersededAt = &now
	prior.UpdatedAt = now
	if err := tx.WithContext(ctx).Save(prior).Error; err != nil {
		return "", err
	}
	return prior.ID, nil
}
