package repository

import (
	"context"
	"errors"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigurationRepository 配置仓库
type ConfigurationRepository struct {
	db *gorm.DB
}

// NewConfigurationRepository 创建配置仓库
func NewConfigurationRepository(db *gorm.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// FindByID 根据ID查找配置
func (r *ConfigurationRepository) FindByID(ctx context.Context, id string) (*entity.Configuration, error) {
	var config entity.Configuration
	err := r.db.WithContext(ctx).
		Preload("Assembly").
		Where("id = ?", id).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &config, nil
}

// FindForUpdate 事务内按ID加行锁查找配置
// 并发BOM生成请求在这里串行化，败者在锁释放后读到新状态。
func (r *ConfigurationRepository) FindForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.Configuration, error) {
	var config entity.Configuration
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &config, nil
}

// ListVersions 订单行的配置版本列表
func (r *ConfigurationRepository) ListVersions(ctx context.Context, orderItemID string) ([]entity.Configuration, error) {
	var configs []entity.Configuration
	err := r.db.WithContext(ctx).
		Where("order_item_id = ?", orderItemID).
		Order("version DESC").
		Find(&configs).Error
	return configs, err
}

// Create 创建配置
func (r *ConfigurationRepository) Create(ctx context.Context, tx *gorm.DB, config *entity.Configuration) error {
	db := tx
	if db == nil {
		db = r.db
	}
	if config.ID == "" {
		config.ID = generateID()
	}
	return db.WithContext(ctx).Create(config).Error
}

// Update 更新配置
func (r *ConfigurationRepository) Update(ctx context.Context, tx *gorm.DB, config *entity.Configuration) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(config).Error
}
