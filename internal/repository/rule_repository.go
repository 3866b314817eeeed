package repository

import (
	"context"
	"errors"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
)

// RuleRepository 配置规则仓库
type RuleRepository struct {
	db *gorm.DB
}

// NewRuleRepository 创建规则仓库
func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// FindByID 根据ID查找规则
func (r *RuleRepository) FindByID(ctx context.Context, id string) (*entity.ConfigurationRule, error) {
	var rule entity.ConfigurationRule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// ListForScope 指定装配体/类别范围内的生效规则
// 按(priority, name)升序，保证评估顺序确定。
func (r *RuleRepository) ListForScope(ctx context.Context, tx *gorm.DB, assemblyID, categoryID string, kinds ...string) ([]entity.ConfigurationRule, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	query := db.WithContext(ctx).
		Where("status = ?", entity.RuleStatusActive).
		Where(
			db.Where("assembly_id = ?", assemblyID).
				Or("assembly_id = '' AND category_id = ?", categoryID).
				Or("assembly_id = '' AND category_id = ''"),
		)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}

	var rules []entity.ConfigurationRule
	err := query.Order("priority ASC, name ASC").Find(&rules).Error
	return rules, err
}

// List 全量规则（含停用），管理界面使用
func (r *RuleRepository) List(ctx context.Context, kind string) ([]entity.ConfigurationRule, error) {
	query := r.db.WithContext(ctx)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var rules []entity.ConfigurationRule
	err := query.Order("priority ASC, name ASC").Find(&rules).Error
	return rules, err
}

// Create 创建规则
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ConfigurationRule) error {
	if rule.ID == "" {
		rule.ID = generateID()
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

// Update 更新规则
func (r *RuleRepository) Update(ctx context.Context, rule *entity.ConfigurationRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}
