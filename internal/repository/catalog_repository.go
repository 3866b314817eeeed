package repository

import (
	"context"
	"errors"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
)

// CatalogRepository 产品目录仓库
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建目录仓库
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCategories 类别列表
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]entity.Category, error) {
	var categories []entity.Category
	err := r.db.WithContext(ctx).
		Order("sort_order ASC, code ASC").
		Find(&categories).Error
	return categories, err
}

// CreateCategory 创建类别
func (r *CatalogRepository) CreateCategory(ctx context.Context, category *entity.Category) error {
	if category.ID == "" {
		category.ID = generateID()
	}
	return r.db.WithContext(ctx).Create(category).Error
}

// FindAssemblyByID 根据ID查找装配体
// tx为nil时使用默认连接；事务内传入tx以读到一致快照。
func (r *CatalogRepository) FindAssemblyByID(ctx context.Context, tx *gorm.DB, id string) (*entity.Assembly, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var assembly entity.Assembly
	err := db.WithContext(ctx).
		Preload("Category").
		Where("id = ?", id).
		First(&assembly).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &assembly, nil
}

// ListAssemblies 装配体列表
func (r *CatalogRepository) ListAssemblies(ctx context.Context, categoryID string) ([]entity.Assembly, error) {
	var assemblies []entity.Assembly
	query := r.db.WithContext(ctx).Where("status = ?", entity.AssemblyStatusActive)
	if categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	err := query.Order("code ASC").Find(&assemblies).Error
	return assemblies, err
}

// CreateAssembly 创建装配体
func (r *CatalogRepository) CreateAssembly(ctx context.Context, assembly *entity.Assembly) error {
	if assembly.ID == "" {
		assembly.ID = generateID()
	}
	return r.db.WithContext(ctx).Create(assembly).Error
}

// FindPartByID 根据ID查找零件
func (r *CatalogRepository) FindPartByID(ctx context.Context, tx *gorm.DB, id string) (*entity.Part, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var part entity.Part
	err := db.WithContext(ctx).Where("id = ?", id).First(&part).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &part, nil
}

// FindPartByNumber 根据零件号查找零件
func (r *CatalogRepository) FindPartByNumber(ctx context.Context, partNumber string) (*entity.Part, error) {
	var part entity.Part
	err := r.db.WithContext(ctx).Where("part_number = ?", partNumber).First(&part).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &part, nil
}

// FindPartByFeature 按特征键值查找零件（含历史合成的定制件）
// tx为nil时使用默认连接；合成过程中传入事务以读到一致快照。
func (r *CatalogRepository) FindPartByFeature(ctx context.Context, tx *gorm.DB, featureKey, featureValue string) (*entity.Part, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var part entity.Part
	err := db.WithContext(ctx).
		Where("feature_key = ? AND feature_value = ? AND status = ?",
			featureKey, featureValue, entity.PartStatusActive).
		Order("created_at ASC").
		First(&part).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &part, nil
}

// ListParts 零件列表
func (r *CatalogRepository) ListParts(ctx context.Context, categoryID string, customOnly bool) ([]entity.Part, error) {
	var parts []entity.Part
	query := r.db.WithContext(ctx).Where("status = ?", entity.PartStatusActive)
	if categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if customOnly {
		query = query.Where("is_custom = true")
	}
	err := query.Order("part_number ASC").Find(&parts).Error
	return parts, err
}

// CreatePart 创建零件
func (r *CatalogRepository) CreatePart(ctx context.Context, tx *gorm.DB, part *entity.Part) error {
	db := tx
	if db == nil {
		db = r.db
	}
	if part.ID == "" {
		part.ID = generateID()
	}
	return db.WithContext(ctx).Create(part).Error
}

// CreateComponent 创建装配体组件边
func (r *CatalogRepository) CreateComponent(ctx context.Context, component *entity.AssemblyComponent) error {
	if component.ID == "" {
		component.ID = generateID()
	}
	return r.db.WithContext(ctx).Create(component).Error
}

// ComponentsOf 装配体的全部直接组件边（不过滤生效期，用于图遍历）
func (r *CatalogRepository) ComponentsOf(ctx context.Context, assemblyID string) ([]entity.AssemblyComponent, error) {
	var components []entity.AssemblyComponent
	err := r.db.WithContext(ctx).
		Where("assembly_id = ?", assemblyID).
		Order("sequence ASC").
		Find(&components).Error
	return components, err
}

// EffectiveComponents 装配体在指定时间生效的直接组件边，按sequence排序
func (r *CatalogRepository) EffectiveComponents(ctx context.Context, tx *gorm.DB, assemblyID string, at time.Time) ([]entity.AssemblyComponent, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var components []entity.AssemblyComponent
	err := db.WithContext(ctx).
		Where("assembly_id = ?", assemblyID).
		Where("effective_from IS NULL OR effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to > ?", at).
		Order("sequence ASC").
		Find(&components).Error
	return components, err
}

// AllAssemblyEdges 全部指向装配体的组件边，供环检测构建邻接表
func (r *CatalogRepository) AllAssemblyEdges(ctx context.Context, tx *gorm.DB) ([]entity.AssemblyComponent, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var edges []entity.AssemblyComponent
	err := db.WithContext(ctx).
		Where("component_type = ?", entity.ComponentTypeAssembly).
		Find(&edges).Error
	return edges, err
}
