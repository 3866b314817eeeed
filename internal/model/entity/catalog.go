package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category 产品目录类别
type Category struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:64;not null"`
	Description string    `json:"description" gorm:"type:text"`
	SortOrder   int       `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// AssemblyStatus 装配体状态
const (
	AssemblyStatusActive   = "active"
	AssemblyStatusInactive = "inactive"
)

// Assembly 装配体（含子装配体，通过ParentAssemblyID表达层级）
type Assembly struct {
	ID               string          `json:"id" gorm:"primaryKey;size:32"`
	Code             string          `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name             string          `json:"name" gorm:"size:128;not null"`
	CategoryID       string          `json:"category_id" gorm:"size:32;not null;index"`
	ParentAssemblyID string          `json:"parent_assembly_id" gorm:"size:32;index"`
	Status           string          `json:"status" gorm:"size:16;not null;default:active"`
	Description      string          `json:"description" gorm:"type:text"`
	StandardCost     decimal.Decimal `json:"standard_cost" gorm:"type:decimal(15,4)"`
	StandardWeight   decimal.Decimal `json:"standard_weight" gorm:"type:decimal(15,4)"`
	CreatedBy        string          `json:"created_by" gorm:"size:32"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// 关联
	Category   *Category           `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Components []AssemblyComponent `json:"components,omitempty" gorm:"foreignKey:AssemblyID"`
}

func (Assembly) TableName() string {
	return "assemblies"
}

// PartStatus 零件状态
const (
	PartStatusActive   = "active"
	PartStatusObsolete = "obsolete"
)

// Part 零件（标准件与按需合成的定制件共用一张表）
type Part struct {
	ID           string          `json:"id" gorm:"primaryKey;size:32"`
	PartNumber   string          `json:"part_number" gorm:"size:64;not null;uniqueIndex"`
	Name         string          `json:"name" gorm:"size:128;not null"`
	CategoryID   string          `json:"category_id" gorm:"size:32;index"`
	Status       string          `json:"status" gorm:"size:16;not null;default:active"`
	Unit         string          `json:"unit" gorm:"size:16;not null;default:pcs"`
	UnitCost     decimal.Decimal `json:"unit_cost" gorm:"type:decimal(15,4)"`
	UnitWeight   decimal.Decimal `json:"unit_weight" gorm:"type:decimal(15,4)"`
	IsCustom     bool            `json:"is_custom" gorm:"not null;default:false"`
	FeatureKey   string          `json:"feature_key" gorm:"size:64;index:idx_parts_feature"`
	FeatureValue string          `json:"feature_value" gorm:"size:64;index:idx_parts_feature"`
	Description  string          `json:"description" gorm:"type:text"`
	CreatedBy    string          `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// 关联
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

func (Part) TableName() string {
	return "parts"
}

// ComponentType 组件类型
const (
	ComponentTypePart     = "PART"
	ComponentTypeAssembly = "ASSEMBLY"
)

// AssemblyComponent 装配体组件边（装配体 -> 零件或子装配体）
type AssemblyComponent struct {
	ID              string          `json:"id" gorm:"primaryKey;size:32"`
	AssemblyID      string          `json:"assembly_id" gorm:"size:32;not null;index"`
	ComponentID     string          `json:"component_id" gorm:"size:32;not null;index"`
	ComponentType   string          `json:"component_type" gorm:"size:16;not null"`
	Sequence        int             `json:"sequence" gorm:"not null;default:0"`
	BaseQuantity    decimal.Decimal `json:"base_quantity" gorm:"type:decimal(15,4);not null"`
	WasteFactor     decimal.Decimal `json:"waste_factor" gorm:"type:decimal(8,4);not null;default:0"`
	Optional        bool            `json:"optional" gorm:"not null;default:false"`
	SubstituteGroup string          `json:"substitute_group" gorm:"size:32"`
	EffectiveFrom   *time.Time      `json:"effective_from"`
	EffectiveTo     *time.Time      `json:"effective_to"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// 关联
	Assembly *Assembly `json:"assembly,omitempty" gorm:"foreignKey:AssemblyID"`
}

func (AssemblyComponent) TableName() string {
	return "assembly_components"
}

// EffectiveAt 组件边在指定时间是否生效
func (c *AssemblyComponent) EffectiveAt(at time.Time) bool {
	if c.EffectiveFrom != nil && at.Before(*c.EffectiveFrom) {
		return false
	}
	if c.EffectiveTo != nil && !at.Before(*c.EffectiveTo) {
		return false
	}
	return true
}
