package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BOMStatus BOM状态
const (
	BOMStatusDraft           = "draft"
	BOMStatusPendingApproval = "pending_approval"
	BOMStatusApproved        = "approved"
	BOMStatusActive          = "active"
	BOMStatusSuperseded      = "superseded"
)

// BOMHeader BOM头表，一个配置版本对应一次合成产物
type BOMHeader struct {
	ID              string          `json:"id" gorm:"primaryKey;size:32"`
	ConfigurationID string          `json:"configuration_id" gorm:"size:32;not null;index"`
	OrderItemID     string          `json:"order_item_id" gorm:"size:32;not null;index"`
	AssemblyID      string          `json:"assembly_id" gorm:"size:32;not null"`
	Version         int             `json:"version" gorm:"not null;default:1"`
	Status          string          `json:"status" gorm:"size:20;not null;default:draft"`
	TotalParts      int             `json:"total_parts" gorm:"not null;default:0"`
	CustomParts     int             `json:"custom_parts" gorm:"not null;default:0"`
	TotalCost       decimal.Decimal `json:"total_cost" gorm:"type:decimal(15,4)"`
	TotalWeight     decimal.Decimal `json:"total_weight" gorm:"type:decimal(15,4)"`
	GenerationMs    int64           `json:"generation_ms"`
	GeneratedBy     string          `json:"generated_by" gorm:"size:32;not null"`
	SupersededAt    *time.Time      `json:"superseded_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// 关联
	Configuration *Configuration `json:"configuration,omitempty" gorm:"foreignKey:ConfigurationID"`
	Assembly      *Assembly      `json:"assembly,omitempty" gorm:"foreignKey:AssemblyID"`
	Items         []BOMLineItem  `json:"items,omitempty" gorm:"foreignKey:BOMHeaderID"`
}

func (BOMHeader) TableName() string {
	return "bom_headers"
}

// BOMLineItem BOM行项，每行恰好引用一个组件
type BOMLineItem struct {
	ID               string          `json:"id" gorm:"primaryKey;size:32"`
	BOMHeaderID      string          `json:"bom_header_id" gorm:"size:32;not null;index"`
	LineNumber       int             `json:"line_number" gorm:"not null"`
	ComponentID      string          `json:"component_id" gorm:"size:32;not null"`
	ComponentType    string          `json:"component_type" gorm:"size:16;not null"`
	PartNumber       string          `json:"part_number" gorm:"size:64"`
	Name             string          `json:"name" gorm:"size:128"`
	BaseQuantity     decimal.Decimal `json:"base_quantity" gorm:"type:decimal(15,4);not null"`
	WasteFactor      decimal.Decimal `json:"waste_factor" gorm:"type:decimal(8,4);not null;default:0"`
	AdjustedQuantity decimal.Decimal `json:"adjusted_quantity" gorm:"type:decimal(15,4);not null"`
	Unit             string          `json:"unit" gorm:"size:16;not null;default:pcs"`
	UnitCost         decimal.Decimal `json:"unit_cost" gorm:"type:decimal(15,4)"`
	ExtendedCost     decimal.Decimal `json:"extended_cost" gorm:"type:decimal(15,4)"`
	UnitWeight       decimal.Decimal `json:"unit_weight" gorm:"type:decimal(15,4)"`
	ExtendedWeight   decimal.Decimal `json:"extended_weight" gorm:"type:decimal(15,4)"`
	IsCustom         bool            `json:"is_custom" gorm:"not null;default:false"`
	CreatedAt        time.Time       `json:"created_at"`

	// 关联
	BOMHeader *BOMHeader `json:"bom_header,omitempty" gorm:"foreignKey:BOMHeaderID"`
}

func (BOMLineItem) TableName() string {
	return "bom_line_items"
}
