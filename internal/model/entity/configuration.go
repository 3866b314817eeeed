package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ConfigurationStatus 配置状态
const (
	ConfigurationStatusDraft  = "draft"
	ConfigurationStatusFrozen = "frozen"
)

// RuleViolation 单条规则违反记录
type RuleViolation struct {
	Rule    string `json:"rule"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RuleViolations JSONB数组字段
type RuleViolations []RuleViolation

func (v RuleViolations) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (v *RuleViolations) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// Configuration 订单行的选型配置，按版本管理
type Configuration struct {
	ID             string         `json:"id" gorm:"primaryKey;size:32"`
	OrderItemID    string         `json:"order_item_id" gorm:"size:32;not null;index"`
	AssemblyID     string         `json:"assembly_id" gorm:"size:32;not null;index"`
	Version        int            `json:"version" gorm:"not null;default:1"`
	ParentConfigID string         `json:"parent_config_id" gorm:"size:32"`
	Status         string         `json:"status" gorm:"size:16;not null;default:draft"`
	Selections     JSONB          `json:"selections" gorm:"type:jsonb"`
	IsValid        bool           `json:"is_valid" gorm:"not null;default:false"`
	Errors         RuleViolations `json:"errors" gorm:"type:jsonb"`
	Warnings       RuleViolations `json:"warnings" gorm:"type:jsonb"`
	ValidatedAt    *time.Time     `json:"validated_at"`
	CreatedBy      string         `json:"created_by" gorm:"size:32;not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// 关联
	Assembly *Assembly `json:"assembly,omitempty" gorm:"foreignKey:AssemblyID"`
}

func (Configuration) TableName() string {
	return "configurations"
}

// RuleKind 规则类型（封闭集合，参数由Params按类型解析）
const (
	RuleKindValidation         = "validation"
	RuleKindCompatibility      = "compatibility"
	RuleKindComponentSelection = "component_selection"
	RuleKindPricing            = "pricing"
)

// RuleStatus 规则状态
const (
	RuleStatusActive   = "active"
	RuleStatusInactive = "inactive"
)

// ConfigurationRule 配置规则
//
// Params 按 Kind 携带类型化参数：
//   validation:          {field, min?, max?, required?}
//   compatibility:       {when_field, when_equals, field, max? min? forbidden?}
//   component_selection: {field, equals?, feature_key, component_id?, allow_custom?, series?}
//   pricing:             {field, min?, max?, note}
type ConfigurationRule struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Name       string    `json:"name" gorm:"size:128;not null;uniqueIndex"`
	Kind       string    `json:"kind" gorm:"size:32;not null"`
	AssemblyID string    `json:"assembly_id" gorm:"size:32;index"`
	CategoryID string    `json:"category_id" gorm:"size:32;index"`
	Priority   int       `json:"priority" gorm:"not null;default:100"`
	IsBlocking bool      `json:"is_blocking" gorm:"not null;default:true"`
	Params     JSONB     `json:"params" gorm:"type:jsonb"`
	Message    string    `json:"message" gorm:"size:256"`
	Status     string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ConfigurationRule) TableName() string {
	return "configuration_rules"
}
