package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPhase 订单阶段
const (
	PhaseDraft          = "DRAFT"
	PhaseConfiguration  = "CONFIGURATION"
	PhaseApproval       = "APPROVAL"
	PhaseProduction     = "PRODUCTION"
	PhaseQualityControl = "QUALITY_CONTROL"
	PhasePackaging      = "PACKAGING"
	PhaseShipping       = "SHIPPING"
	PhaseDelivered      = "DELIVERED"
	PhaseCancelled      = "CANCELLED"
	PhaseOnHold         = "ON_HOLD"
)

// phaseTransitions 前向转移表。全局边（-> CANCELLED / ON_HOLD、ON_HOLD恢复）
// 由 CanTransition 单独处理。
var phaseTransitions = map[string][]string{
	PhaseDraft:          {PhaseConfiguration},
	PhaseConfiguration:  {PhaseApproval},
	PhaseApproval:       {PhaseProduction},
	PhaseProduction:     {PhaseQualityControl},
	PhaseQualityControl: {PhasePackaging, PhaseProduction}, // 合格 | 返工
	PhasePackaging:      {PhaseShipping},
	PhaseShipping:       {PhaseDelivered},
}

// IsTerminalPhase 是否终态
func IsTerminalPhase(phase string) bool {
	return phase == PhaseDelivered || phase == PhaseCancelled
}

// MutablePhase 配置/BOM是否允许变更的阶段
func MutablePhase(phase string) bool {
	return phase == PhaseDraft || phase == PhaseConfiguration
}

// Order 订单聚合根
type Order struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	OrderNumber    string     `json:"order_number" gorm:"size:50;not null;uniqueIndex"`
	CustomerName   string     `json:"customer_name" gorm:"size:128;not null"`
	CurrentPhase   string     `json:"current_phase" gorm:"size:20;not null;default:DRAFT"`
	PhaseEnteredAt time.Time  `json:"phase_entered_at"`
	HoldPhase      string     `json:"hold_phase" gorm:"size:20"` // ON_HOLD时记录挂起前阶段
	DeliveredAt    *time.Time `json:"delivered_at"`
	Notes          string     `json:"notes" gorm:"type:text"`
	CreatedBy      string     `json:"created_by" gorm:"size:32;not null"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// 关联
	Items   []OrderItem          `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	History []OrderStatusHistory `json:"history,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// CanTransition 判断订单能否转移到目标阶段
func (o *Order) CanTransition(target string) bool {
	from := o.CurrentPhase
	if from == target {
		return false
	}
	if IsTerminalPhase(from) {
		return false
	}

	// 挂起：任何非终态均可进入
	if target == PhaseOnHold {
		return from != PhaseOnHold
	}
	// 取消：任何非终态均可进入（含挂起中）
	if target == PhaseCancelled {
		return true
	}
	// 恢复：只能回到挂起前的阶段
	if from == PhaseOnHold {
		return target == o.HoldPhase
	}

	for _, t := range phaseTransitions[from] {
		if t == target {
			return true
		}
	}
	return false
}

// OrderItem 订单行
type OrderItem struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID          string    `json:"order_id" gorm:"size:32;not null;index"`
	AssemblyID       string    `json:"assembly_id" gorm:"size:32;not null"`
	ConfigurationID  string    `json:"configuration_id" gorm:"size:32;index"`
	ActiveBOMID      string    `json:"active_bom_id" gorm:"size:32"`
	Quantity         int       `json:"quantity" gorm:"not null;default:1"`
	ProductionStatus string    `json:"production_status" gorm:"size:20;not null;default:PENDING"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// 关联
	Order         *Order         `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Assembly      *Assembly      `json:"assembly,omitempty" gorm:"foreignKey:AssemblyID"`
	Configuration *Configuration `json:"configuration,omitempty" gorm:"foreignKey:ConfigurationID"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatusHistory 阶段转移历史（只追加，不修改）
type OrderStatusHistory struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID    string    `json:"order_id" gorm:"size:32;not null;index"`
	FromPhase  string    `json:"from_phase" gorm:"size:20;not null"`
	ToPhase    string    `json:"to_phase" gorm:"size:20;not null"`
	Actor      string    `json:"actor" gorm:"size:32;not null"`
	ActorName  string    `json:"actor_name" gorm:"size:100"`
	Reason     string    `json:"reason" gorm:"type:text"`
	DurationMs int64     `json:"duration_ms"` // 在前一阶段停留时长
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

// ProductionTaskStatus 生产任务状态
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
)

// ProductionTask 进入生产阶段时从Active BOM生成的任务
type ProductionTask struct {
	ID            string          `json:"id" gorm:"primaryKey;size:32"`
	OrderID       string          `json:"order_id" gorm:"size:32;not null;index"`
	OrderItemID   string          `json:"order_item_id" gorm:"size:32;not null;index"`
	BOMHeaderID   string          `json:"bom_header_id" gorm:"size:32;not null"`
	BOMLineItemID string          `json:"bom_line_item_id" gorm:"size:32"`
	ComponentID   string          `json:"component_id" gorm:"size:32;not null"`
	Name          string          `json:"name" gorm:"size:128;not null"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4);not null"`
	Unit          string          `json:"unit" gorm:"size:16;not null;default:pcs"`
	Status        string          `json:"status" gorm:"size:20;not null;default:PENDING"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (ProductionTask) TableName() string {
	return "production_tasks"
}

// QCChecklistItem 进入质检阶段时生成的检查项
type QCChecklistItem struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string    `json:"order_id" gorm:"size:32;not null;index"`
	OrderItemID string    `json:"order_item_id" gorm:"size:32"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Sequence    int       `json:"sequence" gorm:"not null;default:0"`
	Status      string    `json:"status" gorm:"size:20;not null;default:PENDING"`
	CheckedBy   string    `json:"checked_by" gorm:"size:32"`
	CheckedAt   *time.Time `json:"checked_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (QCChecklistItem) TableName() string {
	return "qc_checklist_items"
}
