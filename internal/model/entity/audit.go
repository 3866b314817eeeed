package entity

import "time"

// AuditAction 审计动作
const (
	AuditActionBOMGenerated    = "bom_generated"
	AuditActionBOMSuperseded   = "bom_superseded"
	AuditActionPhaseTransition = "phase_transition"
	AuditActionAdminOverride   = "admin_override"
)

// AuditEvent 审计事件（同事务写入，只追加）
type AuditEvent struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Actor      string    `json:"actor" gorm:"size:32;not null"`
	ActorName  string    `json:"actor_name" gorm:"size:100"`
	Action     string    `json:"action" gorm:"size:50;not null;index"`
	EntityType string    `json:"entity_type" gorm:"size:50;not null;index:idx_audit_entity"`
	EntityID   string    `json:"entity_id" gorm:"size:32;not null;index:idx_audit_entity"`
	Before     JSONB     `json:"before" gorm:"type:jsonb"`
	After      JSONB     `json:"after" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
