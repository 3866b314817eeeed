package repository

import (
	"context"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
)

// AuditRepository 审计事件仓库
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计仓库
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create 事务内写入审计事件
func (r *AuditRepository) Create(ctx context.Context, tx *gorm.DB, event *entity.AuditEvent) error {
	db := tx
	if db == nil {
		db = r.db
	}
	if event.ID == "" {
		event.ID = generateID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return db.WithContext(ctx).Create(event).Error
}

// ListByEntity 实体的审计事件
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]entity.AuditEvent, error) {
	var events []entity.AuditEvent
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
