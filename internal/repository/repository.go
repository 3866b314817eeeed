package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// generateID 生成32位ID
func generateID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:32]
}

// Repositories 仓库集合
type Repositories struct {
	Catalog       *CatalogRepository
	Rule          *RuleRepository
	Configuration *ConfigurationRepository
	BOM           *BOMRepository
	Order         *OrderRepository
	Sequence      *SequenceRepository
	Audit         *AuditRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Catalog:       NewCatalogRepository(db),
		Rule:          NewRuleRepository(db),
		Configuration: NewConfigurationRepository(db),
		BOM:           NewBOMRepository(db),
		Order:         NewOrderRepository(db),
		Sequence:      NewSequenceRepository(db),
		Audit:         NewAuditRepository(db),
	}
}
