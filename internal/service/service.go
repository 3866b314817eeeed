package service

import (
	"github.com/steelfab/oms/internal/notify"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Catalog    *CatalogService
	Validation *ValidationService
	Numbering  *NumberingService
	BOM        *BOMService
	Order      *OrderService
	Lifecycle  *LifecycleService
}

// NewServices 创建所有服务
func NewServices(db *gorm.DB, repos *repository.Repositories, notifier *notify.Notifier, customSeries string, logger *zap.Logger) *Services {
	catalog := NewCatalogService(repos.Catalog, logger)
	validation := NewValidationService(repos.Rule, repos.Catalog, repos.Configuration, logger)
	numbering := NewNumberingService(repos.Sequence, repos.Catalog, logger)
	return &Services{
		Catalog:    catalog,
		Validation: validation,
		Numbering:  numbering,
		BOM:        NewBOMService(db, repos, catalog, validation, numbering, customSeries, logger),
		Order:      NewOrderService(db, repos, logger),
		Lifecycle:  NewLifecycleService(db, repos, notifier, logger),
	}
}
