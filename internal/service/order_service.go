package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderService 订单服务：创建订单、管理订单行与配置版本
type OrderService struct {
	db          *gorm.DB
	orderRepo   *repository.OrderRepository
	configRepo  *repository.ConfigurationRepository
	catalogRepo *repository.CatalogRepository
	logger      *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(db *gorm.DB, repos *repository.Repositories, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:          db,
		orderRepo:   repos.Order,
		configRepo:  repos.Configuration,
		catalogRepo: repos.Catalog,
		logger:      logger,
	}
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	CustomerName string `json:"customer_name" binding:"required"`
	Notes        string `json:"notes"`
}

// CreateOrder 创建订单，初始阶段DRAFT
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest, actor Actor) (*entity.Order, error) {
	now := time.Now()
	order := &entity.Order{
		OrderNumber:    generateOrderNumber(now),
		CustomerName:   req.CustomerName,
		CurrentPhase:   entity.PhaseDraft,
		PhaseEnteredAt: now,
		Notes:          req.Notes,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)
	return order, nil
}

// generateOrderNumber 订单号：SO-日期+序号
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("SO-%s%04d", now.Format("20060102"), now.UnixNano()%10000)
}

// GetOrder 订单详情（含行与历史）
func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return order, nil
}

// ListOrders 分页订单列表
func (s *OrderService) ListOrders(ctx context.Context, phase string, page, pageSize int) ([]entity.Order, int64, error) {
	return s.orderRepo.List(ctx, phase, page, pageSize)
}

// AddItemRequest 添加订单行请求
type AddItemRequest struct {
	AssemblyID string       `json:"assembly_id" binding:"required"`
	Quantity   int          `json:"quantity"`
	Selections entity.JSONB `json:"selections"`
}

// AddItem 添加订单行并建立v1配置草稿
//
// 订单行与其配置在同一事务创建。订单必须处于可变阶段。
func (s *OrderService) AddItem(ctx context.Context, orderID string, req AddItemRequest, actor Actor) (*entity.OrderItem, error) {
	if _, err := s.catalogRepo.FindAssemblyByID(ctx, nil, req.AssemblyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("assembly %s: %w", req.AssemblyID, ErrNotFound)
		}
		return nil, err
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	var item *entity.OrderItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if !entity.MutablePhase(order.CurrentPhase) {
			return fmt.Errorf("order %s is in phase %s, items are frozen: %w",
				order.ID, order.CurrentPhase, ErrConflict)
		}

		now := time.Now()
		item = &entity.OrderItem{
			OrderID:    order.ID,
			AssemblyID: req.AssemblyID,
			Quantity:   quantity,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.orderRepo.CreateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}

		selections := req.Selections
		if selections == nil {
			selections = entity.JSONB{}
		}
		config := &entity.Configuration{
			OrderItemID: item.ID,
			AssemblyID:  req.AssemblyID,
			Version:     1,
			Status:      entity.ConfigurationStatusDraft,
			Selections:  selections,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.configRepo.Create(ctx, tx, config); err != nil {
			return fmt.Errorf("create configuration: %w", err)
		}

		item.ConfigurationID = config.ID
		item.Configuration = config
		if err := s.orderRepo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("link configuration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetConfiguration 配置详情
func (s *OrderService) GetConfiguration(ctx context.Context, id string) (*entity.Configuration, error) {
	config, err := s.configRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("configuration %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return config, nil
}

// UpdateConfiguration 更新配置选型
//
// 只有可变阶段允许。更新会清掉上次校验结果，必须重新校验后才能生成BOM。
func (s *OrderService) UpdateConfiguration(ctx context.Context, configurationID string, selections entity.JSONB) (*entity.Configuration, error) {
	var config *entity.Configuration
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		config, err = s.configRepo.FindForUpdate(ctx, tx, configurationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("configuration %s: %w", configurationID, ErrNotFound)
			}
			return fmt.Errorf("lock configuration: %w", err)
		}
		if err := s.requireMutableOrder(ctx, tx, config); err != nil {
			return err
		}

		now := time.Now()
		config.Selections = selections
		config.IsValid = false
		config.Errors = nil
		config.Warnings = nil
		config.ValidatedAt = nil
		config.UpdatedAt = now
		if err := s.configRepo.Update(ctx, tx, config); err != nil {
			return fmt.Errorf("update configuration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return config, nil
}

// ReviseConfiguration 派生新配置版本
//
// 父版本保持不变，新版本从父版本的选型出发，订单行指向新版本。
func (s *OrderService) ReviseConfiguration(ctx context.Context, configurationID string, selections entity.JSONB, actor Actor) (*entity.Configuration, error) {
	var revision *entity.Configuration
	err := s.db.Transaction(func(tx *gorm.DB) error {
		parent, err := s.configRepo.FindForUpdate(ctx, tx, configurationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("configuration %s: %w", configurationID, ErrNotFound)
			}
			return fmt.Errorf("lock configuration: %w", err)
		}
		if err := s.requireMutableOrder(ctx, tx, parent); err != nil {
			return err
		}

		if selections == nil {
			selections = parent.Selections
		}
		now := time.Now()
		revision = &entity.Configuration{
			OrderItemID:    parent.OrderItemID,
			AssemblyID:     parent.AssemblyID,
			Version:        parent.Version + 1,
			ParentConfigID: parent.ID,
			Status:         entity.ConfigurationStatusDraft,
			Selections:     selections,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.configRepo.Create(ctx, tx, revision); err != nil {
			return fmt.Errorf("create revision: %w", err)
		}

		item, err := s.orderRepo.FindItemByID(ctx, parent.OrderItemID)
		if err != nil {
			return fmt.Errorf("find order item: %w", err)
		}
		item.ConfigurationID = revision.ID
		item.UpdatedAt = now
		if err := s.orderRepo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("relink order item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revision, nil
}

// ListConfigurationVersions 订单行的配置版本链
func (s *OrderService) ListConfigurationVersions(ctx context.Context, orderItemID string) ([]entity.Configuration, error) {
	return s.configRepo.ListVersions(ctx, orderItemID)
}

// requireMutableOrder 配置所属订单必须处于可变阶段
func (s *OrderService) requireMutableOrder(ctx context.Context, tx *gorm.DB, config *entity.Configuration) error {
	item, err := s.orderRepo.FindItemByConfiguration(ctx, tx, config.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 尚未挂到订单行的配置（如历史版本），按行ID回退
			item, err = s.orderRepo.FindItemByID(ctx, config.OrderItemID)
		}
		if err != nil {
			return fmt.Errorf("find order item: %w", err)
		}
	}
	order, err := s.orderRepo.FindForUpdate(ctx, tx, item.OrderID)
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if !entity.MutablePhase(order.CurrentPhase) {
		return fmt.Errorf("order %s is in phase %s, configuration is frozen: %w",
			order.ID, order.CurrentPhase, ErrConflict)
	}
	return nil
}
