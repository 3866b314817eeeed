package repository

import (
	"context"
	"errors"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 订单仓库
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByID 根据ID查找订单（含订单行）
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var order entity.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Configuration").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindForUpdate 事务内按ID加行锁查找订单
// 同一订单上的并发阶段转移在这里串行化，副作用不会重复执行。
func (r *OrderRepository) FindForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.Order, error) {
	var order entity.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// List 订单列表
func (r *OrderRepository) List(ctx context.Context, phase string, page, pageSize int) ([]entity.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Order{})
	if phase != "" {
		query = query.Where("current_phase = ?", phase)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []entity.Order
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// Create 创建订单
func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	if order.ID == "" {
		order.ID = generateID()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// Update 事务内更新订单
func (r *OrderRepository) Update(ctx context.Context, tx *gorm.DB, order *entity.Order) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(order).Error
}

// FindItemByID 根据ID查找订单行
func (r *OrderRepository) FindItemByID(ctx context.Context, id string) (*entity.OrderItem, error) {
	var item entity.OrderItem
	err := r.db.WithContext(ctx).
		Preload("Configuration").
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindItemByConfiguration 根据配置ID查找订单行
func (r *OrderRepository) FindItemByConfiguration(ctx context.Context, tx *gorm.DB, configurationID string) (*entity.OrderItem, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var item entity.OrderItem
	err := db.WithContext(ctx).
		Where("configuration_id = ?", configurationID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListItems 订单的全部订单行
func (r *OrderRepository) ListItems(ctx context.Context, tx *gorm.DB, orderID string) ([]entity.OrderItem, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var items []entity.OrderItem
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// CreateItem 创建订单行
func (r *OrderRepository) CreateItem(ctx context.Context, tx *gorm.DB, item *entity.OrderItem) error {
	db := tx
	if db == nil {
		db = r.db
	}
	if item.ID == "" {
		item.ID = generateID()
	}
	return db.WithContext(ctx).Create(item).Error
}

// UpdateItem 更新订单行
func (r *OrderRepository) UpdateItem(ctx context.Context, tx *gorm.DB, item *entity.OrderItem) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(item).Error
}

// CreateHistory 事务内追加阶段转移历史
func (r *OrderRepository) CreateHistory(ctx context.Context, tx *gorm.DB, row *entity.OrderStatusHistory) error {
	if row.ID == "" {
		row.ID = generateID()
	}
	return tx.WithContext(ctx).Create(row).Error
}

// ListHistory 订单的阶段转移历史
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]entity.OrderStatusHistory, error) {
	var rows []entity.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// CreateProductionTasks 事务内批量创建生产任务
func (r *OrderRepository) CreateProductionTasks(ctx context.Context, tx *gorm.DB, tasks []entity.ProductionTask) error {
	if len(tasks) == 0 {
		return nil
	}
	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = generateID()
		}
	}
	return tx.WithContext(ctx).Create(&tasks).Error
}

// ListProductionTasks 订单的生产任务
func (r *OrderRepository) ListProductionTasks(ctx context.Context, orderID string) ([]entity.ProductionTask, error) {
	var tasks []entity.ProductionTask
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// CreateQCChecklist 事务内批量创建质检项
func (r *OrderRepository) CreateQCChecklist(ctx context.Context, tx *gorm.DB, items []entity.QCChecklistItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = generateID()
		}
	}
	return tx.WithContext(ctx).Create(&items).Error
}

// ListQCChecklist 订单的质检项
func (r *OrderRepository) ListQCChecklist(ctx context.Context, orderID string) ([]entity.QCChecklistItem, error) {
	var items []entity.QCChecklistItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence ASC").
		Find(&items).Error
	return items, err
}
