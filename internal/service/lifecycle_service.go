package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/notify"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// phasePermissions 进入目标阶段所需角色。admin不受限。
var phasePermissions = map[string][]string{
	entity.PhaseConfiguration:  {"sales"},
	entity.PhaseApproval:       {"engineering"},
	entity.PhaseProduction:     {"production", "qc"},
	entity.PhaseQualityControl: {"production", "qc"},
	entity.PhasePackaging:      {"qc"},
	entity.PhaseShipping:       {"logistics"},
	entity.PhaseDelivered:      {"logistics"},
	entity.PhaseCancelled:      {"sales"},
	entity.PhaseOnHold:         {"sales", "production"},
}

// LifecycleService 订单阶段状态机
//
// 转移在订单行锁保护的事务内执行：非法转移整体拒绝，不留历史；
// 合法转移连同阶段副作用、历史行、审计事件一起原子提交。
type LifecycleService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
	bomRepo   *repository.BOMRepository
	auditRepo *repository.AuditRepository
	notifier  *notify.Notifier
	logger    *zap.Logger
}

// NewLifecycleService 创建生命周期服务
func NewLifecycleService(
	db *gorm.DB,
	repos *repository.Repositories,
	notifier *notify.Notifier,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		db:        db,
		orderRepo: repos.Order,
		bomRepo:   repos.BOM,
		auditRepo: repos.Audit,
		notifier:  notifier,
		logger:    logger,
	}
}

// TransitionResult 阶段转移结果
type TransitionResult struct {
	OrderID    string `json:"order_id"`
	FromPhase  string `json:"from_phase"`
	ToPhase    string `json:"to_phase"`
	DurationMs int64  `json:"duration_ms"`
}

// Transition 执行阶段转移
//
// 副作用只在首次进入阶段时触发：从ON_HOLD恢复回到原阶段不会重复生成
// 生产任务或质检清单。
func (s *LifecycleService) Transition(ctx context.Context, orderID, target string, actor Actor, reason string) (*TransitionResult, error) {
	var result *TransitionResult
	var events []notify.Event

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
			}
			return fmt.Errorf("lock order: %w", err)
		}

		from := order.CurrentPhase
		if !order.CanTransition(target) {
			return fmt.Errorf("cannot transition from %s to %s: %w", from, target, ErrInvalidTransition)
		}
		if err := s.authorize(actor, target); err != nil {
			return err
		}

		now := time.Now()
		durationMs := now.Sub(order.PhaseEnteredAt).Milliseconds()

		resuming := from == entity.PhaseOnHold
		switch {
		case target == entity.PhaseOnHold:
			order.HoldPhase = from
		case resuming:
			order.HoldPhase = ""
		}

		if !resuming {
			sideEvents, err := s.applySideEffects(ctx, tx, order, target, now)
			if err != nil {
				return err
			}
			events = sideEvents
		}

		order.CurrentPhase = target
		order.PhaseEnteredAt = now
		order.UpdatedAt = now
		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if err := s.orderRepo.CreateHistory(ctx, tx, &entity.OrderStatusHistory{
			OrderID:    order.ID,
			FromPhase:  from,
			ToPhase:    target,
			Actor:      actor.ID,
			ActorName:  actor.Name,
			Reason:     reason,
			DurationMs: durationMs,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("write status history: %w", err)
		}

		if err := s.auditRepo.Create(ctx, tx, &entity.AuditEvent{
			Actor:      actor.ID,
			ActorName:  actor.Name,
			Action:     entity.AuditActionPhaseTransition,
			EntityType: "order",
			EntityID:   order.ID,
			Before:     entity.JSONB{"phase": from},
			After:      entity.JSONB{"phase": target, "reason": reason},
		}); err != nil {
			return fmt.Errorf("audit transition: %w", err)
		}

		result = &TransitionResult{
			OrderID:    order.ID,
			FromPhase:  from,
			ToPhase:    target,
			DurationMs: durationMs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 通知在提交后发出，失败只记日志不回滚
	for _, ev := range events {
		s.notifier.Publish(ctx, ev)
	}

	s.logger.Info("order phase transition",
		zap.String("order_id", result.OrderID),
		zap.String("from", result.FromPhase),
		zap.String("to", result.ToPhase),
		zap.String("actor", actor.ID),
	)
	return result, nil
}

// authorize 检查操作者能否进入目标阶段
func (s *LifecycleService) authorize(actor Actor, target string) error {
	if actor.IsAdmin() {
		return nil
	}
	allowed, ok := phasePermissions[target]
	if !ok {
		return nil
	}
	for _, role := range allowed {
		if actor.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("role not permitted to enter phase %s: %w", target, ErrAuthorization)
}

// applySideEffects 阶段进入副作用
// 事件按订单行逐条发出，携带订单行与Active BOM引用。
func (s *LifecycleService) applySideEffects(ctx context.Context, tx *gorm.DB, order *entity.Order, target string, now time.Time) ([]notify.Event, error) {
	switch target {
	case entity.PhaseProduction:
		items, err := s.orderRepo.ListItems(ctx, tx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		if err := s.createProductionTasks(ctx, tx, order, items, now); err != nil {
			return nil, err
		}
		return itemEvents(notify.TypeEnteredProduction, order.ID, items, now), nil
	case entity.PhaseQualityControl:
		items, err := s.orderRepo.ListItems(ctx, tx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		if err := s.createQCChecklist(ctx, tx, order, now); err != nil {
			return nil, err
		}
		return itemEvents(notify.TypeEnteredQualityControl, order.ID, items, now), nil
	case entity.PhaseDelivered:
		order.DeliveredAt = &now
	}
	return nil, nil
}

// itemEvents 为每个订单行构造一条事件
func itemEvents(eventType, orderID string, items []entity.OrderItem, now time.Time) []notify.Event {
	events := make([]notify.Event, 0, len(items))
	for _, item := range items {
		events = append(events, notify.Event{
			Type:        eventType,
			OrderID:     orderID,
			OrderItemID: item.ID,
			BOMID:       item.ActiveBOMID,
			At:          now,
		})
	}
	return events
}

// createProductionTasks 从每个订单行的Active BOM展开生产任务
func (s *LifecycleService) createProductionTasks(ctx context.Context, tx *gorm.DB, order *entity.Order, items []entity.OrderItem, now time.Time) error {
	var tasks []entity.ProductionTask
	for _, item := range items {
		if item.ActiveBOMID == "" {
			return fmt.Errorf("order item %s has no active BOM: %w", item.ID, ErrConflict)
		}
		bom, err := s.bomRepo.GetByID(ctx, tx, item.ActiveBOMID)
		if err != nil {
			return fmt.Errorf("load active BOM %s: %w", item.ActiveBOMID, err)
		}
		for _, line := range bom.Items {
			tasks = append(tasks, entity.ProductionTask{
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				BOMHeaderID:   bom.ID,
				BOMLineItemID: line.ID,
				ComponentID:   line.ComponentID,
				Name:          line.Name,
				Quantity:      line.AdjustedQuantity,
				Unit:          line.Unit,
				Status:        entity.TaskStatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}
	if err := s.orderRepo.CreateProductionTasks(ctx, tx, tasks); err != nil {
		return fmt.Errorf("create production tasks: %w", err)
	}
	return nil
}

// 标准质检清单
var qcChecklistTemplate = []string{
	"Weld seam inspection",
	"Surface finish inspection",
	"Dimensional verification",
	"Fitment and assembly check",
	"Final visual inspection",
}

// createQCChecklist 生成标准质检清单
func (s *LifecycleService) createQCChecklist(ctx context.Context, tx *gorm.DB, order *entity.Order, now time.Time) error {
	items := make([]entity.QCChecklistItem, 0, len(qcChecklistTemplate))
	for i, name := range qcChecklistTemplate {
		items = append(items, entity.QCChecklistItem{
			OrderID:   order.ID,
			Name:      name,
			Sequence:  i + 1,
			Status:    entity.TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := s.orderRepo.CreateQCChecklist(ctx, tx, items); err != nil {
		return fmt.Errorf("create qc checklist: %w", err)
	}
	return nil
}

// History 订单阶段历史
func (s *LifecycleService) History(ctx context.Context, orderID string) ([]entity.OrderStatusHistory, error) {
	return s.orderRepo.ListHistory(ctx, orderID)
}

// ProductionTasks 订单生产任务
func (s *LifecycleService) ProductionTasks(ctx context.Context, orderID string) ([]entity.ProductionTask, error) {
	return s.orderRepo.ListProductionTasks(ctx, orderID)
}

// QCChecklist 订单质检清单
func (s *LifecycleService) QCChecklist(ctx context.Context, orderID string) ([]entity.QCChecklistItem, error) {
	return s.orderRepo.ListQCChecklist(ctx, orderID)
}
