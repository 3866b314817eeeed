package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType 事件类型
const (
	TypeEnteredProduction     = "order.entered_production"
	TypeEnteredQualityControl = "order.entered_quality_control"
)

// Event 任务/通知事件，携带订单行与Active BOM引用
type Event struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderItemID string    `json:"order_item_id,omitempty"`
	BOMID       string    `json:"bom_id,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier 通过Redis发布事件；未配置Redis时降级为空操作
type Notifier struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// New 创建通知器
func New(rdb *redis.Client, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = "oms.events"
	}
	return &Notifier{rdb: rdb, channel: channel, logger: logger}
}

// Publish 发布事件。发布失败只记日志，不影响业务事务。
func (n *Notifier) Publish(ctx context.Context, event Event) {
	if n == nil || n.rdb == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshal event", zap.Error(err))
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("publish event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
