package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/crewdrive/crewdrive/internal/common/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier 通知外部排班器（planner 进程）某个 DayPlan 的行车安排变了。
// 纯 fire-and-forget：排班器的内部算法不是本系统的一部分，通知失败
// 也绝不影响已提交的变更。
type Notifier interface {
	RidesChanged(ctx context.Context, planID, rideID string)
}

// Nop 空实现（未配置 RabbitMQ 时使用）。
type Nop struct{}

func (Nop) RidesChanged(context.Context, string, string) {}

const routingKey = "plan.rides.changed"

// AMQPNotifier 基于 RabbitMQ topic exchange 的通知实现。
// publish 外面套了熔断器：broker 持续不可用时快速失败，不拖慢请求。
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	breaker  *middleware.CircuitBreaker
	log      logger.Logger
}

func NewAMQPNotifier(url, exchange string, log logger.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPNotifier{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		breaker:  middleware.NewCircuitBreaker("planner-notify", 5, 30*time.Second),
		log:      log,
	}, nil
}

func (n *AMQPNotifier) RidesChanged(ctx context.Context, planID, rideID string) {
	body, err := json.Marshal(map[string]string{
		"plan_id":    planID,
		"ride_id":    rideID,
		"changed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	err = n.breaker.Call(ctx, func() error {
		return n.ch.PublishWithContext(ctx, n.exchange, routingKey, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		})
	})
	if err != nil && n.log != nil {
		n.log.WithFields(map[string]interface{}{
			"plan_id": planID,
			"ride_id": rideID,
		}).Warnf("planner notify failed: %v", err)
	}
}

func (n *AMQPNotifier) Close() {
	if n == nil {
		return
	}
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}
