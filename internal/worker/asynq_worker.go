package worker

import (
	"context"
	"encoding/json"

	"github.com/dujiao-next/checkout/internal/broker"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/provider"
	"github.com/dujiao-next/checkout/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentExpire, c.handlePaymentExpire)
	mux.HandleFunc(queue.TaskOrderCreatedNotify, c.handleOrderCreated)
	mux.HandleFunc(queue.TaskPaymentFailedNotify, c.handlePaymentFailed)
	mux.HandleFunc(queue.TaskOrderStatusNotify, c.handleOrderStatus)
}

// OrderCreatedEvent 订单创建事件内容
type OrderCreatedEvent struct {
	OrderNo       string       `json:"order_no"`
	UserID        uint         `json:"user_id"`
	PaymentID     uint         `json:"payment_id"`
	PaymentMethod string       `json:"payment_method"`
	TotalPrice    models.Money `json:"total_price"`
	Currency      string       `json:"currency"`
	ItemCount     int          `json:"item_count"`
}

// PaymentFailedEvent 支付失败事件内容
type PaymentFailedEvent struct {
	TransactionCode string       `json:"transaction_code"`
	UserID          uint         `json:"user_id"`
	Gateway         string       `json:"gateway"`
	Amount          models.Money `json:"amount"`
	Reason          string       `json:"reason"`
}

// OrderStatusEvent 订单状态变更事件内容
type OrderStatusEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (c *Consumer) handlePaymentExpire(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.PaymentService == nil {
		logger.Debugw("worker_payment_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_expire_skip_invalid_payload")
		return nil
	}
	if err := c.PaymentService.ExpirePayment(ctx, payload.PaymentID); err != nil {
		logger.Warnw("worker_payment_expire_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderCreated(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_created_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_created_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_created_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	order, err := c.OrderRepo.GetByID(payload.OrderID)
	if err != nil {
		logger.Warnw("worker_order_created_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_order_created_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	event := broker.NewEvent(constants.EventOrderCreated, order.ID, OrderCreatedEvent{
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		PaymentID:     payload.PaymentID,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		Currency:      order.Currency,
		ItemCount:     len(order.Items),
	})
	return c.publish(ctx, event)
}

func (c *Consumer) handlePaymentFailed(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_failed_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentFailedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_failed_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_failed_skip_invalid_payload")
		return nil
	}
	record, err := c.PaymentRepo.GetByID(payload.PaymentID)
	if err != nil {
		logger.Warnw("worker_payment_failed_fetch_payment_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	if record == nil {
		logger.Debugw("worker_payment_failed_skip_payment_not_found", "payment_id", payload.PaymentID)
		return nil
	}
	event := broker.NewEvent(constants.EventPaymentFailed, record.ID, PaymentFailedEvent{
		TransactionCode: record.TransactionCode,
		UserID:          record.UserID,
		Gateway:         record.Gateway,
		Amount:          record.Amount,
		Reason:          payload.Reason,
	})
	return c.publish(ctx, event)
}

func (c *Consumer) handleOrderStatus(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_status_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderStatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_status_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 || payload.To == "" {
		logger.Debugw("worker_order_status_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	event := broker.NewEvent(constants.EventOrderStatus, payload.OrderID, OrderStatusEvent{
		From: payload.From,
		To:   payload.To,
	})
	return c.publish(ctx, event)
}

func (c *Consumer) publish(ctx context.Context, event broker.Event) error {
	if c.Publisher == nil {
		return nil
	}
	if err := c.Publisher.Publish(ctx, event); err != nil {
		logger.Warnw("worker_event_publish_failed",
			"event_type", event.EventType,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
		return err
	}
	return nil
}
