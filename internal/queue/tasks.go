package queue

import (
	"encoding/json"

	"github.com/dujiao-next/checkout/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentExpire 支付会话过期任务
	TaskPaymentExpire = constants.TaskPaymentExpire
	// TaskOrderCreatedNotify 订单创建事件投递任务
	TaskOrderCreatedNotify = constants.TaskOrderCreatedNotify
	// TaskPaymentFailedNotify 支付失败事件投递任务
	TaskPaymentFailedNotify = constants.TaskPaymentFailedNotify
	// TaskOrderStatusNotify 订单状态变更事件投递任务
	TaskOrderStatusNotify = constants.TaskOrderStatusNotify
)

// PaymentExpirePayload 支付过期任务载荷
type PaymentExpirePayload struct {
	PaymentID uint `json:"payment_id"`
}

// OrderCreatedPayload 订单创建任务载荷
type OrderCreatedPayload struct {
	OrderID   uint `json:"order_id"`
	PaymentID uint `json:"payment_id"`
}

// PaymentFailedPayload 支付失败任务载荷
type PaymentFailedPayload struct {
	PaymentID uint   `json:"payment_id"`
	Reason    string `json:"reason"`
}

// OrderStatusPayload 订单状态变更任务载荷
type OrderStatusPayload struct {
	OrderID uint   `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

func newTask(typename string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, body), nil
}

// NewPaymentExpireTask 创建支付过期任务
func NewPaymentExpireTask(payload PaymentExpirePayload) (*asynq.Task, error) {
	return newTask(TaskPaymentExpire, payload)
}

// NewOrderCreatedTask 创建订单创建通知任务
func NewOrderCreatedTask(payload OrderCreatedPayload) (*asynq.Task, error) {
	return newTask(TaskOrderCreatedNotify, payload)
}

// NewPaymentFailedTask 创建支付失败通知任务
func NewPaymentFailedTask(payload PaymentFailedPayload) (*asynq.Task, error) {
	return newTask(TaskPaymentFailedNotify, payload)
}

// NewOrderStatusTask 创建订单状态通知任务
func NewOrderStatusTask(payload OrderStatusPayload) (*asynq.Task, error) {
	return newTask(TaskOrderStatusNotify, payload)
}
