package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutTotal 结账请求结果
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_requests_total",
		Help: "Total number of checkout attempts by payment method and result",
	}, []string{"method", "result"})

	// PaymentSessionsTotal 支付会话创建结果
	PaymentSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_sessions_total",
		Help: "Total number of payment sessions by gateway and result",
	}, []string{"gateway", "result"})

	// PaymentSessionLatency 网关会话创建耗时
	PaymentSessionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_payment_session_latency_seconds",
		Help:    "Latency of payment session creation per gateway",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})

	// PaymentCallbacksTotal 支付回调处理结果
	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_callbacks_total",
		Help: "Total number of payment callbacks by gateway and result",
	}, []string{"gateway", "result"})

	// StockConflictsTotal 条件扣减库存失败次数
	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_conflicts_total",
		Help: "Total number of conditional stock decrements that lost a race",
	})

	// CouponExhaustedTotal 优惠券并发超额被拒次数
	CouponExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_coupon_exhausted_total",
		Help: "Total number of coupon redemptions rejected by the usage limit",
	})

	// ReconcileUnfulfilledTotal 已扣款但无法生成订单的支付
	ReconcileUnfulfilledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconcile_unfulfilled_total",
		Help: "Total number of successful payments that could not be materialized into an order",
	}, []string{"gateway", "reason"})

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// HTTPRequestsTotal HTTP 请求数
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// 结果标签
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
)
