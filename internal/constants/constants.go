package constants

// 订单状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipping  = "shipping"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// 支付状态常量
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// 支付网关常量
const (
	PaymentGatewayBankRedirect = "bank_redirect"
	PaymentGatewayWalletA      = "wallet_a"
	PaymentGatewayWalletB      = "wallet_b"
	PaymentGatewayCOD          = "cod"
)

// 支付备注常量
const (
	PaymentNoteSessionCreateFailed = "session_create_failed"
	PaymentNoteExpired             = "expired"
	PaymentNoteUnfulfilled         = "order_materialize_failed"
	PaymentNotePaidAfterExpiry     = "paid_after_expiry"
)

// 优惠券类型常量
const (
	CouponTypeFixed   = "fixed"
	CouponTypePercent = "percent"
)

// 网关回调应答常量
const (
	WalletACallbackResultOK        = 0
	WalletACallbackResultSignature = 97
	WalletACallbackResultError     = 99
	WalletBReturnCodeSuccess       = 1
	WalletBReturnCodeDuplicate     = 2
	WalletBReturnCodeMacInvalid    = -1
	WalletBReturnCodeFailed        = 0
	BankRedirectResponseSuccess    = "00"
)

// 队列常量
const (
	QueueDefault            = "default"
	QueueCritical           = "critical"
	TaskPaymentExpire       = "payment:expire"
	TaskOrderCreatedNotify  = "order:created_notify"
	TaskPaymentFailedNotify = "payment:failed_notify"
	TaskOrderStatusNotify   = "order:status_notify"
)

// 领域事件常量
const (
	EventOrderCreated  = "order.created"
	EventOrderStatus   = "order.status_changed"
	EventPaymentFailed = "payment.failed"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "ck"
)

// 币种常量
const (
	CurrencyDefault = "VND"
)

// 用户角色常量
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)
