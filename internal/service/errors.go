package service

import "errors"

// 下单校验错误
var (
	ErrInvalidOrderItem       = errors.New("invalid order item")
	ErrShippingAddressInvalid = errors.New("shipping address invalid")
	ErrPaymentMethodInvalid   = errors.New("payment method invalid")
	ErrProductNotFound        = errors.New("product not found")
	ErrVariantNotFound        = errors.New("variant not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	// ErrStockExhausted 条件扣减失败（并发下库存刚被抢完）
	ErrStockExhausted = errors.New("stock just sold out")
)

// 优惠券错误
var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponInactive      = errors.New("coupon inactive")
	ErrCouponNotStarted    = errors.New("coupon not started")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponUsageLimit    = errors.New("coupon usage limit reached")
	ErrCouponPerUserLimit  = errors.New("coupon per-user limit reached")
	ErrCouponNotApplicable = errors.New("coupon not applicable")
	ErrCouponMinAmount     = errors.New("order total below coupon minimum")
	ErrCouponInvalid       = errors.New("coupon invalid")
	ErrCouponExhausted     = errors.New("coupon just exhausted")
)

// 订单错误
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderStatusInvalid     = errors.New("order status invalid")
	ErrOrderTransitionInvalid = errors.New("order status transition not allowed")
	ErrOrderCancelNotAllowed  = errors.New("order cannot be cancelled")
	ErrOrderUpdateFailed      = errors.New("order update failed")
)

// 支付错误
var (
	ErrPaymentNotFound            = errors.New("payment not found")
	ErrPaymentSignatureInvalid    = errors.New("payment callback signature invalid")
	ErrPaymentCallbackInvalid     = errors.New("payment callback payload invalid")
	ErrPaymentCallbackMismatch    = errors.New("payment callback does not match payment")
	ErrPaymentProviderUnavailable = errors.New("payment provider unavailable")
	ErrPaymentGatewayUnsupported  = errors.New("payment gateway unsupported")
	ErrPaymentCreateFailed        = errors.New("payment create failed")
	ErrOrderMaterializeFailed     = errors.New("payment succeeded but order could not be created")
)
