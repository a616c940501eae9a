package shared

import (
	"errors"

	"github.com/dujiao-next/checkout/internal/http/response"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	kv := make([]interface{}, 0, 2)
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			kv = append(kv, "request_id", id)
		}
	}
	return logger.Ctx(c.Request.Context(), kv...)
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// MappedHandlerError 定义业务错误到接口错误响应的映射关系。
type MappedHandlerError struct {
	Target  error
	Code    int
	Reason  string
	Message string
}

// RespondWithMappedError 依序匹配规则，未命中时以 500 返回并记录原始错误。
func RespondWithMappedError(c *gin.Context, err error, rules []MappedHandlerError) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			appErr := response.WrapReasonError(rule.Code, rule.Reason, rule.Message, err)
			if appErr.Code >= response.CodeInternal {
				RequestLog(c).Warnw("handler_mapped_error",
					"code", appErr.Code,
					"reason", appErr.Reason,
					"error", err,
				)
			}
			if appErr.Reason != "" {
				response.ErrorWithReason(c, appErr.Code, appErr.Reason, appErr.Message)
				return
			}
			response.Error(c, appErr.Code, appErr.Message)
			return
		}
	}
	RespondError(c, response.CodeInternal, "服务器内部错误", err)
}

// ConcatMappedHandlerErrors 合并多组映射规则。
func ConcatMappedHandlerErrors(groups ...[]MappedHandlerError) []MappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]MappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

// CheckoutErrorRules 下单与预览
var CheckoutErrorRules = []MappedHandlerError{
	{Target: service.ErrInvalidOrderItem, Code: response.CodeBadRequest, Message: "订单项无效"},
	{Target: service.ErrShippingAddressInvalid, Code: response.CodeBadRequest, Message: "收货地址不完整"},
	{Target: service.ErrPaymentMethodInvalid, Code: response.CodeBadRequest, Message: "支付方式无效"},
	{Target: service.ErrProductNotFound, Code: response.CodeNotFound, Message: "商品不存在"},
	{Target: service.ErrVariantNotFound, Code: response.CodeNotFound, Message: "商品规格不存在"},
	{Target: service.ErrCouponNotFound, Code: response.CodeNotFound, Message: "优惠券不存在"},
	{Target: service.ErrInsufficientStock, Code: response.CodeBadRequest, Reason: "insufficient_stock", Message: "库存不足"},
	{Target: service.ErrStockExhausted, Code: response.CodeBadRequest, Reason: "insufficient_stock", Message: "商品刚刚售罄"},
	{Target: service.ErrCouponInvalid, Code: response.CodeBadRequest, Reason: "coupon_invalid", Message: "优惠码无效"},
	{Target: service.ErrCouponInactive, Code: response.CodeBadRequest, Reason: "coupon_inactive", Message: "优惠券已停用"},
	{Target: service.ErrCouponNotStarted, Code: response.CodeBadRequest, Reason: "coupon_not_started", Message: "优惠券尚未生效"},
	{Target: service.ErrCouponExpired, Code: response.CodeBadRequest, Reason: "coupon_expired", Message: "优惠券已过期"},
	{Target: service.ErrCouponUsageLimit, Code: response.CodeBadRequest, Reason: "coupon_usage_limit", Message: "优惠券已被领完"},
	{Target: service.ErrCouponPerUserLimit, Code: response.CodeBadRequest, Reason: "coupon_per_user_limit", Message: "已达到个人使用上限"},
	{Target: service.ErrCouponNotApplicable, Code: response.CodeBadRequest, Reason: "coupon_not_applicable", Message: "优惠券不适用于当前商品"},
	{Target: service.ErrCouponMinAmount, Code: response.CodeBadRequest, Reason: "coupon_min_amount", Message: "未达到优惠券最低消费"},
	{Target: service.ErrCouponExhausted, Code: response.CodeBadRequest, Reason: "coupon_exhausted", Message: "优惠券刚刚被用完"},
	{Target: service.ErrPaymentCreateFailed, Code: response.CodeBadRequest, Reason: "payment_create_failed", Message: "支付创建失败"},
	{Target: service.ErrOrderMaterializeFailed, Code: response.CodeConflict, Reason: "order_materialize_failed", Message: "订单创建失败"},
	{Target: service.ErrPaymentProviderUnavailable, Code: response.CodeServiceUnavailable, Reason: "payment_provider_unavailable", Message: "支付服务暂不可用，请稍后重试"},
}

// OrderErrorRules 订单查询与状态流转
var OrderErrorRules = []MappedHandlerError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Message: "订单不存在"},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeBadRequest, Message: "订单状态无效"},
	{Target: service.ErrOrderTransitionInvalid, Code: response.CodeConflict, Reason: "order_transition_invalid", Message: "订单状态不允许此变更"},
	{Target: service.ErrOrderCancelNotAllowed, Code: response.CodeConflict, Reason: "order_cancel_not_allowed", Message: "订单当前状态不可取消"},
}

// PaymentErrorRules 支付查询与回调
var PaymentErrorRules = []MappedHandlerError{
	{Target: service.ErrPaymentNotFound, Code: response.CodeNotFound, Message: "支付记录不存在"},
	{Target: service.ErrPaymentSignatureInvalid, Code: response.CodeBadRequest, Reason: "signature_invalid", Message: "签名校验失败"},
	{Target: service.ErrPaymentCallbackInvalid, Code: response.CodeBadRequest, Message: "回调参数无效"},
	{Target: service.ErrPaymentCallbackMismatch, Code: response.CodeBadRequest, Reason: "callback_mismatch", Message: "回调与支付记录不一致"},
	{Target: service.ErrPaymentGatewayUnsupported, Code: response.CodeBadRequest, Message: "支付网关不支持回调"},
	{Target: service.ErrOrderMaterializeFailed, Code: response.CodeConflict, Reason: "order_materialize_failed", Message: "支付成功但订单创建失败，已记录待人工处理"},
}
