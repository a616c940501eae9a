package cod

import (
	"context"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/payment"
)

// Gateway 货到付款：无外部确认，会话即时成功
type Gateway struct{}

// New 创建网关
func New() *Gateway {
	return &Gateway{}
}

// Name 网关名
func (g *Gateway) Name() string {
	return constants.PaymentGatewayCOD
}

// BuildSession 直接返回即时成功
func (g *Gateway) BuildSession(ctx context.Context, req payment.SessionRequest) (*payment.SessionResult, error) {
	if !req.Amount.Decimal.IsPositive() {
		return nil, payment.ErrAmountInvalid
	}
	return &payment.SessionResult{Immediate: true}, nil
}

// VerifyCallback 货到付款不接受回调
func (g *Gateway) VerifyCallback(payload payment.CallbackPayload) bool {
	return false
}

// ParseCallback 货到付款不接受回调
func (g *Gateway) ParseCallback(payload payment.CallbackPayload) (*payment.CallbackOutcome, error) {
	return nil, payment.ErrCallbackUnsupported
}
