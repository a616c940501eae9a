package payment

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/dujiao-next/checkout/internal/models"
)

var (
	ErrGatewayNotFound     = errors.New("payment gateway not found")
	ErrConfigInvalid       = errors.New("payment gateway config invalid")
	ErrRequestFailed       = errors.New("payment gateway request failed")
	ErrResponseInvalid     = errors.New("payment gateway response invalid")
	ErrSignatureInvalid    = errors.New("payment gateway signature invalid")
	ErrCallbackUnsupported = errors.New("payment gateway does not accept callbacks")
	ErrAmountInvalid       = errors.New("payment amount invalid for gateway")
)

// SessionRequest 创建支付会话的输入
type SessionRequest struct {
	PaymentID       uint
	TransactionCode string
	UserID          uint
	Amount          models.Money
	Currency        string
	OrderInfo       string
	ClientIP        string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// SessionResult 支付会话结果
type SessionResult struct {
	RedirectURL string
	ProviderRef string
	// Immediate 表示无需外部确认，支付即时成功（货到付款）
	Immediate bool
	Raw       map[string]interface{}
}

// CallbackPayload 网关回调原始数据
type CallbackPayload struct {
	Query   url.Values
	Body    []byte
	Headers map[string]string
}

// CallbackOutcome 回调解析结果
type CallbackOutcome struct {
	TransactionCode string
	Success         bool
	Amount          models.Money
	ProviderRef     string
	ResultCode      string
	Message         string
	Raw             map[string]interface{}
}

// Gateway 支付网关能力
type Gateway interface {
	Name() string
	BuildSession(ctx context.Context, req SessionRequest) (*SessionResult, error)
	VerifyCallback(payload CallbackPayload) bool
	ParseCallback(payload CallbackPayload) (*CallbackOutcome, error)
}
