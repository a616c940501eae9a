package walleta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
)

const defaultRequestType = "captureWallet"

var (
	ErrConfigInvalid    = fmt.Errorf("wallet a config invalid: %w", payment.ErrConfigInvalid)
	ErrRequestFailed    = fmt.Errorf("wallet a request failed: %w", payment.ErrRequestFailed)
	ErrResponseInvalid  = fmt.Errorf("wallet a response invalid: %w", payment.ErrResponseInvalid)
	ErrSignatureInvalid = fmt.Errorf("wallet a signature invalid: %w", payment.ErrSignatureInvalid)
)

// Config 钱包 A 配置
type Config struct {
	PartnerCode string `json:"partner_code"` // 商户编码
	AccessKey   string `json:"access_key"`   // 访问密钥
	SecretKey   string `json:"secret_key"`   // 签名密钥
	CreateURL   string `json:"create_url"`   // 创建订单接口
	RedirectURL string `json:"redirect_url"` // 用户支付完成跳转
	IPNURL      string `json:"ipn_url"`      // 异步通知地址
	RequestType string `json:"request_type"`
	Lang        string `json:"lang"`
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := payment.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.PartnerCode = strings.TrimSpace(cfg.PartnerCode)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.CreateURL = strings.TrimSpace(cfg.CreateURL)
	if cfg.RequestType == "" {
		cfg.RequestType = defaultRequestType
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	required := map[string]string{
		"partner_code": cfg.PartnerCode,
		"secret_key":   cfg.SecretKey,
		"create_url":   cfg.CreateURL,
		"redirect_url": cfg.RedirectURL,
		"ipn_url":      cfg.IPNURL,
	}
	for _, key := range []string{"partner_code", "secret_key", "create_url", "redirect_url", "ipn_url"} {
		if strings.TrimSpace(required[key]) == "" {
			return fmt.Errorf("%w: %s is required", ErrConfigInvalid, key)
		}
	}
	return nil
}

type createRequest struct {
	PartnerCode string `json:"partner_code"`
	AccessKey   string `json:"access_key,omitempty"`
	RequestID   string `json:"request_id"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"order_id"`
	OrderInfo   string `json:"order_info"`
	RedirectURL string `json:"redirect_url"`
	IPNURL      string `json:"ipn_url"`
	ExtraData   string `json:"extra_data"`
	RequestType string `json:"request_type"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	ResultCode int    `json:"result_code"`
	Message    string `json:"message"`
	PayURL     string `json:"pay_url"`
	RequestID  string `json:"request_id"`
}

// CallbackBody 钱包 A 异步通知
type CallbackBody struct {
	PartnerCode string `json:"partner_code"`
	OrderID     string `json:"order_id"`
	RequestID   string `json:"request_id"`
	Amount      int64  `json:"amount"`
	OrderInfo   string `json:"order_info"`
	ResultCode  int    `json:"result_code"`
	TransID     int64  `json:"trans_id"`
	Message     string `json:"message"`
	PayType     string `json:"pay_type"`
	ExtraData   string `json:"extra_data"`
	Signature   string `json:"signature"`
}

// SignContent 回调签名原文
func (b CallbackBody) SignContent() string {
	return payment.JoinPipe(
		b.PartnerCode,
		b.OrderID,
		b.RequestID,
		strconv.FormatInt(b.Amount, 10),
		strconv.Itoa(b.ResultCode),
		strconv.FormatInt(b.TransID, 10),
		b.Message,
	)
}

// Ack 回调应答
type Ack struct {
	ResultCode int    `json:"result_code"`
	Message    string `json:"message"`
}

// Gateway 钱包 A：服务端下单获取支付链接
type Gateway struct {
	cfg    *Config
	client *http.Client
}

// New 创建网关
func New(cfg *Config, client *http.Client) *Gateway {
	if client == nil {
		client = payment.NewHTTPClient(0)
	}
	return &Gateway{cfg: cfg, client: client}
}

// Name 网关名
func (g *Gateway) Name() string {
	return constants.PaymentGatewayWalletA
}

// BuildSession 调用下单接口
func (g *Gateway) BuildSession(ctx context.Context, req payment.SessionRequest) (*payment.SessionResult, error) {
	if err := ValidateConfig(g.cfg); err != nil {
		return nil, err
	}
	amount, err := payment.WholeUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "Order " + req.TransactionCode
	}
	body := createRequest{
		PartnerCode: g.cfg.PartnerCode,
		AccessKey:   g.cfg.AccessKey,
		RequestID:   req.TransactionCode,
		Amount:      amount,
		OrderID:     req.TransactionCode,
		OrderInfo:   orderInfo,
		RedirectURL: g.cfg.RedirectURL,
		IPNURL:      g.cfg.IPNURL,
		ExtraData:   "",
		RequestType: g.cfg.RequestType,
		Lang:        g.cfg.Lang,
	}
	body.Signature = payment.HMACSHA256Hex(g.cfg.SecretKey, payment.JoinPipe(
		body.PartnerCode,
		body.RequestID,
		strconv.FormatInt(body.Amount, 10),
		body.OrderID,
		body.OrderInfo,
		body.RedirectURL,
		body.IPNURL,
		body.ExtraData,
	))

	respBytes, err := payment.PostJSON(ctx, g.client, g.cfg.CreateURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	var resp createResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode failed", ErrResponseInvalid)
	}
	if resp.ResultCode != constants.WalletACallbackResultOK || strings.TrimSpace(resp.PayURL) == "" {
		return nil, fmt.Errorf("%w: result_code=%d message=%s", ErrResponseInvalid, resp.ResultCode, resp.Message)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	return &payment.SessionResult{
		RedirectURL: strings.TrimSpace(resp.PayURL),
		ProviderRef: resp.RequestID,
		Raw:         raw,
	}, nil
}

// VerifyCallback 校验回调签名
func (g *Gateway) VerifyCallback(payload payment.CallbackPayload) bool {
	if g.cfg == nil || g.cfg.SecretKey == "" {
		return false
	}
	var body CallbackBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return false
	}
	expected := payment.HMACSHA256Hex(g.cfg.SecretKey, body.SignContent())
	return payment.SignatureEqual(expected, body.Signature)
}

// ParseCallback 解析回调
func (g *Gateway) ParseCallback(payload payment.CallbackPayload) (*payment.CallbackOutcome, error) {
	var body CallbackBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: decode failed", ErrResponseInvalid)
	}
	if strings.TrimSpace(body.OrderID) == "" {
		return nil, fmt.Errorf("%w: order_id missing", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(payload.Body, &raw)
	providerRef := ""
	if body.TransID > 0 {
		providerRef = strconv.FormatInt(body.TransID, 10)
	}
	return &payment.CallbackOutcome{
		TransactionCode: strings.TrimSpace(body.OrderID),
		Success:         body.ResultCode == constants.WalletACallbackResultOK,
		Amount:          models.NewMoneyFromInt(body.Amount),
		ProviderRef:     providerRef,
		ResultCode:      strconv.Itoa(body.ResultCode),
		Message:         body.Message,
		Raw:             raw,
	}, nil
}

// Sign 为回调体补签名，供模拟回调与测试使用
func Sign(secretKey string, body *CallbackBody) {
	body.Signature = payment.HMACSHA256Hex(secretKey, body.SignContent())
}
