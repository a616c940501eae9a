package bankredirect

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
)

const (
	defaultVersion   = "2.1.0"
	defaultCommand   = "pay"
	defaultLocale    = "vn"
	defaultOrderType = "other"
	dateLayout       = "20060102150405"

	paramSecureHash     = "secure_hash"
	paramSecureHashType = "secure_hash_type"
	secureHashType      = "HmacSHA512"
)

var (
	ErrConfigInvalid    = fmt.Errorf("bank redirect config invalid: %w", payment.ErrConfigInvalid)
	ErrSignatureInvalid = fmt.Errorf("bank redirect signature invalid: %w", payment.ErrSignatureInvalid)
	ErrResponseInvalid  = fmt.Errorf("bank redirect response invalid: %w", payment.ErrResponseInvalid)
)

// Config 银行跳转网关配置
type Config struct {
	PayURL       string `json:"pay_url"`       // 网关支付页地址
	MerchantCode string `json:"merchant_code"` // 商户号
	HashSecret   string `json:"hash_secret"`   // 签名密钥
	ReturnURL    string `json:"return_url"`    // 同步返回地址
	Version      string `json:"version"`
	Locale       string `json:"locale"`
	OrderType    string `json:"order_type"`
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := payment.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.PayURL == "" {
		return fmt.Errorf("%w: pay_url is required", ErrConfigInvalid)
	}
	if cfg.MerchantCode == "" {
		return fmt.Errorf("%w: merchant_code is required", ErrConfigInvalid)
	}
	if cfg.HashSecret == "" {
		return fmt.Errorf("%w: hash_secret is required", ErrConfigInvalid)
	}
	if cfg.ReturnURL == "" {
		return fmt.Errorf("%w: return_url is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.PayURL = strings.TrimSpace(c.PayURL)
	c.MerchantCode = strings.TrimSpace(c.MerchantCode)
	c.HashSecret = strings.TrimSpace(c.HashSecret)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
	if c.Version == "" {
		c.Version = defaultVersion
	}
	if c.Locale == "" {
		c.Locale = defaultLocale
	}
	if c.OrderType == "" {
		c.OrderType = defaultOrderType
	}
}

// Gateway 银行跳转网关：签名跳转链接，无需服务端请求
type Gateway struct {
	cfg *Config
	now func() time.Time
}

// New 创建网关
func New(cfg *Config) *Gateway {
	return &Gateway{cfg: cfg, now: time.Now}
}

// Name 网关名
func (g *Gateway) Name() string {
	return constants.PaymentGatewayBankRedirect
}

// BuildSession 构建签名跳转链接
func (g *Gateway) BuildSession(ctx context.Context, req payment.SessionRequest) (*payment.SessionResult, error) {
	if err := ValidateConfig(g.cfg); err != nil {
		return nil, err
	}
	if req.TransactionCode == "" || !req.Amount.Decimal.IsPositive() {
		return nil, payment.ErrAmountInvalid
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = g.now()
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "Thanh toan don hang " + req.TransactionCode
	}

	params := url.Values{}
	params.Set("version", g.cfg.Version)
	params.Set("command", defaultCommand)
	params.Set("merchant_code", g.cfg.MerchantCode)
	params.Set("amount", strconv.FormatInt(req.Amount.MinorUnits(), 10))
	params.Set("currency", req.Currency)
	params.Set("txn_ref", req.TransactionCode)
	params.Set("order_info", orderInfo)
	params.Set("order_type", g.cfg.OrderType)
	params.Set("locale", g.cfg.Locale)
	params.Set("return_url", g.cfg.ReturnURL)
	params.Set("ip_addr", req.ClientIP)
	params.Set("create_date", createdAt.Format(dateLayout))
	if !req.ExpiresAt.IsZero() {
		params.Set("expire_date", req.ExpiresAt.Format(dateLayout))
	}

	query := canonicalQuery(params)
	signature := payment.HMACSHA512Hex(g.cfg.HashSecret, query)
	redirectURL := g.cfg.PayURL + "?" + query + "&" + paramSecureHash + "=" + signature

	return &payment.SessionResult{
		RedirectURL: redirectURL,
		Raw: map[string]interface{}{
			"txn_ref": req.TransactionCode,
		},
	}, nil
}

// VerifyCallback 校验返回参数签名
func (g *Gateway) VerifyCallback(payload payment.CallbackPayload) bool {
	if g.cfg == nil || g.cfg.HashSecret == "" || payload.Query == nil {
		return false
	}
	received := payload.Query.Get(paramSecureHash)
	if received == "" {
		return false
	}
	expected := payment.HMACSHA512Hex(g.cfg.HashSecret, canonicalQuery(payload.Query))
	return payment.SignatureEqual(expected, received)
}

// ParseCallback 解析返回参数
func (g *Gateway) ParseCallback(payload payment.CallbackPayload) (*payment.CallbackOutcome, error) {
	if payload.Query == nil {
		return nil, ErrResponseInvalid
	}
	code := strings.TrimSpace(payload.Query.Get("txn_ref"))
	if code == "" {
		return nil, fmt.Errorf("%w: txn_ref missing", ErrResponseInvalid)
	}
	minor, err := strconv.ParseInt(strings.TrimSpace(payload.Query.Get("amount")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount invalid", ErrResponseInvalid)
	}
	responseCode := strings.TrimSpace(payload.Query.Get("response_code"))
	status := strings.TrimSpace(payload.Query.Get("transaction_status"))
	success := responseCode == constants.BankRedirectResponseSuccess &&
		(status == "" || status == constants.BankRedirectResponseSuccess)

	raw := make(map[string]interface{}, len(payload.Query))
	for key := range payload.Query {
		raw[key] = payload.Query.Get(key)
	}
	return &payment.CallbackOutcome{
		TransactionCode: code,
		Success:         success,
		Amount:          models.MoneyFromMinorUnits(minor),
		ProviderRef:     strings.TrimSpace(payload.Query.Get("transaction_no")),
		ResultCode:      responseCode,
		Raw:             raw,
	}, nil
}

// canonicalQuery 参数按键名排序并 URL 编码，跳过空值与签名字段
func canonicalQuery(values url.Values) string {
	filtered := url.Values{}
	for key, vals := range values {
		if key == paramSecureHash || key == paramSecureHashType {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		filtered.Set(key, vals[0])
	}
	return filtered.Encode()
}
