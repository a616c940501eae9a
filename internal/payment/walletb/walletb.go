package walletb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
)

// 回调 data 中的支付状态
const callbackStatusPaid = 1

var (
	ErrConfigInvalid    = fmt.Errorf("wallet b config invalid: %w", payment.ErrConfigInvalid)
	ErrRequestFailed    = fmt.Errorf("wallet b request failed: %w", payment.ErrRequestFailed)
	ErrResponseInvalid  = fmt.Errorf("wallet b response invalid: %w", payment.ErrResponseInvalid)
	ErrSignatureInvalid = fmt.Errorf("wallet b signature invalid: %w", payment.ErrSignatureInvalid)
)

// Config 钱包 B 配置
type Config struct {
	AppID       string `json:"app_id"`       // 应用ID
	Key1        string `json:"key1"`         // 下单签名密钥
	Key2        string `json:"key2"`         // 回调验签密钥
	CreateURL   string `json:"create_url"`   // 创建订单接口
	CallbackURL string `json:"callback_url"` // 异步通知地址
	RedirectURL string `json:"redirect_url"` // 支付完成跳转
	BankCode    string `json:"bank_code"`
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := payment.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.Key1 = strings.TrimSpace(cfg.Key1)
	cfg.Key2 = strings.TrimSpace(cfg.Key2)
	cfg.CreateURL = strings.TrimSpace(cfg.CreateURL)
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.AppID == "" {
		return fmt.Errorf("%w: app_id is required", ErrConfigInvalid)
	}
	if cfg.Key1 == "" || cfg.Key2 == "" {
		return fmt.Errorf("%w: key1 and key2 are required", ErrConfigInvalid)
	}
	if cfg.CreateURL == "" {
		return fmt.Errorf("%w: create_url is required", ErrConfigInvalid)
	}
	return nil
}

type createRequest struct {
	AppID                 string `json:"app_id"`
	AppTransID            string `json:"app_trans_id"`
	AppUser               string `json:"app_user"`
	AppTime               int64  `json:"app_time"`
	Amount                int64  `json:"amount"`
	Item                  string `json:"item"`
	EmbedData             string `json:"embed_data"`
	Description           string `json:"description"`
	BankCode              string `json:"bank_code"`
	CallbackURL           string `json:"callback_url,omitempty"`
	ExpireDurationSeconds int64  `json:"expire_duration_seconds,omitempty"` // 不参与 mac
	Mac                   string `json:"mac"`
}

type createResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	OrderURL      string `json:"order_url"`
	ZpTransToken  string `json:"zp_trans_token"`
}

// CallbackBody 钱包 B 异步通知
type CallbackBody struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

// CallbackData 回调 data 字段内容
type CallbackData struct {
	AppID      string `json:"app_id"`
	AppTransID string `json:"app_trans_id"`
	AppTime    int64  `json:"app_time"`
	AppUser    string `json:"app_user"`
	Amount     int64  `json:"amount"`
	ZpTransID  int64  `json:"zp_trans_id"`
	Status     int    `json:"status"`
}

// Ack 回调应答
type Ack struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

// Gateway 钱包 B：key1 签名下单，key2 校验回调
type Gateway struct {
	cfg    *Config
	client *http.Client
	now    func() time.Time
}

// New 创建网关
func New(cfg *Config, client *http.Client) *Gateway {
	if client == nil {
		client = payment.NewHTTPClient(0)
	}
	return &Gateway{cfg: cfg, client: client, now: time.Now}
}

// Name 网关名
func (g *Gateway) Name() string {
	return constants.PaymentGatewayWalletB
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
	embed, _ := json.Marshal(map[string]string{"redirecturl": g.cfg.RedirectURL})
	body := createRequest{
		AppID:       g.cfg.AppID,
		AppTransID:  req.TransactionCode,
		AppUser:     "user_" + strconv.FormatUint(uint64(req.UserID), 10),
		AppTime:     g.now().UnixMilli(),
		Amount:      amount,
		Item:        "[]",
		EmbedData:   string(embed),
		Description: req.OrderInfo,
		BankCode:    g.cfg.BankCode,
		CallbackURL: g.cfg.CallbackURL,
	}
	if body.Description == "" {
		body.Description = "Payment for order #" + req.TransactionCode
	}
	if !req.ExpiresAt.IsZero() {
		if remaining := int64(req.ExpiresAt.Sub(g.now()).Seconds()); remaining > 0 {
			body.ExpireDurationSeconds = remaining
		}
	}
	body.Mac = payment.HMACSHA256Hex(g.cfg.Key1, payment.JoinPipe(
		body.AppID,
		body.AppTransID,
		body.AppUser,
		strconv.FormatInt(body.Amount, 10),
		strconv.FormatInt(body.AppTime, 10),
		body.EmbedData,
		body.Item,
	))

	respBytes, err := payment.PostJSON(ctx, g.client, g.cfg.CreateURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	var resp createResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode failed", ErrResponseInvalid)
	}
	if resp.ReturnCode != constants.WalletBReturnCodeSuccess || strings.TrimSpace(resp.OrderURL) == "" {
		return nil, fmt.Errorf("%w: return_code=%d message=%s", ErrResponseInvalid, resp.ReturnCode, resp.ReturnMessage)
	}
	return &payment.SessionResult{
		RedirectURL: strings.TrimSpace(resp.OrderURL),
		ProviderRef: resp.ZpTransToken,
		Raw: map[string]interface{}{
			"return_code":    resp.ReturnCode,
			"return_message": resp.ReturnMessage,
			"order_url":      resp.OrderURL,
		},
	}, nil
}

// VerifyCallback 校验 mac = HMAC-SHA256(key2, data)
func (g *Gateway) VerifyCallback(payload payment.CallbackPayload) bool {
	if g.cfg == nil || g.cfg.Key2 == "" {
		return false
	}
	var body CallbackBody
	if err := json.Unmarshal(payload.Body, &body); err != nil || body.Data == "" {
		return false
	}
	return payment.SignatureEqual(payment.HMACSHA256Hex(g.cfg.Key2, body.Data), body.Mac)
}

// ParseCallback 解析回调 data
func (g *Gateway) ParseCallback(payload payment.CallbackPayload) (*payment.CallbackOutcome, error) {
	var body CallbackBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: decode body failed", ErrResponseInvalid)
	}
	var data CallbackData
	if err := json.Unmarshal([]byte(body.Data), &data); err != nil {
		return nil, fmt.Errorf("%w: decode data failed", ErrResponseInvalid)
	}
	if strings.TrimSpace(data.AppTransID) == "" {
		return nil, fmt.Errorf("%w: app_trans_id missing", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal([]byte(body.Data), &raw)
	providerRef := ""
	if data.ZpTransID > 0 {
		providerRef = strconv.FormatInt(data.ZpTransID, 10)
	}
	return &payment.CallbackOutcome{
		TransactionCode: strings.TrimSpace(data.AppTransID),
		Success:         data.Status == callbackStatusPaid,
		Amount:          models.NewMoneyFromInt(data.Amount),
		ProviderRef:     providerRef,
		ResultCode:      strconv.Itoa(data.Status),
		Raw:             raw,
	}, nil
}

// Sign 生成带 mac 的回调体，供模拟回调与测试使用
func Sign(key2 string, data CallbackData) (CallbackBody, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CallbackBody{}, err
	}
	return CallbackBody{Data: string(raw), Mac: payment.HMACSHA256Hex(key2, string(raw))}, nil
}
