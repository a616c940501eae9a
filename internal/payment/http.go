package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dujiao-next/checkout/internal/models"
)

// DefaultHTTPTimeout 网关请求默认超时
const DefaultHTTPTimeout = 10 * time.Second

// NewHTTPClient 创建带超时的 HTTP 客户端
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// PostJSON 以 JSON 发起服务端请求，网络错误、超时与非 2xx 均归为 ErrRequestFailed
func PostJSON(ctx context.Context, client *http.Client, endpoint string, body interface{}) ([]byte, error) {
	if client == nil {
		client = NewHTTPClient(0)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	return respBody, nil
}

// DecodeConfig 将网关原始配置映射到结构体
func DecodeConfig(raw map[string]interface{}, dest interface{}) error {
	if raw == nil {
		return fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	return nil
}

// WholeUnits 钱包类网关只接受正整数金额
func WholeUnits(amount models.Money) (int64, error) {
	if !amount.Decimal.IsPositive() || !amount.Decimal.Equal(amount.Decimal.Truncate(0)) {
		return 0, ErrAmountInvalid
	}
	return amount.Decimal.IntPart(), nil
}
