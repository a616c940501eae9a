package walleta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, createURL string, timeout time.Duration) *Gateway {
	t.Helper()
	cfg, err := ParseConfig(map[string]interface{}{
		"partner_code": "PARTNER",
		"access_key":   "ak",
		"secret_key":   "sk-wallet-a",
		"create_url":   createURL,
		"redirect_url": "https://shop.example/payment/result",
		"ipn_url":      "https://shop.example/api/v1/payment/walletA/callback",
	})
	require.NoError(t, err)
	return New(cfg, payment.NewHTTPClient(timeout))
}

func TestBuildSessionSignsRequest(t *testing.T) {
	var received createRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(createResponse{ResultCode: 0, Message: "ok", PayURL: "https://wallet-a.example/pay/1", RequestID: received.RequestID})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL, time.Second)
	result, err := gw.BuildSession(context.Background(), payment.SessionRequest{
		TransactionCode: "260102deadbeef",
		Amount:          models.MustMoney("120000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://wallet-a.example/pay/1", result.RedirectURL)

	expected := payment.HMACSHA256Hex("sk-wallet-a", payment.JoinPipe(
		received.PartnerCode, received.RequestID, strconv.FormatInt(received.Amount, 10),
		received.OrderID, received.OrderInfo, received.RedirectURL, received.IPNURL, received.ExtraData,
	))
	assert.Equal(t, expected, received.Signature)
	assert.Equal(t, int64(120000), received.Amount)
}

func TestBuildSessionProviderFailures(t *testing.T) {
	rejected := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(createResponse{ResultCode: 41, Message: "duplicate"})
	}))
	defer rejected.Close()
	_, err := newTestGateway(t, rejected.URL, time.Second).BuildSession(context.Background(), payment.SessionRequest{
		TransactionCode: "x", Amount: models.MustMoney("1000"),
	})
	assert.ErrorIs(t, err, payment.ErrResponseInvalid)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	_, err = newTestGateway(t, broken.URL, time.Second).BuildSession(context.Background(), payment.SessionRequest{
		TransactionCode: "x", Amount: models.MustMoney("1000"),
	})
	assert.ErrorIs(t, err, payment.ErrRequestFailed)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	_, err = newTestGateway(t, slow.URL, 20*time.Millisecond).BuildSession(context.Background(), payment.SessionRequest{
		TransactionCode: "x", Amount: models.MustMoney("1000"),
	})
	assert.ErrorIs(t, err, payment.ErrRequestFailed)
}

func TestBuildSessionRejectsFractionalAmount(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1", time.Second)
	_, err := gw.BuildSession(context.Background(), payment.SessionRequest{
		TransactionCode: "x", Amount: models.MustMoney("10.50"),
	})
	assert.ErrorIs(t, err, payment.ErrAmountInvalid)
}

func TestCallbackVerifyAndParse(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1", time.Second)
	body := CallbackBody{
		PartnerCode: "PARTNER",
		OrderID:     "260102deadbeef",
		RequestID:   "260102deadbeef",
		Amount:      120000,
		ResultCode:  0,
		TransID:     998877,
		Message:     "Successful.",
	}
	Sign("sk-wallet-a", &body)
	raw, _ := json.Marshal(body)

	payload := payment.CallbackPayload{Body: raw}
	require.True(t, gw.VerifyCallback(payload))
	outcome, err := gw.ParseCallback(payload)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "260102deadbeef", outcome.TransactionCode)
	assert.Equal(t, "998877", outcome.ProviderRef)
	assert.True(t, outcome.Amount.Equal(models.MustMoney("120000").Decimal))

	body.Amount = 1
	tampered, _ := json.Marshal(body)
	assert.False(t, gw.VerifyCallback(payment.CallbackPayload{Body: tampered}))
	assert.False(t, gw.VerifyCallback(payment.CallbackPayload{Body: []byte("not-json")}))
}
