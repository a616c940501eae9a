package public

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/payment"
	"github.com/dujiao-next/checkout/internal/payment/walleta"
	"github.com/dujiao-next/checkout/internal/payment/walletb"
	"github.com/dujiao-next/checkout/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	callbackBodyLimit     = 1 << 20
	callbackLogValueLimit = 512
)

// BankRedirectReturn 银行跳转网关同步返回：对账后跳转到结果页
func (h *Handler) BankRedirectReturn(c *gin.Context) {
	query := c.Request.URL.Query()
	requestLog(c).Infow("payment_callback_received",
		"gateway", constants.PaymentGatewayBankRedirect,
		"client_ip", c.ClientIP(),
		"query", truncateCallbackLogValue(query.Encode()),
	)

	result, err := h.PaymentService.HandleCallback(c.Request.Context(), constants.PaymentGatewayBankRedirect, payment.CallbackPayload{
		Query:   query,
		Headers: callbackHeaders(c),
	})
	if errors.Is(err, service.ErrPaymentSignatureInvalid) {
		respondPaymentError(c, err)
		return
	}

	transactionCode := strings.TrimSpace(query.Get("txn_ref"))
	target := h.Config.Payment.FailRedirectURL
	params := url.Values{}
	if err == nil && result.Paid() {
		target = h.Config.Payment.SuccessRedirectURL
		if result.Order != nil {
			params.Set("orderId", strconv.FormatUint(uint64(result.Order.ID), 10))
		}
	}
	if err != nil {
		requestLog(c).Warnw("payment_return_reconcile_failed", "transaction_code", transactionCode, "error", err)
	}
	if transactionCode != "" {
		params.Set("transactionCode", transactionCode)
	}
	c.Redirect(http.StatusFound, appendQuery(target, params))
}

// WalletACallback 钱包 A 异步通知
func (h *Handler) WalletACallback(c *gin.Context) {
	body, ok := readCallbackBody(c)
	if !ok {
		c.JSON(http.StatusBadRequest, walleta.Ack{ResultCode: constants.WalletACallbackResultError, Message: "invalid body"})
		return
	}

	result, err := h.PaymentService.HandleCallback(c.Request.Context(), constants.PaymentGatewayWalletA, payment.CallbackPayload{
		Body:    body,
		Headers: callbackHeaders(c),
	})
	switch {
	case err == nil:
		message := "success"
		if result.Duplicate {
			message = "duplicate"
		}
		c.JSON(http.StatusOK, walleta.Ack{ResultCode: constants.WalletACallbackResultOK, Message: message})
	case errors.Is(err, service.ErrPaymentSignatureInvalid):
		c.JSON(http.StatusBadRequest, walleta.Ack{ResultCode: constants.WalletACallbackResultSignature, Message: "signature invalid"})
	case errors.Is(err, service.ErrOrderMaterializeFailed):
		// 款项已记录，停止网关重试，由人工退款
		c.JSON(http.StatusOK, walleta.Ack{ResultCode: constants.WalletACallbackResultOK, Message: "recorded"})
	default:
		requestLog(c).Warnw("payment_callback_reconcile_failed", "gateway", constants.PaymentGatewayWalletA, "error", err)
		c.JSON(callbackErrorStatus(err), walleta.Ack{ResultCode: constants.WalletACallbackResultError, Message: err.Error()})
	}
}

// WalletBCallback 钱包 B 异步通知
func (h *Handler) WalletBCallback(c *gin.Context) {
	body, ok := readCallbackBody(c)
	if !ok {
		c.JSON(http.StatusBadRequest, walletb.Ack{ReturnCode: constants.WalletBReturnCodeFailed, ReturnMessage: "invalid body"})
		return
	}

	result, err := h.PaymentService.HandleCallback(c.Request.Context(), constants.PaymentGatewayWalletB, payment.CallbackPayload{
		Body:    body,
		Headers: callbackHeaders(c),
	})
	switch {
	case err == nil && result.Duplicate:
		c.JSON(http.StatusOK, walletb.Ack{ReturnCode: constants.WalletBReturnCodeDuplicate, ReturnMessage: "duplicate"})
	case err == nil:
		c.JSON(http.StatusOK, walletb.Ack{ReturnCode: constants.WalletBReturnCodeSuccess, ReturnMessage: "success"})
	case errors.Is(err, service.ErrPaymentSignatureInvalid):
		c.JSON(http.StatusBadRequest, walletb.Ack{ReturnCode: constants.WalletBReturnCodeMacInvalid, ReturnMessage: "mac not equal"})
	case errors.Is(err, service.ErrOrderMaterializeFailed):
		// 款项已记录，停止网关重试，由人工退款
		c.JSON(http.StatusOK, walletb.Ack{ReturnCode: constants.WalletBReturnCodeSuccess, ReturnMessage: "recorded"})
	default:
		requestLog(c).Warnw("payment_callback_reconcile_failed", "gateway", constants.PaymentGatewayWalletB, "error", err)
		c.JSON(callbackErrorStatus(err), walletb.Ack{ReturnCode: constants.WalletBReturnCodeFailed, ReturnMessage: err.Error()})
	}
}

// callbackErrorStatus 可重试错误返回 5xx，其余返回 4xx
func callbackErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPaymentCallbackMismatch),
		errors.Is(err, service.ErrPaymentCallbackInvalid),
		errors.Is(err, service.ErrPaymentGatewayUnsupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func readCallbackBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyLimit))
	if err != nil || len(body) == 0 {
		requestLog(c).Warnw("payment_callback_body_invalid", "error", err)
		return nil, false
	}
	requestLog(c).Infow("payment_callback_received",
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
		"body", truncateCallbackLogValue(string(body)),
	)
	return body, true
}

func callbackHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.Request.Header.Get(key)
	}
	return headers
}

func appendQuery(target string, params url.Values) string {
	if len(params) == 0 {
		return target
	}
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	return target + separator + params.Encode()
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

