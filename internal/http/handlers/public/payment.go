package public

import (
	"strings"

	"github.com/dujiao-next/checkout/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetPayment 查询当前用户的支付状态及关联订单
func (h *Handler) GetPayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	code := strings.TrimSpace(c.Param("transaction_code"))
	if code == "" {
		respondError(c, response.CodeBadRequest, "交易流水号不能为空", nil)
		return
	}

	record, order, err := h.PaymentService.GetByTransactionCodeForUser(c.Request.Context(), uid, code)
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment": record,
		"order":   order,
	})
}
