package public

import (
	"strings"

	handlershared "github.com/dujiao-next/checkout/internal/http/handlers/shared"
	"github.com/dujiao-next/checkout/internal/http/response"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/repository"
	"github.com/dujiao-next/checkout/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	Items           []service.LineItemInput `json:"items" binding:"required"`
	ShippingAddress models.ShippingAddress  `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method" binding:"required"`
	CouponCode      string                  `json:"coupon_code"`
}

// PreviewOrderRequest 订单预览请求
type PreviewOrderRequest struct {
	Items      []service.LineItemInput `json:"items" binding:"required"`
	CouponCode string                  `json:"coupon_code"`
}

// CreateOrder 下单：货到付款直接返回订单，网关支付返回跳转链接
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	result, err := h.OrderService.Checkout(c.Request.Context(), service.CheckoutInput{
		UserID:          uid,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		ClientIP:        c.ClientIP(),
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	if result.Order != nil {
		response.Created(c, gin.H{
			"order":   result.Order,
			"payment": result.Payment,
		})
		return
	}
	response.Success(c, gin.H{
		"redirect_url":     result.RedirectURL,
		"payment_id":       result.Payment.ID,
		"transaction_code": result.Payment.TransactionCode,
	})
}

// PreviewOrder 订单金额预览，不产生任何写入
func (h *Handler) PreviewOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req PreviewOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	quote, err := h.OrderService.Preview(c.Request.Context(), service.PreviewInput{
		UserID:     uid,
		Items:      req.Items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}
	response.Success(c, quote)
}

// ListOrders 获取当前用户订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)

	orders, total, err := h.OrderService.ListByUser(c.Request.Context(), repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uid,
		Status:   strings.TrimSpace(c.Query("status")),
		OrderNo:  strings.TrimSpace(c.Query("order_no")),
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// GetOrder 获取当前用户的订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.OrderService.GetByUser(c.Request.Context(), uid, orderID)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// CancelOrder 用户取消待处理订单
func (h *Handler) CancelOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.OrderService.CancelByUser(c.Request.Context(), uid, orderID)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}
