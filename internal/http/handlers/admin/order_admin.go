package admin

import (
	"strconv"
	"strings"
	"time"

	handlershared "github.com/dujiao-next/checkout/internal/http/handlers/shared"
	"github.com/dujiao-next/checkout/internal/http/response"
	"github.com/dujiao-next/checkout/internal/repository"

	"github.com/gin-gonic/gin"
)

// UpdateOrderStatusRequest 更新订单状态请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AdminListOrders 管理端订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "created_from 格式错误", nil)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "created_to 格式错误", nil)
		return
	}
	var userID uint
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			userID = uint(parsed)
		}
	}

	orders, total, err := h.OrderService.ListAdmin(c.Request.Context(), repository.OrderListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      userID,
		Status:      strings.TrimSpace(c.Query("status")),
		OrderNo:     strings.TrimSpace(c.Query("order_no")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		handlershared.RespondWithMappedError(c, err, handlershared.OrderErrorRules)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 管理端订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetAdmin(c.Request.Context(), orderID)
	if err != nil {
		handlershared.RespondWithMappedError(c, err, handlershared.OrderErrorRules)
		return
	}
	response.Success(c, order)
}

// AdminUpdateOrderStatus 管理端推进订单状态
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	order, err := h.OrderService.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		handlershared.RespondWithMappedError(c, err, handlershared.OrderErrorRules)
		return
	}
	handlershared.RequestLog(c).Infow("admin_order_status_updated",
		"order_id", order.ID,
		"status", order.Status,
		"role", c.GetString("admin_role"),
	)
	response.Success(c, order)
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
