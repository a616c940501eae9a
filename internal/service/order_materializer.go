package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/metrics"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/repository"

	"gorm.io/gorm"
)

// errOrderAlreadyMaterialized 支付记录对应的订单已被并发写入
var errOrderAlreadyMaterialized = errors.New("order already materialized for payment")

// OrderMaterializer 根据支付记录中的订单上下文创建订单
type OrderMaterializer struct {
	orderRepo       repository.OrderRepository
	couponRepo      repository.CouponRepository
	couponUsageRepo repository.CouponUsageRepository
	assembler       *OrderAssembler
}

// NewOrderMaterializer 创建订单物化器
func NewOrderMaterializer(
	orderRepo repository.OrderRepository,
	couponRepo repository.CouponRepository,
	couponUsageRepo repository.CouponUsageRepository,
	assembler *OrderAssembler,
) *OrderMaterializer {
	return &OrderMaterializer{
		orderRepo:       orderRepo,
		couponRepo:      couponRepo,
		couponUsageRepo: couponUsageRepo,
		assembler:       assembler,
	}
}

// Materialize 在事务内扣减库存、核销优惠券并创建订单
// 已存在同一支付记录的订单时直接返回该订单，created 为 false
func (m *OrderMaterializer) Materialize(tx *gorm.DB, payment *models.Payment) (*models.Order, bool, error) {
	if payment == nil || payment.ID == 0 {
		return nil, false, ErrPaymentNotFound
	}
	orderRepo := m.orderRepo.WithTx(tx)
	existing, err := orderRepo.GetByPaymentID(payment.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	orderCtx := payment.OrderContext
	if len(orderCtx.Items) == 0 {
		return nil, false, ErrInvalidOrderItem
	}
	if err := m.assembler.ReserveStock(tx, StockLinesFromContext(orderCtx.Items)); err != nil {
		return nil, false, err
	}
	if orderCtx.CouponID != nil {
		if err := m.redeemCoupon(tx, *orderCtx.CouponID, orderCtx.UserID); err != nil {
			return nil, false, err
		}
	}

	paymentID := payment.ID
	order := &models.Order{
		OrderNo:         generateOrderNo(),
		UserID:          orderCtx.UserID,
		Status:          constants.OrderStatusPending,
		Currency:        orderCtx.Currency,
		ShippingAddress: orderCtx.ShippingAddress,
		Subtotal:        orderCtx.Subtotal,
		DiscountAmount:  orderCtx.DiscountAmount,
		ShippingFee:     orderCtx.ShippingFee,
		TotalPrice:      orderCtx.TotalPrice,
		CouponID:        orderCtx.CouponID,
		CouponCode:      orderCtx.CouponCode,
		PaymentMethod:   payment.Gateway,
		PaymentID:       &paymentID,
	}
	items := make([]models.OrderItem, 0, len(orderCtx.Items))
	for _, item := range orderCtx.Items {
		items = append(items, models.OrderItem{
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			ProductName:     item.ProductName,
			Color:           item.Color,
			Size:            item.Size,
			UnitPrice:       item.UnitPrice,
			ListPrice:       item.ListPrice,
			DiscountPercent: item.DiscountPercent,
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal,
			CouponDiscount:  item.CouponDiscount,
		})
	}
	if err := orderRepo.Create(order, items); err != nil {
		if repository.IsDuplicateKeyError(err) {
			return nil, false, errOrderAlreadyMaterialized
		}
		return nil, false, err
	}

	if orderCtx.CouponID != nil {
		usage := &models.CouponUsage{
			CouponID:       *orderCtx.CouponID,
			UserID:         orderCtx.UserID,
			OrderID:        order.ID,
			DiscountAmount: orderCtx.DiscountAmount,
		}
		if err := m.couponUsageRepo.WithTx(tx).Create(usage); err != nil {
			return nil, false, err
		}
	}
	return order, true, nil
}

// redeemCoupon 条件累加优惠券使用次数，并复核每人限用
func (m *OrderMaterializer) redeemCoupon(tx *gorm.DB, couponID, userID uint) error {
	couponRepo := m.couponRepo.WithTx(tx)
	coupon, err := couponRepo.GetByID(couponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return ErrCouponNotFound
	}
	if coupon.PerUserLimit > 0 {
		count, err := m.couponUsageRepo.WithTx(tx).CountByUser(couponID, userID)
		if err != nil {
			return err
		}
		if count >= int64(coupon.PerUserLimit) {
			metrics.CouponExhaustedTotal.Inc()
			return ErrCouponExhausted
		}
	}
	rows, err := couponRepo.IncrementUsedCount(couponID)
	if err != nil {
		return err
	}
	if rows == 0 {
		metrics.CouponExhaustedTotal.Inc()
		return ErrCouponExhausted
	}
	return nil
}

// isLateBusinessFailure 条件扣减在并发下失败（库存或优惠券已被抢完）
func isLateBusinessFailure(err error) bool {
	return errors.Is(err, ErrStockExhausted) || errors.Is(err, ErrCouponExhausted)
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("OD%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
