package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/metrics"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/queue"
	"github.com/dujiao-next/checkout/internal/repository"
	"github.com/dujiao-next/checkout/internal/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// OrderService 下单与订单生命周期
type OrderService struct {
	orderRepo       repository.OrderRepository
	couponRepo      repository.CouponRepository
	couponUsageRepo repository.CouponUsageRepository
	assembler       *OrderAssembler
	coupons         *CouponService
	payments        *PaymentService
	queueClient     *queue.Client
	cfg             config.OrderConfig
}

// OrderServiceOptions 订单服务依赖
type OrderServiceOptions struct {
	OrderRepo       repository.OrderRepository
	CouponRepo      repository.CouponRepository
	CouponUsageRepo repository.CouponUsageRepository
	Assembler       *OrderAssembler
	Coupons         *CouponService
	Payments        *PaymentService
	QueueClient     *queue.Client
	Config          config.OrderConfig
}

// NewOrderService 创建订单服务
func NewOrderService(opts OrderServiceOptions) *OrderService {
	return &OrderService{
		orderRepo:       opts.OrderRepo,
		couponRepo:      opts.CouponRepo,
		couponUsageRepo: opts.CouponUsageRepo,
		assembler:       opts.Assembler,
		coupons:         opts.Coupons,
		payments:        opts.Payments,
		queueClient:     opts.QueueClient,
		cfg:             opts.Config,
	}
}

// CheckoutInput 下单输入
type CheckoutInput struct {
	UserID          uint
	Items           []LineItemInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	ClientIP        string
}

// CheckoutResult 下单结果：货到付款直接返回订单，网关支付返回跳转链接
type CheckoutResult struct {
	Order       *models.Order
	Payment     *models.Payment
	RedirectURL string
}

// PreviewInput 下单预览输入
type PreviewInput struct {
	UserID     uint
	Items      []LineItemInput
	CouponCode string
}

// OrderQuote 订单报价
type OrderQuote struct {
	Items          []models.OrderContextItem
	Subtotal       models.Money
	DiscountAmount models.Money
	ShippingFee    models.Money
	TotalPrice     models.Money
	Coupon         *models.Coupon
	Currency       string
}

// Checkout 校验、定价并创建支付会话
func (s *OrderService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "order.checkout",
		attribute.Int64("user_id", int64(input.UserID)),
		attribute.String("payment_method", input.PaymentMethod),
	)
	result, err := s.checkout(ctx, input)
	telemetry.EndSpan(span, err)

	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if err != nil {
		metrics.CheckoutTotal.WithLabelValues(method, metrics.ResultFailed).Inc()
		logger.Ctx(ctx, "user_id", input.UserID, "payment_method", method).Warnw("order_checkout_failed", "error", err)
		return nil, err
	}
	metrics.CheckoutTotal.WithLabelValues(method, metrics.ResultSuccess).Inc()
	return result, nil
}

func (s *OrderService) checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidOrderItem
	}
	address, err := normalizeShippingAddress(input.ShippingAddress)
	if err != nil {
		return nil, err
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method == "" || !s.payments.SupportsGateway(method) {
		return nil, ErrPaymentMethodInvalid
	}

	quote, err := s.quote(ctx, input.UserID, input.Items, input.CouponCode)
	if err != nil {
		return nil, err
	}
	orderCtx := models.OrderContext{
		UserID:          input.UserID,
		Items:           quote.Items,
		ShippingAddress: address,
		Currency:        quote.Currency,
		Subtotal:        quote.Subtotal,
		DiscountAmount:  quote.DiscountAmount,
		ShippingFee:     quote.ShippingFee,
		TotalPrice:      quote.TotalPrice,
	}
	if quote.Coupon != nil {
		couponID := quote.Coupon.ID
		orderCtx.CouponID = &couponID
		orderCtx.CouponCode = quote.Coupon.Code
	}

	session, err := s.payments.CreateSession(ctx, CreateSessionInput{
		UserID:       input.UserID,
		Gateway:      method,
		OrderContext: orderCtx,
		ClientIP:     input.ClientIP,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		Order:       session.Order,
		Payment:     session.Payment,
		RedirectURL: session.RedirectURL,
	}, nil
}

// Preview 计算订单报价，不落库不占用库存
func (s *OrderService) Preview(ctx context.Context, input PreviewInput) (*OrderQuote, error) {
	return s.quote(ctx, input.UserID, input.Items, input.CouponCode)
}

func (s *OrderService) quote(ctx context.Context, userID uint, lines []LineItemInput, couponCode string) (*OrderQuote, error) {
	cart, err := s.assembler.Assemble(ctx, lines)
	if err != nil {
		return nil, err
	}

	discount := models.NewMoneyFromInt(0)
	var coupon *models.Coupon
	if code := strings.TrimSpace(couponCode); code != "" {
		couponItems := make([]CouponItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			couponItems = append(couponItems, CouponItem{
				ProductID:  item.ProductID,
				CategoryID: item.CategoryID,
				LineTotal:  item.LineTotal,
			})
		}
		couponQuote, err := s.coupons.Evaluate(ctx, CouponEvaluateInput{
			Code:     code,
			UserID:   userID,
			Items:    couponItems,
			Subtotal: cart.Subtotal,
		})
		if err != nil {
			return nil, err
		}
		for i := range cart.Items {
			cart.Items[i].CouponDiscount = couponQuote.Allocations[i]
		}
		discount = couponQuote.DiscountAmount
		coupon = couponQuote.Coupon
	}

	afterDiscount := cart.Subtotal.Decimal.Sub(discount.Decimal)
	shippingFee := s.shippingFee(afterDiscount)
	return &OrderQuote{
		Items:          cart.Items,
		Subtotal:       cart.Subtotal,
		DiscountAmount: discount,
		ShippingFee:    shippingFee,
		TotalPrice:     models.NewMoneyFromDecimal(afterDiscount.Add(shippingFee.Decimal)),
		Coupon:         coupon,
		Currency:       s.currency(),
	}, nil
}

// shippingFee 统一运费，满额包邮
func (s *OrderService) shippingFee(afterDiscount decimal.Decimal) models.Money {
	fee := decimal.NewFromFloat(s.cfg.ShippingFee)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	threshold := decimal.NewFromFloat(s.cfg.FreeShippingThreshold)
	if threshold.IsPositive() && afterDiscount.GreaterThanOrEqual(threshold) {
		fee = decimal.Zero
	}
	return models.NewMoneyFromDecimal(fee)
}

func (s *OrderService) currency() string {
	currency := strings.ToUpper(strings.TrimSpace(s.cfg.Currency))
	if currency == "" {
		return constants.CurrencyDefault
	}
	return currency
}

func normalizeShippingAddress(address models.ShippingAddress) (models.ShippingAddress, error) {
	address.Recipient = strings.TrimSpace(address.Recipient)
	address.Phone = strings.TrimSpace(address.Phone)
	address.Line1 = strings.TrimSpace(address.Line1)
	address.Ward = strings.TrimSpace(address.Ward)
	address.District = strings.TrimSpace(address.District)
	address.City = strings.TrimSpace(address.City)
	address.Note = strings.TrimSpace(address.Note)
	if address.Recipient == "" || address.Phone == "" || address.Line1 == "" || address.City == "" {
		return address, ErrShippingAddressInvalid
	}
	return address, nil
}

// UpdateStatus 管理端更新订单状态
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, status string) (*models.Order, error) {
	target, ok := normalizeOrderStatus(status)
	if !ok {
		return nil, ErrOrderStatusInvalid
	}
	var from string
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.WithTx(tx).GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		from = order.Status
		if !isTransitionAllowed(order.Status, target) {
			return ErrOrderTransitionInvalid
		}
		return s.transition(tx, order, target)
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx, "order_id", orderID).Infow("order_status_updated", "from", from, "to", target)
	s.notifyStatus(orderID, from, target)
	return s.orderRepo.GetByID(orderID)
}

// CancelByUser 用户取消待处理订单
func (s *OrderService) CancelByUser(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.WithTx(tx).GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.Status != constants.OrderStatusPending {
			return ErrOrderCancelNotAllowed
		}
		if err := s.transition(tx, order, constants.OrderStatusCancelled); err != nil {
			if errors.Is(err, ErrOrderTransitionInvalid) {
				return ErrOrderCancelNotAllowed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx, "order_id", orderID, "user_id", userID).Infow("order_cancelled_by_user")
	s.notifyStatus(orderID, constants.OrderStatusPending, constants.OrderStatusCancelled)
	return s.orderRepo.GetByID(orderID)
}

// transition 条件流转状态，取消时回补库存并释放优惠券
func (s *OrderService) transition(tx *gorm.DB, order *models.Order, target string) error {
	updates := map[string]interface{}{}
	if target == constants.OrderStatusCancelled {
		updates["cancelled_at"] = time.Now()
	}
	rows, err := s.orderRepo.WithTx(tx).TransitionStatus(order.ID, order.Status, target, updates)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderTransitionInvalid
	}
	if target != constants.OrderStatusCancelled {
		return nil
	}
	if err := s.assembler.ReleaseStock(tx, StockLinesFromOrder(order.Items)); err != nil {
		return err
	}
	if order.CouponID == nil {
		return nil
	}
	deleted, err := s.couponUsageRepo.WithTx(tx).DeleteByOrderID(order.ID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return nil
	}
	_, err = s.couponRepo.WithTx(tx).DecrementUsedCount(*order.CouponID)
	return err
}

func (s *OrderService) notifyStatus(orderID uint, from, to string) {
	if err := s.queueClient.EnqueueOrderStatus(queue.OrderStatusPayload{OrderID: orderID, From: from, To: to}); err != nil {
		logger.Warnw("order_status_enqueue_failed", "order_id", orderID, "to", to, "error", err)
	}
}

// GetByUser 获取用户自己的订单
func (s *OrderService) GetByUser(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetAdmin 管理端获取订单
func (s *OrderService) GetAdmin(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListByUser 用户订单列表
func (s *OrderService) ListByUser(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if filter.Status != "" {
		status, ok := normalizeOrderStatus(filter.Status)
		if !ok {
			return nil, 0, ErrOrderStatusInvalid
		}
		filter.Status = status
	}
	return s.orderRepo.ListByUser(filter)
}

// ListAdmin 管理端订单列表
func (s *OrderService) ListAdmin(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if filter.Status != "" {
		status, ok := normalizeOrderStatus(filter.Status)
		if !ok {
			return nil, 0, ErrOrderStatusInvalid
		}
		filter.Status = status
	}
	return s.orderRepo.ListAdmin(filter)
}
