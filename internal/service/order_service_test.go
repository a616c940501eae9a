package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestCheckoutCODCreatesPendingOrderWithPaidPayment(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "300000", 5)
	env.createCoupon(t, &models.Coupon{
		Code:              "SAVE10",
		DiscountType:      constants.CouponTypePercent,
		DiscountValue:     models.MustMoney("10"),
		MaxDiscountAmount: models.MustMoney("50000"),
	})

	result, err := env.orders.Checkout(context.Background(), CheckoutInput{
		UserID:          7,
		Items:           []LineItemInput{lineFor(product, 2)},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
		CouponCode:      "save10",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.RedirectURL != "" {
		t.Fatalf("cod checkout should not redirect, got %s", result.RedirectURL)
	}
	if result.Order == nil || result.Order.Status != constants.OrderStatusPending {
		t.Fatalf("expected pending order, got %+v", result.Order)
	}
	if result.Payment.Status != constants.PaymentStatusSuccess || result.Payment.PaidAt == nil {
		t.Fatalf("expected paid payment, got %+v", result.Payment)
	}
	if result.Order.PaymentID == nil || *result.Order.PaymentID != result.Payment.ID {
		t.Fatalf("order should reference payment %d", result.Payment.ID)
	}
	// 600000 - min(60000, 50000) + 30000
	if !result.Order.TotalPrice.Equal(decimal.NewFromInt(580000)) {
		t.Fatalf("unexpected total %s", result.Order.TotalPrice.String())
	}
	if !result.Order.DiscountAmount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected discount %s", result.Order.DiscountAmount.String())
	}
	if len(result.Order.Items) != 1 || !result.Order.Items[0].CouponDiscount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected items %+v", result.Order.Items)
	}
	if got := env.variantStock(t, product.Variants[0].ID); got != 3 {
		t.Fatalf("want stock 3 got %d", got)
	}
	coupon, _ := env.couponRepo.GetByCode("SAVE10")
	if coupon.UsedCount != 1 {
		t.Fatalf("want used count 1 got %d", coupon.UsedCount)
	}
}

// holdPaymentCreates 让前 n 次支付写入在开启事务前互相等待，
// 保证并发下单都已通过库存预检后再进入扣减
func holdPaymentCreates(t *testing.T, db *gorm.DB, n int32) {
	t.Helper()
	var arrived int32
	var ready sync.WaitGroup
	ready.Add(int(n))
	err := db.Callback().Create().Before("gorm:begin_transaction").Register("test:hold_payment", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "payments" {
			return
		}
		if atomic.AddInt32(&arrived, 1) > n {
			return
		}
		ready.Done()
		ready.Wait()
	})
	if err != nil {
		t.Fatalf("register callback failed: %v", err)
	}
}

func TestCheckoutConcurrentLastUnit(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "150000", 1)
	holdPaymentCreates(t, env.db, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	results := make([]*CheckoutResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.orders.Checkout(context.Background(), CheckoutInput{
				UserID:          uint(10 + i),
				Items:           []LineItemInput{lineFor(product, 1)},
				ShippingAddress: testAddress(),
				PaymentMethod:   constants.PaymentGatewayCOD,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	var loser uint
	for i, err := range errs {
		if err == nil {
			succeeded++
			if results[i].Order == nil {
				t.Fatalf("successful checkout must carry an order")
			}
			continue
		}
		if !errors.Is(err, ErrStockExhausted) {
			t.Fatalf("losing checkout want ErrStockExhausted got %v", err)
		}
		loser = uint(10 + i)
	}
	if succeeded != 1 {
		t.Fatalf("exactly one checkout should succeed, got %d", succeeded)
	}
	if got := env.variantStock(t, product.Variants[0].ID); got != 0 {
		t.Fatalf("want final stock 0 got %d", got)
	}
	var orders int64
	env.db.Model(&models.Order{}).Count(&orders)
	if orders != 1 {
		t.Fatalf("want 1 order got %d", orders)
	}
	var lost models.Payment
	if err := env.db.Where("user_id = ?", loser).First(&lost).Error; err != nil {
		t.Fatalf("load losing payment failed: %v", err)
	}
	if lost.Status != constants.PaymentStatusFailed || lost.ReconcileNote != constants.PaymentNoteUnfulfilled {
		t.Fatalf("losing cod payment must be failed: %+v", lost)
	}
}

func TestCheckoutSequentialLastUnit(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "150000", 1)
	input := func(userID uint) CheckoutInput {
		return CheckoutInput{
			UserID:          userID,
			Items:           []LineItemInput{lineFor(product, 1)},
			ShippingAddress: testAddress(),
			PaymentMethod:   constants.PaymentGatewayCOD,
		}
	}
	if _, err := env.orders.Checkout(context.Background(), input(10)); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	if _, err := env.orders.Checkout(context.Background(), input(11)); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock got %v", err)
	}
}

func TestCheckoutCouponUsageLimitNeverExceeded(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "100000", 50)
	coupon := env.createCoupon(t, &models.Coupon{
		Code:          "LIMIT2",
		DiscountType:  constants.CouponTypeFixed,
		DiscountValue: models.MustMoney("10000"),
		UsageLimit:    2,
	})

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orders.Checkout(context.Background(), CheckoutInput{
				UserID:          uint(100 + i),
				Items:           []LineItemInput{lineFor(product, 1)},
				ShippingAddress: testAddress(),
				PaymentMethod:   constants.PaymentGatewayCOD,
				CouponCode:      "LIMIT2",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, ErrCouponUsageLimit) && !errors.Is(err, ErrCouponExhausted) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Fatalf("want 2 redemptions got %d", succeeded)
	}
	reloaded, _ := env.couponRepo.GetByID(coupon.ID)
	if reloaded.UsedCount != 2 {
		t.Fatalf("want used count 2 got %d", reloaded.UsedCount)
	}
	var withCoupon int64
	env.db.Model(&models.Order{}).Where("coupon_id = ?", coupon.ID).Count(&withCoupon)
	if withCoupon != 2 {
		t.Fatalf("want 2 orders with coupon got %d", withCoupon)
	}
	if got := env.variantStock(t, product.Variants[0].ID); got != 48 {
		t.Fatalf("failed checkouts must not consume stock, got %d", got)
	}
}

func TestCheckoutValidatesInput(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "100000", 1)

	base := CheckoutInput{
		UserID:          1,
		Items:           []LineItemInput{lineFor(product, 1)},
		ShippingAddress: testAddress(),
		PaymentMethod:   constants.PaymentGatewayCOD,
	}

	noAddress := base
	noAddress.ShippingAddress = models.ShippingAddress{Recipient: "A"}
	if _, err := env.orders.Checkout(context.Background(), noAddress); !errors.Is(err, ErrShippingAddressInvalid) {
		t.Fatalf("want ErrShippingAddressInvalid got %v", err)
	}
	unknownMethod := base
	unknownMethod.PaymentMethod = "bitcoin"
	if _, err := env.orders.Checkout(context.Background(), unknownMethod); !errors.Is(err, ErrPaymentMethodInvalid) {
		t.Fatalf("want ErrPaymentMethodInvalid got %v", err)
	}
	tooMany := base
	tooMany.Items = []LineItemInput{lineFor(product, 2)}
	if _, err := env.orders.Checkout(context.Background(), tooMany); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock got %v", err)
	}
	var payments int64
	env.db.Model(&models.Payment{}).Count(&payments)
	if payments != 0 {
		t.Fatalf("rejected checkouts must not create payments, got %d", payments)
	}
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "100000", 3)
	env.createCoupon(t, &models.Coupon{
		Code:          "FIX20K",
		DiscountType:  constants.CouponTypeFixed,
		DiscountValue: models.MustMoney("20000"),
	})

	quote, err := env.orders.Preview(context.Background(), PreviewInput{
		UserID:     1,
		Items:      []LineItemInput{lineFor(product, 2)},
		CouponCode: "FIX20K",
	})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if !quote.TotalPrice.Equal(decimal.NewFromInt(210000)) {
		t.Fatalf("unexpected total %s", quote.TotalPrice.String())
	}
	if got := env.variantStock(t, product.Variants[0].ID); got != 3 {
		t.Fatalf("preview must not touch stock, got %d", got)
	}
	coupon, _ := env.couponRepo.GetByCode("FIX20K")
	if coupon.UsedCount != 0 {
		t.Fatalf("preview must not redeem coupon")
	}
}

func TestShippingFeeWaivedAboveThreshold(t *testing.T) {
	env := setupServiceTest(t, "")
	env.orders.cfg.FreeShippingThreshold = 500000
	if fee := env.orders.shippingFee(decimal.NewFromInt(499999)); !fee.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("want fee 30000 got %s", fee.String())
	}
	if fee := env.orders.shippingFee(decimal.NewFromInt(500000)); !fee.IsZero() {
		t.Fatalf("want free shipping got %s", fee.String())
	}
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "100000", 5)
	result, err := env.orders.Checkout(context.Background(), CheckoutInput{
		UserID:          3,
		Items:           []LineItemInput{lineFor(product, 1)},
		ShippingAddress: testAddress(),
		PaymentMethod:   constants.PaymentGatewayCOD,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	orderID := result.Order.ID

	if _, err := env.orders.UpdateStatus(context.Background(), orderID, "lost"); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("want ErrOrderStatusInvalid got %v", err)
	}
	if _, err := env.orders.UpdateStatus(context.Background(), orderID, constants.OrderStatusShipping); !errors.Is(err, ErrOrderTransitionInvalid) {
		t.Fatalf("pending -> shipping should be rejected, got %v", err)
	}
	for _, status := range []string{constants.OrderStatusConfirmed, constants.OrderStatusShipping, constants.OrderStatusDelivered} {
		order, err := env.orders.UpdateStatus(context.Background(), orderID, status)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if order.Status != status {
			t.Fatalf("want %s got %s", status, order.Status)
		}
	}
	if _, err := env.orders.UpdateStatus(context.Background(), orderID, constants.OrderStatusCancelled); !errors.Is(err, ErrOrderTransitionInvalid) {
		t.Fatalf("delivered order must not regress, got %v", err)
	}
	if _, err := env.orders.UpdateStatus(context.Background(), 9999, constants.OrderStatusConfirmed); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound got %v", err)
	}
}

func TestCancelByUserRestoresStockAndCoupon(t *testing.T) {
	env := setupServiceTest(t, "")
	product := env.createProduct(t, 1, "100000", 5)
	coupon := env.createCoupon(t, &models.Coupon{
		Code:          "FIX10K",
		DiscountType:  constants.CouponTypeFixed,
		DiscountValue: models.MustMoney("10000"),
		UsageLimit:    1,
	})
	result, err := env.orders.Checkout(context.Background(), CheckoutInput{
		UserID:          8,
		Items:           []LineItemInput{lineFor(product, 2)},
		ShippingAddress: testAddress(),
		PaymentMethod:   constants.PaymentGatewayCOD,
		CouponCode:      "FIX10K",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	orderID := result.Order.ID

	if _, err := env.orders.CancelByUser(context.Background(), 9, orderID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("other user must not cancel, got %v", err)
	}
	order, err := env.orders.CancelByUser(context.Background(), 8, orderID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if order.Status != constants.OrderStatusCancelled || order.CancelledAt == nil {
		t.Fatalf("unexpected order after cancel: %+v", order)
	}
	if got := env.variantStock(t, product.Variants[0].ID); got != 5 {
		t.Fatalf("stock should be restored to 5, got %d", got)
	}
	reloadedProduct, _ := env.productRepo.GetByID(product.ID)
	if reloadedProduct.SoldCount != 0 {
		t.Fatalf("sold count should be 0, got %d", reloadedProduct.SoldCount)
	}
	reloadedCoupon, _ := env.couponRepo.GetByID(coupon.ID)
	if reloadedCoupon.UsedCount != 0 {
		t.Fatalf("coupon usage should be released, got %d", reloadedCoupon.UsedCount)
	}
	if _, err := env.orders.CancelByUser(context.Background(), 8, orderID); !errors.Is(err, ErrOrderCancelNotAllowed) {
		t.Fatalf("second cancel should fail, got %v", err)
	}
}
