package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
	"github.com/dujiao-next/checkout/internal/payment/cod"
	"github.com/dujiao-next/checkout/internal/payment/walletb"
	"github.com/dujiao-next/checkout/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testWalletBKey1 = "key1-secret"
	testWalletBKey2 = "key2-secret"
)

type serviceTestEnv struct {
	db          *gorm.DB
	categories  *CategoryService
	coupons     *CouponService
	assembler   *OrderAssembler
	payments    *PaymentService
	orders      *OrderService
	couponRepo  *repository.GormCouponRepository
	variantRepo *repository.GormProductVariantRepository
	productRepo *repository.GormProductRepository
	paymentRepo *repository.GormPaymentRepository
	orderRepo   *repository.GormOrderRepository
}

func setupServiceTest(t *testing.T, walletBCreateURL string) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), models.NewGormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	// 单连接串行化写入，避免 sqlite 并发写锁冲突
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewProductVariantRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	usageRepo := repository.NewCouponUsageRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	registry := payment.NewRegistry(
		cod.New(),
		walletb.New(&walletb.Config{
			AppID:     "2553",
			Key1:      testWalletBKey1,
			Key2:      testWalletBKey2,
			CreateURL: walletBCreateURL,
		}, payment.NewHTTPClient(2*time.Second)),
	)

	categories := NewCategoryService(categoryRepo)
	coupons := NewCouponService(couponRepo, usageRepo, categories)
	assembler := NewOrderAssembler(productRepo, variantRepo)
	materializer := NewOrderMaterializer(orderRepo, couponRepo, usageRepo, assembler)
	payments := NewPaymentService(paymentRepo, orderRepo, registry, materializer, nil, 30*time.Minute)
	orders := NewOrderService(OrderServiceOptions{
		OrderRepo:       orderRepo,
		CouponRepo:      couponRepo,
		CouponUsageRepo: usageRepo,
		Assembler:       assembler,
		Coupons:         coupons,
		Payments:        payments,
		Config: config.OrderConfig{
			Currency:    "VND",
			ShippingFee: 30000,
		},
	})

	return &serviceTestEnv{
		db:          db,
		categories:  categories,
		coupons:     coupons,
		assembler:   assembler,
		payments:    payments,
		orders:      orders,
		couponRepo:  couponRepo,
		variantRepo: variantRepo,
		productRepo: productRepo,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
	}
}

func (e *serviceTestEnv) createCategory(t *testing.T, slug string, parentID *uint) *models.Category {
	t.Helper()
	category := &models.Category{Slug: slug, Name: slug, ParentID: parentID}
	if err := e.db.Create(category).Error; err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	return category
}

func (e *serviceTestEnv) createProduct(t *testing.T, categoryID uint, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		CategoryID: categoryID,
		Slug:       fmt.Sprintf("product-%d", time.Now().UnixNano()),
		Name:       "Linen Shirt",
		IsActive:   true,
		Variants: []models.ProductVariant{
			{Color: "White", Size: "M", UnitPrice: models.MustMoney(price), StockQuantity: stock},
		},
	}
	if err := e.productRepo.Create(product); err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func (e *serviceTestEnv) createCoupon(t *testing.T, coupon *models.Coupon) *models.Coupon {
	t.Helper()
	if coupon.StartsAt.IsZero() {
		coupon.StartsAt = time.Now().Add(-time.Hour)
	}
	if coupon.EndsAt.IsZero() {
		coupon.EndsAt = time.Now().Add(24 * time.Hour)
	}
	coupon.IsActive = true
	if err := e.couponRepo.Create(coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return coupon
}

func (e *serviceTestEnv) variantStock(t *testing.T, variantID uint) int {
	t.Helper()
	variant, err := e.variantRepo.GetByID(variantID)
	if err != nil || variant == nil {
		t.Fatalf("load variant failed: %v", err)
	}
	return variant.StockQuantity
}

func testAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Recipient: "Nguyen Van A",
		Phone:     "0900000000",
		Line1:     "12 Le Loi",
		City:      "Ho Chi Minh",
	}
}

func lineFor(product *models.Product, quantity int) LineItemInput {
	return LineItemInput{ProductID: product.ID, Color: "white", Size: " m ", Quantity: quantity}
}

// createPendingWalletBPayment 直接写入一笔待支付的钱包 B 支付记录
func (e *serviceTestEnv) createPendingWalletBPayment(t *testing.T, product *models.Product, quantity int) *models.Payment {
	t.Helper()
	cart, err := e.assembler.Assemble(context.Background(), []LineItemInput{lineFor(product, quantity)})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	record := &models.Payment{
		UserID:          7,
		TransactionCode: generateTransactionCode(time.Now()),
		Gateway:         constants.PaymentGatewayWalletB,
		Amount:          cart.Subtotal,
		Currency:        "VND",
		Status:          constants.PaymentStatusPending,
		OrderContext: models.OrderContext{
			UserID:          7,
			Items:           cart.Items,
			ShippingAddress: testAddress(),
			Currency:        "VND",
			Subtotal:        cart.Subtotal,
			DiscountAmount:  models.NewMoneyFromInt(0),
			ShippingFee:     models.NewMoneyFromInt(0),
			TotalPrice:      cart.Subtotal,
		},
	}
	if err := e.paymentRepo.Create(record); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return record
}

func signedWalletBCallback(t *testing.T, record *models.Payment, status int, key string) payment.CallbackPayload {
	t.Helper()
	body, err := walletb.Sign(key, walletb.CallbackData{
		AppID:      "2553",
		AppTransID: record.TransactionCode,
		AppTime:    time.Now().UnixMilli(),
		AppUser:    "user_7",
		Amount:     record.Amount.IntPart(),
		ZpTransID:  240101000123,
		Status:     status,
	})
	if err != nil {
		t.Fatalf("sign callback failed: %v", err)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal callback failed: %v", err)
	}
	return payment.CallbackPayload{Body: raw}
}
