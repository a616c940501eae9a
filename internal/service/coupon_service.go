package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/repository"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CouponService 优惠券校验与计算
type CouponService struct {
	couponRepo repository.CouponRepository
	usageRepo  repository.CouponUsageRepository
	categories *CategoryService
	now        func() time.Time
}

// NewCouponService 创建优惠券服务
func NewCouponService(couponRepo repository.CouponRepository, usageRepo repository.CouponUsageRepository, categories *CategoryService) *CouponService {
	return &CouponService{
		couponRepo: couponRepo,
		usageRepo:  usageRepo,
		categories: categories,
		now:        time.Now,
	}
}

// CouponItem 参与优惠计算的订单行
type CouponItem struct {
	ProductID  uint
	CategoryID uint
	LineTotal  models.Money
}

// CouponEvaluateInput 优惠券校验输入
type CouponEvaluateInput struct {
	Code     string
	UserID   uint
	Items    []CouponItem
	Subtotal models.Money
}

// CouponQuote 优惠券计算结果
type CouponQuote struct {
	Coupon         *models.Coupon
	DiscountAmount models.Money
	// Base 折扣计算基数（不限范围为订单小计，限定范围为命中商品小计）
	Base models.Money
	// Allocations 与输入 Items 一一对应的分摊金额，未命中的行为 0
	Allocations []models.Money
	Matched     []bool
}

// Evaluate 校验优惠券并计算折扣，不产生任何副作用
func (s *CouponService) Evaluate(ctx context.Context, input CouponEvaluateInput) (*CouponQuote, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, ErrCouponInvalid
	}
	coupon, err := s.couponRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}

	now := s.now()
	if now.Before(coupon.StartsAt) {
		return nil, ErrCouponNotStarted
	}
	if now.After(coupon.EndsAt) {
		return nil, ErrCouponExpired
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return nil, ErrCouponUsageLimit
	}
	if coupon.PerUserLimit > 0 {
		count, err := s.usageRepo.CountByUser(coupon.ID, input.UserID)
		if err != nil {
			return nil, err
		}
		if count >= int64(coupon.PerUserLimit) {
			return nil, ErrCouponPerUserLimit
		}
	}

	matched, err := s.matchItems(ctx, coupon, input.Items)
	if err != nil {
		return nil, err
	}
	base := decimal.Zero
	hasMatch := false
	for i, item := range input.Items {
		if matched[i] {
			hasMatch = true
			base = base.Add(item.LineTotal.Decimal)
		}
	}
	if !hasMatch {
		return nil, ErrCouponNotApplicable
	}
	if !coupon.IsRestricted() {
		base = input.Subtotal.Decimal
	}

	if coupon.MinOrderAmount.Decimal.IsPositive() && input.Subtotal.Decimal.LessThan(coupon.MinOrderAmount.Decimal) {
		return nil, ErrCouponMinAmount
	}

	discount, err := computeDiscount(coupon, base)
	if err != nil {
		return nil, err
	}
	return &CouponQuote{
		Coupon:         coupon,
		DiscountAmount: models.NewMoneyFromDecimal(discount),
		Base:           models.NewMoneyFromDecimal(base),
		Allocations:    allocateDiscount(discount, input.Items, matched),
		Matched:        matched,
	}, nil
}

// matchItems 标记命中优惠券适用范围的订单行，不限范围时全部命中
func (s *CouponService) matchItems(ctx context.Context, coupon *models.Coupon, items []CouponItem) ([]bool, error) {
	matched := make([]bool, len(items))
	if !coupon.IsRestricted() {
		for i := range items {
			matched[i] = true
		}
		return matched, nil
	}

	productSet := make(map[uint]struct{}, len(coupon.ApplicableProductIDs))
	for _, id := range coupon.ApplicableProductIDs {
		productSet[id] = struct{}{}
	}
	categorySet := map[uint]struct{}{}
	if len(coupon.ApplicableCategoryIDs) > 0 {
		expanded, err := s.categories.ExpandWithDescendants(ctx, coupon.ApplicableCategoryIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range expanded {
			categorySet[id] = struct{}{}
		}
	}

	for i, item := range items {
		if _, ok := productSet[item.ProductID]; ok {
			matched[i] = true
			continue
		}
		if _, ok := categorySet[item.CategoryID]; ok {
			matched[i] = true
		}
	}
	return matched, nil
}

func computeDiscount(coupon *models.Coupon, base decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}
	var discount decimal.Decimal
	switch strings.ToLower(strings.TrimSpace(coupon.DiscountType)) {
	case constants.CouponTypePercent:
		discount = base.Mul(coupon.DiscountValue.Decimal).Div(hundred)
	case constants.CouponTypeFixed:
		discount = coupon.DiscountValue.Decimal
	default:
		return decimal.Zero, ErrCouponInvalid
	}
	if discount.IsNegative() {
		return decimal.Zero, ErrCouponInvalid
	}
	if coupon.MaxDiscountAmount.Decimal.IsPositive() && discount.GreaterThan(coupon.MaxDiscountAmount.Decimal) {
		discount = coupon.MaxDiscountAmount.Decimal
	}
	if discount.GreaterThan(base) {
		discount = base
	}
	return discount.Round(2), nil
}

// allocateDiscount 按命中行金额占比分摊折扣，尾差计入最后一个命中行
func allocateDiscount(discount decimal.Decimal, items []CouponItem, matched []bool) []models.Money {
	allocations := make([]models.Money, len(items))
	for i := range allocations {
		allocations[i] = models.NewMoneyFromInt(0)
	}
	if !discount.IsPositive() {
		return allocations
	}

	last := -1
	base := decimal.Zero
	for i, item := range items {
		if matched[i] {
			last = i
			base = base.Add(item.LineTotal.Decimal)
		}
	}
	if last < 0 || !base.IsPositive() {
		return allocations
	}

	remaining := discount
	for i, item := range items {
		if !matched[i] {
			continue
		}
		if i == last {
			allocations[i] = models.NewMoneyFromDecimal(remaining)
			break
		}
		share := discount.Mul(item.LineTotal.Decimal).Div(base).Truncate(2)
		if share.GreaterThan(remaining) {
			share = remaining
		}
		allocations[i] = models.NewMoneyFromDecimal(share)
		remaining = remaining.Sub(share)
	}
	return allocations
}
