package service

import (
	"context"
	"sort"
	"strings"

	"github.com/dujiao-next/checkout/internal/metrics"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineItemInput 下单行（商品 + 规格选择 + 数量）
type LineItemInput struct {
	ProductID uint   `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// AssembledCart 定价后的订单行
type AssembledCart struct {
	Items    []models.OrderContextItem
	Subtotal models.Money
}

// StockLine 库存变动行
type StockLine struct {
	ProductID uint
	VariantID uint
	Quantity  int
}

// OrderAssembler 订单组装与库存扣减
type OrderAssembler struct {
	productRepo repository.ProductRepository
	variantRepo repository.ProductVariantRepository
}

// NewOrderAssembler 创建订单组装器
func NewOrderAssembler(productRepo repository.ProductRepository, variantRepo repository.ProductVariantRepository) *OrderAssembler {
	return &OrderAssembler{productRepo: productRepo, variantRepo: variantRepo}
}

// Assemble 解析规格、校验库存并计算行金额，不扣减库存
func (a *OrderAssembler) Assemble(ctx context.Context, lines []LineItemInput) (*AssembledCart, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidOrderItem
	}

	products := make(map[uint]*models.Product)
	items := make([]models.OrderContextItem, 0, len(lines))
	positions := make(map[uint]int)
	variants := make(map[uint]*models.ProductVariant)
	for _, line := range lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return nil, ErrInvalidOrderItem
		}
		product, ok := products[line.ProductID]
		if !ok {
			loaded, err := a.productRepo.GetByID(line.ProductID)
			if err != nil {
				return nil, err
			}
			if loaded == nil || !loaded.IsActive {
				return nil, ErrProductNotFound
			}
			products[line.ProductID] = loaded
			product = loaded
		}
		variant := findVariant(product, line.Color, line.Size)
		if variant == nil {
			return nil, ErrVariantNotFound
		}

		// 同一规格出现在多行时先合并，再做库存校验
		if pos, seen := positions[variant.ID]; seen {
			items[pos].Quantity += line.Quantity
			continue
		}
		positions[variant.ID] = len(items)
		variants[variant.ID] = variant
		items = append(items, models.OrderContextItem{
			ProductID:       product.ID,
			VariantID:       variant.ID,
			CategoryID:      product.CategoryID,
			ProductName:     product.Name,
			Color:           variant.Color,
			Size:            variant.Size,
			ListPrice:       variant.UnitPrice,
			DiscountPercent: variant.DiscountPercent,
			UnitPrice:       discountedUnitPrice(variant),
			Quantity:        line.Quantity,
		})
	}

	subtotal := decimal.Zero
	for i := range items {
		variant := variants[items[i].VariantID]
		if items[i].Quantity > variant.StockQuantity {
			return nil, ErrInsufficientStock
		}
		lineTotal := items[i].UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
		items[i].LineTotal = models.NewMoneyFromDecimal(lineTotal)
		items[i].CouponDiscount = models.NewMoneyFromInt(0)
		subtotal = subtotal.Add(items[i].LineTotal.Decimal)
	}
	return &AssembledCart{Items: items, Subtotal: models.NewMoneyFromDecimal(subtotal)}, nil
}

// ReserveStock 在事务内按规格 ID 顺序条件扣减库存并累加销量
func (a *OrderAssembler) ReserveStock(tx *gorm.DB, lines []StockLine) error {
	variantRepo := a.variantRepo.WithTx(tx)
	productRepo := a.productRepo.WithTx(tx)

	byVariant, byProduct := groupStockLines(lines)
	for _, line := range byVariant {
		rows, err := variantRepo.DecrementStock(line.VariantID, line.Quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			metrics.StockConflictsTotal.Inc()
			return ErrStockExhausted
		}
	}
	for _, line := range byProduct {
		if err := productRepo.IncrementSoldCount(line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseStock 在事务内回补库存并扣减销量
func (a *OrderAssembler) ReleaseStock(tx *gorm.DB, lines []StockLine) error {
	variantRepo := a.variantRepo.WithTx(tx)
	productRepo := a.productRepo.WithTx(tx)

	byVariant, byProduct := groupStockLines(lines)
	for _, line := range byVariant {
		if _, err := variantRepo.RestoreStock(line.VariantID, line.Quantity); err != nil {
			return err
		}
	}
	for _, line := range byProduct {
		if err := productRepo.DecrementSoldCount(line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// StockLinesFromContext 从订单上下文提取库存变动行
func StockLinesFromContext(items []models.OrderContextItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return lines
}

// StockLinesFromOrder 从订单项提取库存变动行
func StockLinesFromOrder(items []models.OrderItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return lines
}

// groupStockLines 按规格与商品聚合数量，均按 ID 升序返回，固定加锁顺序
func groupStockLines(lines []StockLine) ([]StockLine, []StockLine) {
	variantQty := make(map[uint]int)
	productQty := make(map[uint]int)
	for _, line := range lines {
		if line.VariantID == 0 || line.Quantity <= 0 {
			continue
		}
		variantQty[line.VariantID] += line.Quantity
		productQty[line.ProductID] += line.Quantity
	}
	byVariant := make([]StockLine, 0, len(variantQty))
	for id, qty := range variantQty {
		byVariant = append(byVariant, StockLine{VariantID: id, Quantity: qty})
	}
	sort.Slice(byVariant, func(i, j int) bool { return byVariant[i].VariantID < byVariant[j].VariantID })
	byProduct := make([]StockLine, 0, len(productQty))
	for id, qty := range productQty {
		if id == 0 {
			continue
		}
		byProduct = append(byProduct, StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(byProduct, func(i, j int) bool { return byProduct[i].ProductID < byProduct[j].ProductID })
	return byVariant, byProduct
}

func findVariant(product *models.Product, color, size string) *models.ProductVariant {
	color = strings.TrimSpace(color)
	size = strings.TrimSpace(size)
	for i := range product.Variants {
		variant := &product.Variants[i]
		if strings.EqualFold(strings.TrimSpace(variant.Color), color) && strings.EqualFold(strings.TrimSpace(variant.Size), size) {
			return variant
		}
	}
	return nil
}

// discountedUnitPrice 规格折后单价 round2(unitPrice * (1 - discountPercent/100))
func discountedUnitPrice(variant *models.ProductVariant) models.Money {
	percent := variant.DiscountPercent.Decimal
	if percent.IsNegative() {
		percent = decimal.Zero
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	factor := hundred.Sub(percent).Div(hundred)
	return models.NewMoneyFromDecimal(variant.UnitPrice.Decimal.Mul(factor))
}
