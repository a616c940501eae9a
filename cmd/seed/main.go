package main

import (
	"errors"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedVariant struct {
	Color    string
	Size     string
	Price    int64
	Discount int64
	Stock    int
}

type seedProduct struct {
	Category string
	Slug     string
	Name     string
	Variants []seedVariant
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 分类树：服装 > 衬衫，配饰
	apparel := ensureCategory(stdLog, "apparel", "服装", nil)
	var apparelID *uint
	if apparel != nil {
		apparelID = &apparel.ID
	}
	shirts := ensureCategory(stdLog, "shirts", "衬衫", apparelID)
	accessories := ensureCategory(stdLog, "accessories", "配饰", nil)

	categoryIDs := map[string]uint{}
	for slug, cat := range map[string]*models.Category{"apparel": apparel, "shirts": shirts, "accessories": accessories} {
		if cat != nil {
			categoryIDs[slug] = cat.ID
		}
	}

	products := []seedProduct{
		{
			Category: "shirts",
			Slug:     "linen-shirt",
			Name:     "亚麻衬衫",
			Variants: []seedVariant{
				{Color: "White", Size: "M", Price: 275000, Stock: 50},
				{Color: "White", Size: "L", Price: 275000, Stock: 30},
				{Color: "Navy", Size: "M", Price: 295000, Discount: 10, Stock: 20},
			},
		},
		{
			Category: "apparel",
			Slug:     "cotton-tee",
			Name:     "纯棉 T 恤",
			Variants: []seedVariant{
				{Color: "Black", Size: "S", Price: 150000, Stock: 100},
				{Color: "Black", Size: "M", Price: 150000, Stock: 100},
			},
		},
		{
			Category: "accessories",
			Slug:     "canvas-tote",
			Name:     "帆布托特包",
			Variants: []seedVariant{
				{Color: "Natural", Size: "OS", Price: 90000, Discount: 5, Stock: 3},
			},
		},
	}

	for _, item := range products {
		categoryID, ok := categoryIDs[item.Category]
		if !ok {
			stdLog.Printf("Category missing for product %s", item.Slug)
			continue
		}
		var existing models.Product
		err := models.DB.Where("slug = ?", item.Slug).First(&existing).Error
		if err == nil {
			stdLog.Printf("Product already exists: %s", item.Slug)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			stdLog.Printf("Failed to query product %s: %v", item.Slug, err)
			continue
		}
		product := models.Product{
			CategoryID: categoryID,
			Slug:       item.Slug,
			Name:       item.Name,
			IsActive:   true,
		}
		for i, v := range item.Variants {
			product.Variants = append(product.Variants, models.ProductVariant{
				Color:           v.Color,
				Size:            v.Size,
				UnitPrice:       models.NewMoneyFromDecimal(decimal.NewFromInt(v.Price)),
				DiscountPercent: models.NewMoneyFromDecimal(decimal.NewFromInt(v.Discount)),
				StockQuantity:   v.Stock,
				SortOrder:       i,
			})
		}
		if err := models.DB.Create(&product).Error; err != nil {
			stdLog.Printf("Failed to create product %s: %v", item.Slug, err)
			continue
		}
		stdLog.Printf("Created product: %s (%d variants)", item.Slug, len(product.Variants))
	}

	now := time.Now()
	coupons := []models.Coupon{
		{
			Code:              "WELCOME10",
			DiscountType:      constants.CouponTypePercent,
			DiscountValue:     models.NewMoneyFromInt(10),
			MaxDiscountAmount: models.NewMoneyFromInt(50000),
			PerUserLimit:      1,
			StartsAt:          now,
			EndsAt:            now.AddDate(1, 0, 0),
			IsActive:          true,
		},
		{
			Code:           "SHIRT30K",
			DiscountType:   constants.CouponTypeFixed,
			DiscountValue:  models.NewMoneyFromInt(30000),
			MinOrderAmount: models.NewMoneyFromInt(200000),
			UsageLimit:     100,
			StartsAt:       now,
			EndsAt:         now.AddDate(0, 3, 0),
			IsActive:       true,
		},
	}
	if id, ok := categoryIDs["shirts"]; ok {
		coupons[1].ApplicableCategoryIDs = models.UintArray{id}
	}
	for _, coupon := range coupons {
		var existing models.Coupon
		if err := models.DB.Where("code = ?", coupon.Code).First(&existing).Error; err == nil {
			stdLog.Printf("Coupon already exists: %s", coupon.Code)
			continue
		}
		if err := models.DB.Create(&coupon).Error; err != nil {
			stdLog.Printf("Failed to create coupon %s: %v", coupon.Code, err)
			continue
		}
		stdLog.Printf("Created coupon: %s", coupon.Code)
	}

	stdLog.Printf("Seed completed")
}

func ensureCategory(stdLog interface{ Printf(string, ...interface{}) }, slug, name string, parentID *uint) *models.Category {
	var existing models.Category
	if err := models.DB.Where("slug = ?", slug).First(&existing).Error; err == nil {
		stdLog.Printf("Category already exists: %s", slug)
		return &existing
	}
	cat := models.Category{Slug: slug, Name: name, ParentID: parentID}
	if err := models.DB.Create(&cat).Error; err != nil {
		stdLog.Printf("Failed to create category %s: %v", slug, err)
		return nil
	}
	stdLog.Printf("Created category: %s", slug)
	return &cat
}
