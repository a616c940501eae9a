package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductVariant 商品规格（同商品内颜色 + 尺码唯一）
type ProductVariant struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                                            // 主键
	ProductID       uint           `gorm:"not null;index;uniqueIndex:idx_product_variant_selector" json:"product_id"`       // 商品ID
	Color           string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_product_variant_selector" json:"color"` // 颜色
	Size            string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_product_variant_selector" json:"size"`  // 尺码
	UnitPrice       Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`                         // 单价
	DiscountPercent Money          `gorm:"type:decimal(6,2);not null;default:0" json:"discount_percent"`                    // 折扣百分比
	StockQuantity   int            `gorm:"not null;default:0" json:"stock_quantity"`                                        // 库存（不得为负）
	SortOrder       int            `gorm:"default:0;index" json:"sort_order"`                                               // 排序权重
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                                         // 创建时间
	UpdatedAt       time.Time      `json:"updated_at"`                                                                      // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                                  // 软删除时间
}

// TableName 指定表名
func (ProductVariant) TableName() string {
	return "product_variants"
}
