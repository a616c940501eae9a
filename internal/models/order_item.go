package models

import (
	"time"
)

// OrderItem 订单项表（创建后不再变更，价格为下单时快照）
type OrderItem struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                         // 主键
	OrderID         uint      `gorm:"index;not null" json:"order_id"`                               // 订单ID
	ProductID       uint      `gorm:"index;not null" json:"product_id"`                             // 商品ID
	VariantID       uint      `gorm:"index;not null" json:"variant_id"`                             // 规格ID
	ProductName     string    `gorm:"type:varchar(255);not null" json:"product_name"`               // 商品名称快照
	Color           string    `gorm:"type:varchar(64);not null" json:"color"`                       // 颜色
	Size            string    `gorm:"type:varchar(64);not null" json:"size"`                        // 尺码
	UnitPrice       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`      // 下单时单价（已扣规格折扣）
	ListPrice       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"list_price"`      // 规格原价
	DiscountPercent Money     `gorm:"type:decimal(6,2);not null;default:0" json:"discount_percent"` // 规格折扣百分比
	Quantity        int       `gorm:"not null" json:"quantity"`                                     // 数量
	LineTotal       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"line_total"`      // 小计
	CouponDiscount  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"coupon_discount"` // 优惠券分摊金额
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                                      // 创建时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
