package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon 优惠券
type Coupon struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                                             // 主键
	Code                  string         `gorm:"uniqueIndex;not null" json:"code"`                                 // 优惠码
	DiscountType          string         `gorm:"not null" json:"discount_type"`                                    // 类型（fixed/percent）
	DiscountValue         Money          `gorm:"type:decimal(20,2);not null" json:"discount_value"`                // 数值（固定金额或百分比）
	MinOrderAmount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_order_amount"`    // 使用门槛（0 表示不限制）
	MaxDiscountAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"max_discount_amount"` // 最大优惠金额（0 表示不限制）
	UsageLimit            int            `gorm:"not null;default:0" json:"usage_limit"`                            // 总使用上限（0 表示不限制）
	UsedCount             int            `gorm:"not null;default:0" json:"used_count"`                             // 已使用次数
	PerUserLimit          int            `gorm:"not null;default:0" json:"per_user_limit"`                         // 每人使用上限（0 表示不限制）
	ApplicableCategoryIDs UintArray      `gorm:"type:json" json:"applicable_category_ids"`                         // 适用分类ID（含子分类）
	ApplicableProductIDs  UintArray      `gorm:"type:json" json:"applicable_product_ids"`                          // 适用商品ID
	StartsAt              time.Time      `gorm:"index;not null" json:"starts_at"`                                  // 生效时间
	EndsAt                time.Time      `gorm:"index;not null" json:"ends_at"`                                    // 失效时间
	IsActive              bool           `gorm:"not null;default:true" json:"is_active"`                           // 是否启用
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt             time.Time      `gorm:"index" json:"updated_at"`                                          // 更新时间
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`                                                   // 软删除时间
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// IsRestricted 是否限定了适用商品或分类
func (c *Coupon) IsRestricted() bool {
	return c != nil && (len(c.ApplicableCategoryIDs) > 0 || len(c.ApplicableProductIDs) > 0)
}
