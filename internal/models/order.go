package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ShippingAddress 收货地址快照
type ShippingAddress struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	City      string `json:"city"`
	Note      string `json:"note,omitempty"`
}

// Value 实现 driver.Valuer 接口
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 实现 sql.Scanner 接口
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	return scanJSON(value, a)
}

// Order 订单表
type Order struct {
	ID              uint            `gorm:"primarykey" json:"id"`                                      // 主键
	OrderNo         string          `gorm:"uniqueIndex;not null" json:"order_no"`                      // 订单编号
	UserID          uint            `gorm:"index;not null" json:"user_id"`                             // 用户ID
	Status          string          `gorm:"index;not null" json:"status"`                              // 订单状态
	Currency        string          `gorm:"not null" json:"currency"`                                  // 币种
	ShippingAddress ShippingAddress `gorm:"type:json;not null" json:"shipping_address"`                // 收货地址
	Subtotal        Money           `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`     // 商品小计
	DiscountAmount  Money           `gorm:"type:decimal(20,2);not null;default:0" json:"discount"`     // 优惠金额
	ShippingFee     Money           `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_fee"` // 运费
	TotalPrice      Money           `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`  // 实付金额
	CouponID        *uint           `gorm:"index" json:"coupon_id,omitempty"`                          // 优惠券ID
	CouponCode      string          `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`             // 优惠码快照
	PaymentMethod   string          `gorm:"type:varchar(32);not null" json:"payment_method"`           // 支付方式（网关名）
	PaymentID       *uint           `gorm:"uniqueIndex" json:"payment_id,omitempty"`                   // 来源支付记录（每笔支付至多一个订单）
	CancelledAt     *time.Time      `gorm:"index" json:"cancelled_at,omitempty"`                       // 取消时间
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt       time.Time       `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`                                            // 软删除时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
