package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// OrderContextItem 待创建订单的行项目快照
type OrderContextItem struct {
	ProductID       uint   `json:"product_id"`
	VariantID       uint   `json:"variant_id"`
	CategoryID      uint   `json:"category_id"`
	ProductName     string `json:"product_name"`
	Color           string `json:"color"`
	Size            string `json:"size"`
	ListPrice       Money  `json:"list_price"`
	DiscountPercent Money  `json:"discount_percent"`
	UnitPrice       Money  `json:"unit_price"`
	Quantity        int    `json:"quantity"`
	LineTotal       Money  `json:"line_total"`
	CouponDiscount  Money  `json:"coupon_discount"`
}

// OrderContext 支付成功后物化订单所需的全部信息，不依赖购物车
type OrderContext struct {
	UserID          uint               `json:"user_id"`
	Items           []OrderContextItem `json:"items"`
	ShippingAddress ShippingAddress    `json:"shipping_address"`
	CouponID        *uint              `json:"coupon_id,omitempty"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	Currency        string             `json:"currency"`
	Subtotal        Money              `json:"subtotal"`
	DiscountAmount  Money              `json:"discount"`
	ShippingFee     Money              `json:"shipping_fee"`
	TotalPrice      Money              `json:"total_price"`
}

// Value 实现 driver.Valuer 接口
func (c OrderContext) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner 接口
func (c *OrderContext) Scan(value interface{}) error {
	if value == nil {
		*c = OrderContext{}
		return nil
	}
	return scanJSON(value, c)
}

// Payment 支付记录（支付会话 + 对账账本）
type Payment struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                          // 主键
	UserID             uint           `gorm:"index;not null" json:"user_id"`                                 // 用户ID
	TransactionCode    string         `gorm:"uniqueIndex;type:varchar(64);not null" json:"transaction_code"` // 交易流水号（全局唯一）
	Gateway            string         `gorm:"index;type:varchar(32);not null" json:"gateway"`                // 支付网关
	Amount             Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                     // 支付金额
	Currency           string         `gorm:"not null" json:"currency"`                                      // 币种
	Status             string         `gorm:"index;not null" json:"status"`                                  // 支付状态（pending/success/failed）
	OrderContext       OrderContext   `gorm:"type:json;not null" json:"-"`                                   // 待物化订单信息
	ProviderRef        string         `gorm:"index" json:"provider_ref,omitempty"`                           // 第三方流水号
	RedirectURL        string         `gorm:"type:text" json:"redirect_url,omitempty"`                       // 跳转链接
	RawCallbackPayload JSON           `gorm:"type:json" json:"-"`                                            // 第三方回调原文
	ReconcileNote      string         `gorm:"type:varchar(255)" json:"reconcile_note,omitempty"`             // 对账备注
	PaidAt             *time.Time     `gorm:"index" json:"paid_at,omitempty"`                                // 支付时间
	CallbackAt         *time.Time     `gorm:"index" json:"callback_at,omitempty"`                            // 回调时间
	ExpiresAt          *time.Time     `gorm:"index" json:"expires_at,omitempty"`                             // 会话过期时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                       // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsTerminal 支付是否已进入终态
func (p *Payment) IsTerminal() bool {
	return p != nil && p.Status != "" && p.Status != "pending"
}
