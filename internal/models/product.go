package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表
type Product struct {
	ID         uint           `gorm:"primarykey" json:"id"`                   // 主键
	CategoryID uint           `gorm:"not null;index" json:"category_id"`      // 分类ID
	Slug       string         `gorm:"uniqueIndex;not null" json:"slug"`       // 唯一标识
	Name       string         `gorm:"type:varchar(255);not null" json:"name"` // 名称
	SoldCount  int            `gorm:"not null;default:0" json:"sold_count"`   // 累计销量
	IsActive   bool           `gorm:"default:true;index" json:"is_active"`    // 是否上架
	SortOrder  int            `gorm:"default:0;index" json:"sort_order"`      // 排序权重
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt  time.Time      `json:"updated_at"`                             // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"` // 规格列表（按 sort_order 排序）
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
