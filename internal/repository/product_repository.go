package repository

import (
	"errors"

	"github.com/dujiao-next/checkout/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	GetByID(id uint) (*models.Product, error)
	GetActiveByIDs(ids []uint) ([]models.Product, error)
	Create(product *models.Product) error
	IncrementSoldCount(id uint, quantity int) error
	DecrementSoldCount(id uint, quantity int) error
	WithTx(tx *gorm.DB) *GormProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) *GormProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

func (r *GormProductRepository) withVariants(query *gorm.DB) *gorm.DB {
	return query.Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order asc, id asc")
	})
}

// GetByID 根据 ID 获取商品（含规格）
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.withVariants(r.db).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetActiveByIDs 批量获取上架商品（含规格）
func (r *GormProductRepository) GetActiveByIDs(ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.withVariants(r.db).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Create 创建商品（规格随关联一并写入）
func (r *GormProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// IncrementSoldCount 增加销量
func (r *GormProductRepository) IncrementSoldCount(id uint, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	return r.db.Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("sold_count", gorm.Expr("sold_count + ?", quantity)).Error
}

// DecrementSoldCount 回退销量（不低于 0）
func (r *GormProductRepository) DecrementSoldCount(id uint, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	return r.db.Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("sold_count", gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", quantity, quantity)).Error
}
