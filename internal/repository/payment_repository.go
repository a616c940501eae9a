package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByTransactionCode(code string) (*models.Payment, error)
	GetByTransactionCodeAndUser(code string, userID uint) (*models.Payment, error)
	UpdateSession(id uint, providerRef, redirectURL string) error
	TransitionFromPending(id uint, status string, updates map[string]interface{}) (int64, error)
	ReopenClosedAsPaid(id uint, closedNotes []string, updates map[string]interface{}) (int64, error)
	ListStalePending(before time.Time, limit int) ([]models.Payment, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByTransactionCode 根据交易流水号获取支付记录
func (r *GormPaymentRepository) GetByTransactionCode(code string) (*models.Payment, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("transaction_code = ?", code).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByTransactionCodeAndUser 获取用户自己的支付记录
func (r *GormPaymentRepository) GetByTransactionCodeAndUser(code string, userID uint) (*models.Payment, error) {
	payment, err := r.GetByTransactionCode(code)
	if err != nil || payment == nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, nil
	}
	return payment, nil
}

// UpdateSession 回写网关会话信息
func (r *GormPaymentRepository) UpdateSession(id uint, providerRef, redirectURL string) error {
	return r.db.Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"provider_ref": providerRef,
			"redirect_url": redirectURL,
			"updated_at":   time.Now(),
		}).Error
}

// TransitionFromPending 条件流转支付状态（仅当当前为 pending），返回受影响行数
func (r *GormPaymentRepository) TransitionFromPending(id uint, status string, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = status
	updates["updated_at"] = time.Now()
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, constants.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReopenClosedAsPaid 本地已关闭（过期或建单失败）但网关仍完成扣款的支付改为 success
// 仅匹配 failed 且备注属于 closedNotes 的记录，返回受影响行数
func (r *GormPaymentRepository) ReopenClosedAsPaid(id uint, closedNotes []string, updates map[string]interface{}) (int64, error) {
	if len(closedNotes) == 0 {
		return 0, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = constants.PaymentStatusSuccess
	updates["updated_at"] = time.Now()
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ? AND reconcile_note IN ?", id, constants.PaymentStatusFailed, closedNotes).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListStalePending 查询已过期仍为 pending 的支付记录
func (r *GormPaymentRepository) ListStalePending(before time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.Payment
	if err := r.db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.PaymentStatusPending, before).
		Order("id asc").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
