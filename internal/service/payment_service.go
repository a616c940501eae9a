package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/metrics"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
	"github.com/dujiao-next/checkout/internal/queue"
	"github.com/dujiao-next/checkout/internal/repository"
	"github.com/dujiao-next/checkout/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPaymentExpire = 30 * time.Minute

// errPaymentAlreadySettled 条件流转未命中，支付已被其他回调终结
var errPaymentAlreadySettled = errors.New("payment already settled")

// PaymentService 支付会话与回调对账
type PaymentService struct {
	paymentRepo  repository.PaymentRepository
	orderRepo    repository.OrderRepository
	registry     *payment.Registry
	materializer *OrderMaterializer
	queueClient  *queue.Client
	expireAfter  time.Duration
	now          func() time.Time
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	registry *payment.Registry,
	materializer *OrderMaterializer,
	queueClient *queue.Client,
	expireAfter time.Duration,
) *PaymentService {
	if expireAfter <= 0 {
		expireAfter = defaultPaymentExpire
	}
	return &PaymentService{
		paymentRepo:  paymentRepo,
		orderRepo:    orderRepo,
		registry:     registry,
		materializer: materializer,
		queueClient:  queueClient,
		expireAfter:  expireAfter,
		now:          time.Now,
	}
}

// CreateSessionInput 创建支付会话输入
type CreateSessionInput struct {
	UserID       uint
	Gateway      string
	OrderContext models.OrderContext
	ClientIP     string
}

// SessionOutcome 支付会话结果，即时到账的网关同时返回订单
type SessionOutcome struct {
	Payment     *models.Payment
	Order       *models.Order
	RedirectURL string
}

// CallbackResult 回调对账结果
type CallbackResult struct {
	Payment   *models.Payment
	Order     *models.Order
	Outcome   *payment.CallbackOutcome
	Duplicate bool
}

// Paid 支付是否成功
func (r *CallbackResult) Paid() bool {
	return r != nil && r.Payment != nil && r.Payment.Status == constants.PaymentStatusSuccess
}

// SupportsGateway 网关是否已注册
func (s *PaymentService) SupportsGateway(name string) bool {
	return s.registry.Has(name)
}

func paymentLogger(ctx context.Context, kv ...interface{}) *zap.SugaredLogger {
	return logger.Ctx(ctx, kv...)
}

// CreateSession 持久化 pending 支付记录并向网关创建会话
func (s *PaymentService) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionOutcome, error) {
	gateway, err := s.registry.Get(input.Gateway)
	if err != nil {
		return nil, ErrPaymentGatewayUnsupported
	}
	if input.UserID == 0 || len(input.OrderContext.Items) == 0 {
		return nil, ErrInvalidOrderItem
	}
	gatewayName := gateway.Name()
	ctx, span := telemetry.StartSpan(ctx, "payment.create_session", attribute.String("gateway", gatewayName))
	outcome, err := s.createSession(ctx, gateway, input)
	telemetry.EndSpan(span, err)
	return outcome, err
}

func (s *PaymentService) createSession(ctx context.Context, gateway payment.Gateway, input CreateSessionInput) (*SessionOutcome, error) {
	gatewayName := gateway.Name()
	now := s.now()
	expiresAt := now.Add(s.expireAfter)
	record := &models.Payment{
		UserID:          input.UserID,
		TransactionCode: generateTransactionCode(now),
		Gateway:         gatewayName,
		Amount:          input.OrderContext.TotalPrice,
		Currency:        input.OrderContext.Currency,
		Status:          constants.PaymentStatusPending,
		OrderContext:    input.OrderContext,
		ExpiresAt:       &expiresAt,
	}
	if err := s.paymentRepo.Create(record); err != nil {
		return nil, ErrPaymentCreateFailed
	}
	log := paymentLogger(ctx, "payment_id", record.ID, "transaction_code", record.TransactionCode, "gateway", gatewayName)

	started := time.Now()
	session, err := gateway.BuildSession(ctx, payment.SessionRequest{
		PaymentID:       record.ID,
		TransactionCode: record.TransactionCode,
		UserID:          input.UserID,
		Amount:          record.Amount,
		Currency:        record.Currency,
		ClientIP:        input.ClientIP,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
	})
	metrics.PaymentSessionLatency.WithLabelValues(gatewayName).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PaymentSessionsTotal.WithLabelValues(gatewayName, metrics.ResultFailed).Inc()
		log.Warnw("payment_session_create_failed", "error", err)
		s.failPayment(ctx, record, constants.PaymentNoteSessionCreateFailed)
		if errors.Is(err, payment.ErrAmountInvalid) || errors.Is(err, payment.ErrConfigInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentCreateFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}
	metrics.PaymentSessionsTotal.WithLabelValues(gatewayName, metrics.ResultSuccess).Inc()

	if session.Immediate {
		return s.settleImmediately(ctx, record)
	}

	if err := s.paymentRepo.UpdateSession(record.ID, session.ProviderRef, session.RedirectURL); err != nil {
		log.Errorw("payment_session_update_failed", "error", err)
		return nil, err
	}
	record.ProviderRef = session.ProviderRef
	record.RedirectURL = session.RedirectURL
	if err := s.queueClient.EnqueuePaymentExpire(queue.PaymentExpirePayload{PaymentID: record.ID}, s.expireAfter); err != nil {
		log.Warnw("payment_expire_enqueue_failed", "error", err)
	}
	log.Infow("payment_session_created")
	return &SessionOutcome{Payment: record, RedirectURL: session.RedirectURL}, nil
}

// settleImmediately 无外部确认的网关：同一事务内置为成功并创建订单
func (s *PaymentService) settleImmediately(ctx context.Context, record *models.Payment) (*SessionOutcome, error) {
	log := paymentLogger(ctx, "payment_id", record.ID, "gateway", record.Gateway)
	paidAt := s.now()
	var order *models.Order
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		rows, err := s.paymentRepo.WithTx(tx).TransitionFromPending(record.ID, constants.PaymentStatusSuccess, map[string]interface{}{
			"paid_at": paidAt,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return errPaymentAlreadySettled
		}
		created, _, err := s.materializer.Materialize(tx, record)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		log.Warnw("payment_immediate_settle_failed", "error", err)
		s.failPayment(ctx, record, constants.PaymentNoteUnfulfilled)
		return nil, err
	}

	record.Status = constants.PaymentStatusSuccess
	record.PaidAt = &paidAt
	s.notifyOrderCreated(ctx, order.ID, record.ID)
	log.Infow("payment_immediate_settled", "order_id", order.ID)
	return &SessionOutcome{Payment: record, Order: order}, nil
}

// failPayment 条件置为失败并投递失败事件
func (s *PaymentService) failPayment(ctx context.Context, record *models.Payment, note string) {
	rows, err := s.paymentRepo.TransitionFromPending(record.ID, constants.PaymentStatusFailed, map[string]interface{}{
		"reconcile_note": note,
	})
	if err != nil {
		paymentLogger(ctx, "payment_id", record.ID).Errorw("payment_mark_failed_error", "note", note, "error", err)
		return
	}
	if rows == 0 {
		return
	}
	record.Status = constants.PaymentStatusFailed
	record.ReconcileNote = note
	s.notifyPaymentFailed(ctx, record.ID, note)
}

// HandleCallback 校验签名并对账，同一笔支付最多终结一次
func (s *PaymentService) HandleCallback(ctx context.Context, gatewayName string, payload payment.CallbackPayload) (*CallbackResult, error) {
	gateway, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, ErrPaymentGatewayUnsupported
	}
	name := gateway.Name()
	ctx, span := telemetry.StartSpan(ctx, "payment.callback", attribute.String("gateway", name))
	result, err := s.handleCallback(ctx, gateway, payload)
	telemetry.EndSpan(span, err)

	switch {
	case err != nil && (errors.Is(err, ErrPaymentSignatureInvalid) || errors.Is(err, ErrPaymentCallbackMismatch)):
		metrics.PaymentCallbacksTotal.WithLabelValues(name, metrics.ResultRejected).Inc()
	case err != nil:
		metrics.PaymentCallbacksTotal.WithLabelValues(name, metrics.ResultFailed).Inc()
	case result.Duplicate:
		metrics.PaymentCallbacksTotal.WithLabelValues(name, metrics.ResultDuplicate).Inc()
	default:
		metrics.PaymentCallbacksTotal.WithLabelValues(name, metrics.ResultSuccess).Inc()
	}
	return result, err
}

func (s *PaymentService) handleCallback(ctx context.Context, gateway payment.Gateway, payload payment.CallbackPayload) (*CallbackResult, error) {
	gatewayName := gateway.Name()
	log := paymentLogger(ctx, "gateway", gatewayName)
	if !gateway.VerifyCallback(payload) {
		log.Warnw("payment_callback_signature_invalid")
		return nil, ErrPaymentSignatureInvalid
	}
	outcome, err := gateway.ParseCallback(payload)
	if err != nil {
		log.Warnw("payment_callback_parse_failed", "error", err)
		if errors.Is(err, payment.ErrCallbackUnsupported) {
			return nil, ErrPaymentGatewayUnsupported
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentCallbackInvalid, err)
	}

	record, err := s.paymentRepo.GetByTransactionCode(outcome.TransactionCode)
	if err != nil {
		return nil, err
	}
	if record == nil {
		log.Warnw("payment_callback_payment_not_found", "transaction_code", outcome.TransactionCode)
		return nil, ErrPaymentNotFound
	}
	log = log.With("payment_id", record.ID, "transaction_code", record.TransactionCode)

	if !strings.EqualFold(record.Gateway, gatewayName) {
		log.Warnw("payment_callback_gateway_mismatch", "stored_gateway", record.Gateway)
		return nil, ErrPaymentCallbackMismatch
	}
	if !outcome.Amount.Decimal.IsPositive() || !outcome.Amount.Decimal.Equal(record.Amount.Decimal) {
		log.Warnw("payment_callback_amount_mismatch",
			"stored_amount", record.Amount.String(),
			"callback_amount", outcome.Amount.String(),
		)
		return nil, ErrPaymentCallbackMismatch
	}

	if record.IsTerminal() {
		if outcome.Success && isClosedBeforePaid(record) {
			return s.settleAfterClose(ctx, record, outcome)
		}
		log.Infow("payment_callback_duplicate", "status", record.Status)
		return s.duplicateResult(record, outcome)
	}

	now := s.now()
	updates := map[string]interface{}{
		"callback_at":          now,
		"raw_callback_payload": models.JSON(outcome.Raw),
	}
	if outcome.ProviderRef != "" {
		updates["provider_ref"] = outcome.ProviderRef
	}

	if !outcome.Success {
		updates["reconcile_note"] = callbackNote(outcome)
		rows, err := s.paymentRepo.TransitionFromPending(record.ID, constants.PaymentStatusFailed, updates)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return s.reloadDuplicate(record.ID, outcome)
		}
		log.Infow("payment_callback_failed", "result_code", outcome.ResultCode, "message", outcome.Message)
		s.notifyPaymentFailed(ctx, record.ID, callbackNote(outcome))
		refreshed, err := s.paymentRepo.GetByID(record.ID)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Payment: refreshed, Outcome: outcome}, nil
	}

	updates["paid_at"] = now
	var order *models.Order
	var created bool
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		rows, err := s.paymentRepo.WithTx(tx).TransitionFromPending(record.ID, constants.PaymentStatusSuccess, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errPaymentAlreadySettled
		}
		order, created, err = s.materializer.Materialize(tx, record)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, errPaymentAlreadySettled), errors.Is(err, errOrderAlreadyMaterialized):
		log.Infow("payment_callback_lost_race")
		return s.reloadDuplicate(record.ID, outcome)
	case isLateBusinessFailure(err):
		return nil, s.recordUnfulfilled(ctx, record, updates, err, false)
	default:
		log.Errorw("payment_callback_materialize_error", "error", err)
		return nil, err
	}

	if created {
		s.notifyOrderCreated(ctx, order.ID, record.ID)
	}
	log.Infow("payment_callback_paid", "order_id", order.ID, "order_created", created)
	refreshed, err := s.paymentRepo.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Payment: refreshed, Order: order, Outcome: outcome}, nil
}

// closedBeforePaidNotes 本地关闭但网关侧可能仍完成扣款的备注
var closedBeforePaidNotes = []string{constants.PaymentNoteExpired, constants.PaymentNoteSessionCreateFailed}

func isClosedBeforePaid(record *models.Payment) bool {
	if record == nil || record.Status != constants.PaymentStatusFailed {
		return false
	}
	for _, note := range closedBeforePaidNotes {
		if record.ReconcileNote == note {
			return true
		}
	}
	return false
}

// settleAfterClose 会话已在本地过期关闭，网关仍回调成功：改记成功并尝试生成订单
func (s *PaymentService) settleAfterClose(ctx context.Context, record *models.Payment, outcome *payment.CallbackOutcome) (*CallbackResult, error) {
	log := paymentLogger(ctx, "payment_id", record.ID, "transaction_code", record.TransactionCode, "gateway", record.Gateway)
	closedNote := record.ReconcileNote
	now := s.now()
	updates := map[string]interface{}{
		"callback_at":          now,
		"paid_at":              now,
		"raw_callback_payload": models.JSON(outcome.Raw),
		"reconcile_note":       constants.PaymentNotePaidAfterExpiry,
	}
	if outcome.ProviderRef != "" {
		updates["provider_ref"] = outcome.ProviderRef
	}

	var order *models.Order
	var created bool
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		rows, err := s.paymentRepo.WithTx(tx).ReopenClosedAsPaid(record.ID, closedBeforePaidNotes, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errPaymentAlreadySettled
		}
		order, created, err = s.materializer.Materialize(tx, record)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, errPaymentAlreadySettled), errors.Is(err, errOrderAlreadyMaterialized):
		log.Infow("payment_callback_lost_race")
		return s.reloadDuplicate(record.ID, outcome)
	case isLateBusinessFailure(err):
		return nil, s.recordUnfulfilled(ctx, record, updates, err, true)
	default:
		log.Errorw("payment_callback_materialize_error", "closed_note", closedNote, "error", err)
		return nil, err
	}

	if created {
		s.notifyOrderCreated(ctx, order.ID, record.ID)
	}
	log.Warnw("payment_callback_paid_after_close", "closed_note", closedNote, "order_id", order.ID, "order_created", created)
	refreshed, err := s.paymentRepo.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Payment: refreshed, Order: order, Outcome: outcome}, nil
}

// recordUnfulfilled 网关已扣款但库存或优惠券在并发下耗尽：记录成功并标注待人工退款
// reopened 为 true 时支付此前已在本地关闭，需从 failed 改记
func (s *PaymentService) recordUnfulfilled(ctx context.Context, record *models.Payment, updates map[string]interface{}, cause error, reopened bool) error {
	reason := "stock_exhausted"
	if errors.Is(cause, ErrCouponExhausted) {
		reason = "coupon_exhausted"
	}
	prefix := constants.PaymentNoteUnfulfilled
	if reopened {
		prefix = constants.PaymentNotePaidAfterExpiry
	}
	updates["reconcile_note"] = prefix + ":" + reason
	log := paymentLogger(ctx, "payment_id", record.ID, "transaction_code", record.TransactionCode, "gateway", record.Gateway)
	var err error
	if reopened {
		_, err = s.paymentRepo.ReopenClosedAsPaid(record.ID, closedBeforePaidNotes, updates)
	} else {
		_, err = s.paymentRepo.TransitionFromPending(record.ID, constants.PaymentStatusSuccess, updates)
	}
	if err != nil {
		log.Errorw("payment_unfulfilled_record_failed", "error", err)
		return err
	}
	metricReason := reason
	if reopened {
		metricReason = constants.PaymentNotePaidAfterExpiry
	}
	metrics.ReconcileUnfulfilledTotal.WithLabelValues(record.Gateway, metricReason).Inc()
	log.Errorw("payment_callback_order_unfulfilled", "reason", reason, "reopened", reopened, "error", cause)
	return fmt.Errorf("%w: %v", ErrOrderMaterializeFailed, cause)
}

func (s *PaymentService) reloadDuplicate(paymentID uint, outcome *payment.CallbackOutcome) (*CallbackResult, error) {
	record, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPaymentNotFound
	}
	return s.duplicateResult(record, outcome)
}

func (s *PaymentService) duplicateResult(record *models.Payment, outcome *payment.CallbackOutcome) (*CallbackResult, error) {
	order, err := s.orderRepo.GetByPaymentID(record.ID)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Payment: record, Order: order, Outcome: outcome, Duplicate: true}, nil
}

func callbackNote(outcome *payment.CallbackOutcome) string {
	note := "provider_failed"
	if outcome.ResultCode != "" {
		note += ":" + outcome.ResultCode
	}
	if len(note) > 255 {
		note = note[:255]
	}
	return note
}

// ExpirePayment 过期仍为 pending 的支付会话置为失败
func (s *PaymentService) ExpirePayment(ctx context.Context, paymentID uint) error {
	record, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return err
	}
	if record == nil || record.IsTerminal() {
		return nil
	}
	if record.ExpiresAt != nil && record.ExpiresAt.After(s.now()) {
		return nil
	}
	s.failPayment(ctx, record, constants.PaymentNoteExpired)
	if record.Status == constants.PaymentStatusFailed {
		paymentLogger(ctx, "payment_id", record.ID, "gateway", record.Gateway).Infow("payment_session_expired")
	}
	return nil
}

// ExpireStale 批量清理已过期的 pending 支付会话，返回处理条数
func (s *PaymentService) ExpireStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.paymentRepo.ListStalePending(s.now(), limit)
	if err != nil {
		return 0, err
	}
	for i := range stale {
		s.failPayment(ctx, &stale[i], constants.PaymentNoteExpired)
	}
	return len(stale), nil
}

// GetByTransactionCodeForUser 用户查询自己的支付状态
func (s *PaymentService) GetByTransactionCodeForUser(ctx context.Context, userID uint, code string) (*models.Payment, *models.Order, error) {
	record, err := s.paymentRepo.GetByTransactionCodeAndUser(code, userID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ErrPaymentNotFound
	}
	order, err := s.orderRepo.GetByPaymentID(record.ID)
	if err != nil {
		return nil, nil, err
	}
	return record, order, nil
}

func (s *PaymentService) notifyOrderCreated(ctx context.Context, orderID, paymentID uint) {
	if err := s.queueClient.EnqueueOrderCreated(queue.OrderCreatedPayload{OrderID: orderID, PaymentID: paymentID}); err != nil {
		paymentLogger(ctx, "order_id", orderID, "payment_id", paymentID).Warnw("order_created_enqueue_failed", "error", err)
	}
}

func (s *PaymentService) notifyPaymentFailed(ctx context.Context, paymentID uint, reason string) {
	if err := s.queueClient.EnqueuePaymentFailed(queue.PaymentFailedPayload{PaymentID: paymentID, Reason: reason}); err != nil {
		paymentLogger(ctx, "payment_id", paymentID).Warnw("payment_failed_enqueue_failed", "error", err)
	}
}

// generateTransactionCode yyMMdd + 16 位随机十六进制
func generateTransactionCode(now time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return now.Format("060102") + strings.ToUpper(raw[:16])
}
