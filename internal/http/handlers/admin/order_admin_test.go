package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/provider"
	"github.com/dujiao-next/checkout/internal/repository"
	"github.com/dujiao-next/checkout/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAdminHandlerTest(t *testing.T) (*gin.Engine, *repository.GormOrderRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:admin_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), models.NewGormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewProductVariantRepository(db)
	c := &provider.Container{
		Config:    &config.Config{},
		OrderRepo: orderRepo,
	}
	c.OrderService = service.NewOrderService(service.OrderServiceOptions{
		OrderRepo:       orderRepo,
		CouponRepo:      repository.NewCouponRepository(db),
		CouponUsageRepo: repository.NewCouponUsageRepository(db),
		Assembler:       service.NewOrderAssembler(productRepo, variantRepo),
	})

	h := New(c)
	r := gin.New()
	r.GET("/admin/orders", h.AdminListOrders)
	r.GET("/admin/orders/:id", h.AdminGetOrder)
	r.PATCH("/admin/orders/:id/status", h.AdminUpdateOrderStatus)
	return r, orderRepo
}

func createOrder(t *testing.T, repo *repository.GormOrderRepository, status string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:       fmt.Sprintf("OD%d", time.Now().UnixNano()),
		UserID:        3,
		Status:        status,
		Currency:      "VND",
		PaymentMethod: constants.PaymentGatewayCOD,
	}
	if err := repo.Create(order, nil); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func patchStatus(r *gin.Engine, id uint, status string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(gin.H{"status": status})
	req := httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/admin/orders/%d/status", id), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	r, repo := setupAdminHandlerTest(t)
	order := createOrder(t, repo, constants.OrderStatusPending)

	if w := patchStatus(r, order.ID, constants.OrderStatusConfirmed); w.Code != http.StatusOK {
		t.Fatalf("pending->confirmed want 200 got %d body=%s", w.Code, w.Body.String())
	}
	if w := patchStatus(r, order.ID, "archived"); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status want 400 got %d", w.Code)
	}
	if w := patchStatus(r, order.ID, constants.OrderStatusDelivered); w.Code != http.StatusConflict {
		t.Fatalf("confirmed->delivered want 409 got %d", w.Code)
	}
	if w := patchStatus(r, 99999, constants.OrderStatusConfirmed); w.Code != http.StatusNotFound {
		t.Fatalf("missing order want 404 got %d", w.Code)
	}

	reloaded, err := repo.GetByID(order.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusConfirmed {
		t.Fatalf("want confirmed got %s", reloaded.Status)
	}
}

func TestAdminTerminalStatusNeverRegresses(t *testing.T) {
	r, repo := setupAdminHandlerTest(t)
	order := createOrder(t, repo, constants.OrderStatusDelivered)

	for _, target := range []string{constants.OrderStatusPending, constants.OrderStatusShipping, constants.OrderStatusCancelled} {
		if w := patchStatus(r, order.ID, target); w.Code != http.StatusConflict {
			t.Fatalf("delivered->%s want 409 got %d", target, w.Code)
		}
	}
}

func TestAdminListOrders(t *testing.T) {
	r, repo := setupAdminHandlerTest(t)
	createOrder(t, repo, constants.OrderStatusPending)
	createOrder(t, repo, constants.OrderStatusConfirmed)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?status=pending", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 got %d", w.Code)
	}
	var body struct {
		Data       []models.Order `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Pagination.Total != 1 || len(body.Data) != 1 {
		t.Fatalf("want 1 pending order got total=%d len=%d", body.Pagination.Total, len(body.Data))
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/orders?created_from=yesterday", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad created_from want 400 got %d", w.Code)
	}
}
