package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/checkout/internal/authz"
	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_setup_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "debug"},
		JWT:     config.JWTConfig{SecretKey: testJWTSecret},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	return SetupRouter(cfg, &provider.Container{Config: cfg, AuthzService: svc})
}

func TestSetupRouterHealthAndMetrics(t *testing.T) {
	r := setupTestEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health want 200 ok got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics should expose http request counter")
	}
}

func TestSetupRouterGuards(t *testing.T) {
	r := setupTestEngine(t)

	cases := []struct {
		method string
		path   string
	}{
		{method: http.MethodPost, path: "/api/v1/orders"},
		{method: http.MethodGet, path: "/api/v1/orders/1"},
		{method: http.MethodPatch, path: "/api/v1/orders/1/cancel"},
		{method: http.MethodGet, path: "/api/v1/payments/TXN1"},
		{method: http.MethodGet, path: "/api/v1/admin/orders"},
		{method: http.MethodPatch, path: "/api/v1/orders/1/status"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token want 401 got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestAdminPermissionCatalog(t *testing.T) {
	r := setupTestEngine(t)

	token := signTestToken(t, testJWTSecret, TokenClaims{UserID: 1, Role: "admin"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/authz/permissions/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("catalog want 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data []adminPermissionCatalogItem `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal catalog failed: %v", err)
	}
	permissions := make(map[string]string, len(resp.Data))
	for _, item := range resp.Data {
		permissions[item.Permission] = item.Module
	}
	for _, want := range []string{
		"GET:/admin/orders",
		"GET:/admin/orders/:id",
		"PATCH:/admin/orders/:id/status",
		"PATCH:/orders/:id/status",
	} {
		if _, ok := permissions[want]; !ok {
			t.Fatalf("catalog missing %s: %+v", want, resp.Data)
		}
	}
	if permissions["GET:/admin/orders"] != "orders" {
		t.Fatalf("module want orders got %s", permissions["GET:/admin/orders"])
	}
	if _, ok := permissions["GET:/orders"]; ok {
		t.Fatalf("user routes should not appear in catalog")
	}
}
