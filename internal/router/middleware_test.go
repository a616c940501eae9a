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

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const testJWTSecret = "router-test-secret"

func signTestToken(t *testing.T, secret string, claims TokenClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return token
}

func decodeStatusCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return resp.StatusCode
}

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func TestUserJWTAuthMiddlewareMissingSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(UserJWTAuthMiddleware(config.JWTConfig{}))
	r.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status want 401 got %d", w.Code)
	}
	if code := decodeStatusCode(t, w); code != 401 {
		t.Fatalf("status_code want 401 got %d", code)
	}
}

func TestUserJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.JWTConfig{SecretKey: testJWTSecret, Issuer: "auth.example.com"}
	r := gin.New()
	r.Use(UserJWTAuthMiddleware(cfg))
	r.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint("user_id")})
	})

	valid := signTestToken(t, testJWTSecret, TokenClaims{
		UserID:           42,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth.example.com"},
	})
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token " + valid, want: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + signTestToken(t, "other-secret", TokenClaims{UserID: 42, RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth.example.com"}}), want: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + signTestToken(t, testJWTSecret, TokenClaims{UserID: 42, RegisteredClaims: jwt.RegisteredClaims{Issuer: "evil"}}), want: http.StatusUnauthorized},
		{name: "missing user id", header: "Bearer " + signTestToken(t, testJWTSecret, TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth.example.com"}}), want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signTestToken(t, testJWTSecret, TokenClaims{UserID: 42, RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth.example.com", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}), want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status want %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
			if tc.want == http.StatusOK && !strings.Contains(w.Body.String(), `"user_id":42`) {
				t.Fatalf("user_id should be set in context, got %s", w.Body.String())
			}
		})
	}
}

func setupRBACRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_rbac_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	cfg := config.JWTConfig{SecretKey: testJWTSecret}
	ok := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString(adminRoleContextKey)})
	}
	r := gin.New()
	guard := []gin.HandlerFunc{AdminJWTAuthMiddleware(cfg), AdminRBACMiddleware(svc)}
	api := r.Group("/api/v1")
	api.PATCH("/orders/:id/status", append(guard, ok)...)
	admin := api.Group("/admin")
	admin.Use(guard...)
	admin.GET("/orders", ok)
	admin.GET("/orders/:id", ok)
	admin.PATCH("/orders/:id/status", ok)
	return r
}

func TestAdminRBACMiddleware(t *testing.T) {
	r := setupRBACRouter(t)

	cases := []struct {
		name   string
		role   string
		method string
		path   string
		want   int
	}{
		{name: "auditor reads list", role: "readonly_auditor", method: http.MethodGet, path: "/api/v1/admin/orders", want: http.StatusOK},
		{name: "auditor reads detail", role: "readonly_auditor", method: http.MethodGet, path: "/api/v1/admin/orders/3", want: http.StatusOK},
		{name: "auditor cannot transition", role: "readonly_auditor", method: http.MethodPatch, path: "/api/v1/admin/orders/3/status", want: http.StatusForbidden},
		{name: "support transitions", role: "support", method: http.MethodPatch, path: "/api/v1/admin/orders/3/status", want: http.StatusOK},
		{name: "support transitions short path", role: "support", method: http.MethodPatch, path: "/api/v1/orders/3/status", want: http.StatusOK},
		{name: "admin inherits", role: "admin", method: http.MethodPatch, path: "/api/v1/orders/3/status", want: http.StatusOK},
		{name: "customer denied", role: "customer", method: http.MethodGet, path: "/api/v1/admin/orders", want: http.StatusForbidden},
		{name: "no role", role: "", method: http.MethodGet, path: "/api/v1/admin/orders", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := signTestToken(t, testJWTSecret, TokenClaims{UserID: 1, Role: tc.role})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status want %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
			if tc.want != http.StatusOK {
				if code := decodeStatusCode(t, w); code != tc.want {
					t.Fatalf("status_code want %d got %d", tc.want, code)
				}
			}
		})
	}
}

func TestAdminGuardRejectsMissingToken(t *testing.T) {
	r := setupRBACRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/3/status", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status want 401 got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://shop.example.com"}, MaxAge: 600}))
	r.POST("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status want 204 got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Fatalf("allow origin want shop origin got %s", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max age want 600 got %s", got)
	}
}
