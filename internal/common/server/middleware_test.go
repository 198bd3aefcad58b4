package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/auth"
	"github.com/crewdrive/crewdrive/internal/common/config"
	"github.com/crewdrive/crewdrive/internal/common/middleware"
	"github.com/gin-gonic/gin"
)

func authTestConfig() config.AuthConfig {
	return config.AuthConfig{
		Enabled:     true,
		JWTSecret:   "test-secret",
		Issuer:      "crewdrive",
		Audience:    "ride-service",
		PublicPaths: []string{"/healthz"},
		RBAC: map[string][]string{
			"DELETE /v1/rides/:id": {"dispatcher"},
		},
	}
}

func newAuthTestRouter(cfg config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(cfg, nil), RBAC(cfg))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/v1/rides/:id", func(c *gin.Context) {
		ai, _ := AuthFromContext(c)
		c.JSON(http.StatusOK, gin.H{"subject": ai.Subject})
	})
	r.DELETE("/v1/rides/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	r := newAuthTestRouter(authTestConfig())

	if w := doRequest(r, http.MethodGet, "/v1/rides/abc", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestJWTAuthAllowsPublicPath(t *testing.T) {
	r := newAuthTestRouter(authTestConfig())

	if w := doRequest(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	cfg := authTestConfig()
	r := newAuthTestRouter(cfg)

	token, _, err := auth.GenerateAccessToken(cfg, "user-1", []string{"viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doRequest(r, http.MethodGet, "/v1/rides/abc", token); w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestJWTAuthRejectsTamperedToken(t *testing.T) {
	cfg := authTestConfig()
	r := newAuthTestRouter(cfg)

	other := cfg
	other.JWTSecret = "other-secret"
	token, _, err := auth.GenerateAccessToken(other, "user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doRequest(r, http.MethodGet, "/v1/rides/abc", token); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestRBACEnforcesRoles(t *testing.T) {
	cfg := authTestConfig()
	r := newAuthTestRouter(cfg)

	viewer, _, err := auth.GenerateAccessToken(cfg, "user-1", []string{"viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doRequest(r, http.MethodDelete, "/v1/rides/abc", viewer); w.Code != http.StatusForbidden {
		t.Fatalf("viewer delete: want 403, got %d", w.Code)
	}

	dispatcher, _, err := auth.GenerateAccessToken(cfg, "user-2", []string{"dispatcher"}, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doRequest(r, http.MethodDelete, "/v1/rides/abc", dispatcher); w.Code != http.StatusNoContent {
		t.Fatalf("dispatcher delete: want 204, got %d", w.Code)
	}
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	cfg := authTestConfig()
	cfg.Enabled = false
	r := newAuthTestRouter(cfg)

	if w := doRequest(r, http.MethodGet, "/v1/rides/abc", ""); w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(middleware.NewTokenBucket(1, 0)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	if w := doRequest(r, http.MethodGet, "/ping", ""); w.Code != http.StatusOK {
		t.Fatalf("first request: want 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/ping", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: want 429, got %d", w.Code)
	}
}
