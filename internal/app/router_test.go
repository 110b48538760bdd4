package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/api/middleware"
	"halcyon.studio/cinema/internal/app/modules"
	"halcyon.studio/cinema/internal/config"
)

func TestBuildCORSConfig_DefaultsToAllowlistWhenOriginsEmpty(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        nil,
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if !got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want true", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 2 {
		t.Fatalf("len(AllowOrigins) = %d, want 2", len(got.AllowOrigins))
	}
}

func TestBuildCORSConfig_StripsWildcardUnlessUnsafeFlagEnabled(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*", "https://example.com"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: false,
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if len(got.AllowOrigins) != 1 || got.AllowOrigins[0] != "https://example.com" {
		t.Fatalf("AllowOrigins = %#v, want []string{\"https://example.com\"}", got.AllowOrigins)
	}
}

func TestBuildCORSConfig_UnsafeAllowAllDisablesCredentials(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins:        []string{"*"},
			AllowCredentials:      true,
			UnsafeAllowAllOrigins: true,
		},
	}

	got := buildCORSConfig(cfg)
	if !got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want true", got.AllowAllOrigins)
	}
	if got.AllowCredentials {
		t.Fatalf("AllowCredentials = %v, want false", got.AllowCredentials)
	}
	if len(got.AllowOrigins) != 0 {
		t.Fatalf("AllowOrigins = %#v, want empty", got.AllowOrigins)
	}
}

type routerHarness struct {
	app *Application
	cfg *config.Config
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	cfg := memoryConfig()
	app, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return &routerHarness{app: app, cfg: cfg}
}

func (h *routerHarness) token(t *testing.T, user string, roles ...string) string {
	t.Helper()
	tok, _, err := middleware.GenerateToken(modules.JWTConfig(h.cfg), user, roles)
	require.NoError(t, err)
	return tok
}

func (h *routerHarness) csrf(t *testing.T, token string) string {
	t.Helper()
	w := h.do(t, http.MethodGet, "/api/csrf", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token
}

func (h *routerHarness) do(t *testing.T, method, path, token, csrf string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set(middleware.CSRFHeader, csrf)
	}
	w := httptest.NewRecorder()
	h.app.Router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	h := newRouterHarness(t)

	w := h.do(t, http.MethodGet, "/api/profiles", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cinematic-standard")

	w = h.do(t, http.MethodGet, "/api/openapi.yaml", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi:")
}

func TestRouter_RequiresSession(t *testing.T) {
	h := newRouterHarness(t)

	w := h.do(t, http.MethodGet, "/api/credits", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/api/credits", h.token(t, "user-1"), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"creditsRemaining":50`)
}

func TestRouter_ValidatesBeforeAuth(t *testing.T) {
	h := newRouterHarness(t)

	w := h.do(t, http.MethodPost, "/api/produce-episode", "", "", map[string]any{"projectId": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestRouter_UnsafeMethodsNeedCSRF(t *testing.T) {
	h := newRouterHarness(t)
	admin := h.token(t, "admin-1", middleware.RoleAdmin)
	grant := map[string]any{"userId": "user-2", "amount": 10, "type": "bonus", "reason": "welcome"}

	w := h.do(t, http.MethodPost, "/api/admin/credits", admin, "", grant)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CSRF_INVALID")

	w = h.do(t, http.MethodPost, "/api/admin/credits", admin, h.csrf(t, admin), grant)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"creditsRemaining":60`)
}

func TestRouter_AdminRoutes(t *testing.T) {
	h := newRouterHarness(t)

	user := h.token(t, "user-1")
	w := h.do(t, http.MethodGet, "/api/admin/log/level", user, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := h.token(t, "admin-1", middleware.RoleAdmin)
	w = h.do(t, http.MethodGet, "/api/admin/log/level", admin, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "level")
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newRouterHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/produce-episode", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization,"+middleware.CSRFHeader)
	w := httptest.NewRecorder()
	h.app.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
