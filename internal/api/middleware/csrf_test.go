package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFIssueVerify(t *testing.T) {
	x, err := NewCSRF("session-secret-0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	x.now = func() time.Time { return now }

	token, expiresAt := x.Issue("u-1")
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	assert.NoError(t, x.Verify("u-1", token))
	assert.ErrorIs(t, x.Verify("u-2", token), ErrCSRFMismatch)
	assert.ErrorIs(t, x.Verify("u-1", ""), ErrCSRFMissing)
	assert.ErrorIs(t, x.Verify("u-1", "no-dot"), ErrCSRFMalformed)
	assert.ErrorIs(t, x.Verify("u-1", "!!.!!"), ErrCSRFMalformed)

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, x.Verify("u-1", token), ErrCSRFExpired)
}

func TestCSRFKeyDependsOnSecret(t *testing.T) {
	a, err := NewCSRF("secret-a-0123456789abcdef0123456789", time.Hour)
	require.NoError(t, err)
	b, err := NewCSRF("secret-b-0123456789abcdef0123456789", time.Hour)
	require.NoError(t, err)

	token, _ := a.Issue("u-1")
	assert.ErrorIs(t, b.Verify("u-1", token), ErrCSRFMismatch)

	_, err = NewCSRF("", time.Hour)
	assert.Error(t, err)
}

func TestCSRFRequire(t *testing.T) {
	x, err := NewCSRF("session-secret-0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	token, _ := x.Issue("u-1")

	router := gin.New()
	router.Use(ErrorHandler(), func(c *gin.Context) {
		c.Request = c.Request.WithContext(SetUserContext(c.Request.Context(), "u-1", nil))
		c.Next()
	}, x.Require())
	router.GET("/r", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/w", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/w", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CSRF_INVALID")

	req := httptest.NewRequest(http.MethodPost, "/w", nil)
	req.Header.Set(CSRFHeader, token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCSRFNilDisables(t *testing.T) {
	var x *CSRF
	router := gin.New()
	router.Use(x.Require())
	router.POST("/w", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/w", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
