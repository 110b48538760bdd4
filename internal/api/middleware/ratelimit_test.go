package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"halcyon.studio/cinema/internal/ratelimit"
)

func TestRateLimitByUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithClock(func() time.Time { return now }))

	router := gin.New()
	router.Use(ErrorHandler(), func(c *gin.Context) {
		c.Request = c.Request.WithContext(SetUserContext(c.Request.Context(), c.GetHeader("X-User"), nil))
		c.Next()
	}, RateLimitByUser(limiter, "image", RateRule{Max: 2, Window: time.Minute}))
	router.POST("/gen", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/gen", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, hit("u-1").Code)
	assert.Equal(t, http.StatusNoContent, hit("u-1").Code)
	denied := hit("u-1")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "60", denied.Header().Get("Retry-After"))
	assert.Contains(t, denied.Body.String(), "retry_after_seconds")

	// Another user has their own window.
	assert.Equal(t, http.StatusNoContent, hit("u-2").Code)

	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusNoContent, hit("u-1").Code)
}

func TestRateLimitByIP(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore())
	router := gin.New()
	router.Use(ErrorHandler(), RateLimitByIP(limiter, RateRule{Max: 1, Window: time.Hour}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
