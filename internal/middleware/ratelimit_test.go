package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pandeptwidyaop/macrosync/internal/middleware"
)

func TestRateLimiter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	gin.SetMode(gin.TestMode)

	rl := middleware.NewRateLimiter(2, time.Minute)
	defer rl.Close()

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
		codes = append(codes, w.Code)
		if i == 1 {
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		}
		if i == 2 {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := middleware.NewRateLimiter(1, time.Minute)
	defer rl.Close()

	ok, _, _ := rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _, _ = rl.Allow("10.0.0.1")
	assert.False(t, ok)
	ok, _, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok)
}
