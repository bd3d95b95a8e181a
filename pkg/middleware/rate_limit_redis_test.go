package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/seguralta/portal/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimitMiddleware_Basic(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	mon := metrics.NewMonitor(prometheus.NewRegistry())

	r := gin.New()
	r.Use(RedisRateLimitMiddleware(client, 1, 0, 1*time.Second, mon)) // 1 req/sec, no burst
	r.GET("/r", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// first request allowed
	rq1 := httptest.NewRequest("GET", "/r", nil)
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, rq1)

	// Requests straddling a second boundary land in different buckets; retry once.
	rq2 := httptest.NewRequest("GET", "/r", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, rq2)
	if w2.Code == http.StatusOK {
		w2 = httptest.NewRecorder()
		r.ServeHTTP(w2, httptest.NewRequest("GET", "/r", nil))
	}
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.GreaterOrEqual(t, testutil.ToFloat64(mon.RateLimitRejected.WithLabelValues("redis")), 1.0)

	// advance miniredis clock past window and request should be allowed
	m.FastForward(2 * time.Second)
	time.Sleep(1100 * time.Millisecond)
	rq3 := httptest.NewRequest("GET", "/r", nil)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, rq3)
	require.Equal(t, http.StatusOK, w3.Code)
}

func TestRedisRateLimitMiddleware_NilClientFallsBackToMemory(t *testing.T) {
	mon := metrics.NewMonitor(prometheus.NewRegistry())
	r := gin.New()
	r.Use(RedisRateLimitMiddleware(nil, 10, 1, time.Second, mon))
	r.GET("/r", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/r", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(mon.RateLimitAllowed.WithLabelValues("memory")))
}
