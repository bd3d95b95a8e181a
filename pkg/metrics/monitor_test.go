package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMonitor_StartStopLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)

	require.NoError(t, m.Start(10*time.Millisecond))
	require.Error(t, m.Start(time.Second), "second start must fail")

	m.ObserveGate("pass")
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	m.Stop()
	m.Stop()
	families, err = reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families, "collectors should be unregistered after Stop")

	// a stopped monitor can be started again on the same registry
	require.NoError(t, m.Start(10*time.Millisecond))
	m.Stop()
}

func TestMonitor_IndependentInstances(t *testing.T) {
	a := NewMonitor(prometheus.NewRegistry())
	b := NewMonitor(prometheus.NewRegistry())

	a.ObserveOnboarding("success")
	a.ObserveOnboarding("success")
	b.ObserveOnboarding("success")

	require.Equal(t, 2.0, testutil.ToFloat64(a.Onboarding.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(b.Onboarding.WithLabelValues("success")))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	m.ObserveGate("pass")
	m.ObserveWebhook("user.created", "ok")
	m.ObserveRateLimit("memory", true)
	m.ObserveOnboarding("error")
}

func TestMonitor_Middleware(t *testing.T) {
	m := NewMonitor(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
