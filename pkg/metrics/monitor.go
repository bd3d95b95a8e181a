package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Monitor owns the portal's collectors. It is constructed explicitly and
// handed to the components that record into it; Start registers the
// collectors and launches the uptime sampler, Stop undoes both.
type Monitor struct {
	reg prometheus.Registerer

	RateLimitAllowed  *prometheus.CounterVec
	RateLimitRejected *prometheus.CounterVec
	GateDecisions     *prometheus.CounterVec
	Onboarding        *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	Uptime            prometheus.Gauge

	mu      sync.Mutex
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor builds the collectors without registering them.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	return &Monitor{
		reg: reg,
		RateLimitAllowed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "portal", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
			[]string{"limiter"},
		),
		RateLimitRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "portal", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
			[]string{"limiter"},
		),
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "portal", Name: "gate_decisions_total", Help: "Route gate decisions by reason."},
			[]string{"reason"},
		),
		Onboarding: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "portal", Name: "onboarding_completions_total", Help: "Onboarding completion attempts by outcome."},
			[]string{"outcome"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "portal", Name: "identity_webhook_events_total", Help: "Identity provider webhook events by type and result."},
			[]string{"type", "result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "portal", Name: "http_request_duration_seconds", Help: "HTTP request latency.", Buckets: prometheus.DefBuckets},
			[]string{"method", "route", "status"},
		),
		Uptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "portal", Name: "uptime_seconds", Help: "Seconds since the monitor was started."},
		),
	}
}

func (m *Monitor) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RateLimitAllowed, m.RateLimitRejected, m.GateDecisions,
		m.Onboarding, m.WebhookEvents, m.RequestDuration, m.Uptime,
	}
}

// Start registers the collectors and samples uptime every interval until Stop.
func (m *Monitor) Start(interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return errors.New("metrics: monitor already started")
	}
	for _, c := range m.collectors() {
		if err := m.reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m.started = time.Now()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sample(interval, m.stop, m.done)
	return nil
}

func (m *Monitor) sample(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	m.Uptime.Set(0)
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			m.Uptime.Set(now.Sub(m.started).Seconds())
		}
	}
}

// Stop halts the sampler and unregisters the collectors. Safe to call twice.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
}

// ObserveGate counts a route gate decision. A nil Monitor records nothing.
func (m *Monitor) ObserveGate(reason string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(reason).Inc()
}

func (m *Monitor) ObserveOnboarding(outcome string) {
	if m == nil {
		return
	}
	m.Onboarding.WithLabelValues(outcome).Inc()
}

func (m *Monitor) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Monitor) ObserveRateLimit(limiter string, allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.RateLimitAllowed.WithLabelValues(limiter).Inc()
		return
	}
	m.RateLimitRejected.WithLabelValues(limiter).Inc()
}

// Middleware records request latency labelled by the matched gin route.
func (m *Monitor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
