package handlers

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/onboarding"
	"github.com/seguralta/portal/internal/sessions"
	"github.com/seguralta/portal/internal/storage"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/internal/validation"
	"github.com/seguralta/portal/pkg/metrics"
	"github.com/seguralta/portal/pkg/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ContractStore is what the contracts page needs from object storage.
type ContractStore interface {
	List(ctx context.Context, externalID string) ([]storage.Contract, error)
	PresignedURL(ctx context.Context, externalID, name string) (string, error)
}

// Check is a named readiness check.
type Check func(ctx context.Context) error

// Deps are the services the router wires into handlers. Contracts, Redis,
// Revoker and Monitor may be nil.
type Deps struct {
	Config    *config.Config
	Verifier  middleware.Verifier // session tokens from the identity provider
	Mutations middleware.Verifier // short-lived tokens accepted by complete-onboarding
	Revoker   *sessions.Revoker
	Users     *users.Service
	Action    *onboarding.Action
	Contracts ContractStore
	Redis     *redis.Client
	Monitor   *metrics.Monitor
	Gatherer  prometheus.Gatherer
	Checks    map[string]Check
}

var startTime = time.Now()

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"formatPhone": validation.FormatPhone,
		"formatCPF":   validation.FormatCPF,
	}).ParseFS(templateFS, "templates/*.html")
}

// NewRouter builds the gin engine. Pages sit behind the route gate; the API,
// webhooks and operational endpoints do not.
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Config == nil || d.Verifier == nil || d.Mutations == nil || d.Users == nil || d.Action == nil {
		return nil, fmt.Errorf("router: config, verifiers, users and action are required")
	}
	cfg := d.Config

	tmpl, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	// only a non-nil Revoker may become the interface value, or the gate would
	// call through a typed nil
	var revoked middleware.RevocationChecker
	if d.Revoker != nil {
		revoked = d.Revoker
	}
	gate, err := middleware.NewGate(middleware.GateConfig{
		SignInPath:       cfg.Routes.SignIn,
		OnboardingPath:   cfg.Routes.Onboarding,
		DashboardRoot:    cfg.Routes.DashboardRoot,
		DashboardDefault: cfg.Routes.DashboardDefault,
		Public:           cfg.Routes.Public,
	}, d.Verifier, revoked, d.Monitor)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), d.Monitor.Middleware())
	r.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	r.StaticFS("/static", http.FS(static))

	limit := func() gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }
	if cfg.RateLimit.Enabled {
		limit = func() gin.HandlerFunc {
			if cfg.RateLimit.UseRedis && d.Redis != nil {
				win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
				return middleware.RedisRateLimitMiddleware(d.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win, d.Monitor)
			}
			return middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, d.Monitor)
		}
	}

	registerOps(r, d)
	RegisterSwagger(r)

	NewSessionHandler(cfg, d.Verifier, d.Revoker).Register(r.Group("/auth"))
	usersAPI := NewUsersAPI(d.Users)
	usersAPI.RegisterQueries(r.Group("/api/users", middleware.SessionAuthMiddleware(d.Verifier, revoked)))
	usersAPI.RegisterMutations(r.Group("/api/users", middleware.AuthMiddleware(d.Mutations, nil)))

	wh, err := NewWebhookHandler(cfg.Webhook.SigningSecret, d.Users, d.Monitor)
	if err != nil {
		return nil, err
	}
	r.POST("/webhooks/identity", limit(), wh.Handle)

	pages := r.Group("/", gate.Handler())
	NewOnboardingHandler(cfg, d.Users, d.Action, limit()).Register(pages)
	NewPagesHandler(cfg, d.Users, d.Contracts).Register(pages)

	r.NoRoute(func(c *gin.Context) {
		renderError(c, http.StatusNotFound, "Página não encontrada", "O endereço acessado não existe.")
	})
	return r, nil
}

func registerOps(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready returns 200 only when every dependency check passes
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		for name, check := range d.Checks {
			ok := check(ctx) == nil
			deps[name] = ok
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
}

// wantsJSON reports whether the client asked for or sent JSON.
func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == gin.MIMEJSON {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// page returns the data every template expects.
func page(c *gin.Context, title string) gin.H {
	return gin.H{
		"Title":   title,
		"Subject": middleware.SubjectFromContext(c.Request.Context()),
	}
}

func renderError(c *gin.Context, code int, title, msg string) {
	if wantsJSON(c) {
		c.JSON(code, gin.H{"error": msg})
		return
	}
	data := page(c, title)
	data["Message"] = msg
	c.HTML(code, "error.html", data)
}
