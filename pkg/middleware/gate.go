package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/metrics"
)

// GateConfig names the routes the gate redirects between. Public entries are
// path patterns where "(.*)" matches any suffix, e.g. "/sign-in(.*)".
type GateConfig struct {
	SignInPath       string
	OnboardingPath   string
	DashboardRoot    string
	DashboardDefault string
	Public           []string
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Redirect bool
	Location string
	Reason   string
}

const (
	ReasonStatic               = "static"
	ReasonOnboardingRoute      = "onboarding_route"
	ReasonUnauthenticated      = "unauthenticated"
	ReasonOnboardingIncomplete = "onboarding_incomplete"
	ReasonDashboardDefault     = "dashboard_default"
	ReasonPass                 = "pass"
)

// staticExtensions are asset suffixes the gate never inspects.
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true, ".json": true, ".txt": true, ".xml": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".csv": true, ".docx": true, ".xlsx": true, ".zip": true, ".webmanifest": true,
}

// IsStaticAsset reports whether p is a framework-internal or static file path.
func IsStaticAsset(p string) bool {
	if strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/_next/") {
		return true
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// Gate decides, for every page request, whether it passes or is redirected
// to sign-in, onboarding or the default dashboard page.
type Gate struct {
	cfg        GateConfig
	public     []*regexp.Regexp
	onboarding *regexp.Regexp
	verifier   Verifier
	revoked    RevocationChecker
	monitor    *metrics.Monitor
	log        *slog.Logger
}

// NewGate compiles the public route patterns. revoked and mon may be nil.
func NewGate(cfg GateConfig, ver Verifier, revoked RevocationChecker, mon *metrics.Monitor) (*Gate, error) {
	if ver == nil {
		return nil, fmt.Errorf("gate: verifier is required")
	}
	if cfg.SignInPath == "" || cfg.OnboardingPath == "" {
		return nil, fmt.Errorf("gate: sign-in and onboarding paths are required")
	}
	g := &Gate{
		cfg:      cfg,
		verifier: ver,
		revoked:  revoked,
		monitor:  mon,
		log:      logger.With("gate"),
	}
	for _, p := range cfg.Public {
		re, err := CompileRoutePattern(p)
		if err != nil {
			return nil, fmt.Errorf("gate: public route %q: %w", p, err)
		}
		g.public = append(g.public, re)
	}
	g.onboarding = regexp.MustCompile("^" + regexp.QuoteMeta(strings.TrimSuffix(cfg.OnboardingPath, "/")) + "(/.*)?$")
	return g, nil
}

// CompileRoutePattern turns a route pattern into an anchored regexp. Literal
// parts are quoted; parenthesised groups are kept as regexp syntax.
func CompileRoutePattern(p string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	depth := 0
	for _, r := range p {
		switch {
		case r == '(':
			depth++
			b.WriteRune(r)
		case r == ')':
			depth--
			b.WriteRune(r)
		case depth > 0:
			b.WriteRune(r)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// IsPublic reports whether p matches a public route pattern.
func (g *Gate) IsPublic(p string) bool {
	for _, re := range g.public {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// IsOnboardingRoute reports whether p is the onboarding page or below it.
func (g *Gate) IsOnboardingRoute(p string) bool {
	return g.onboarding.MatchString(p)
}

// Decide evaluates the redirect rules in order. claims is nil for an
// unauthenticated request.
func (g *Gate) Decide(r *http.Request, claims map[string]interface{}) Decision {
	p := r.URL.Path
	authed := claims != nil

	if authed && g.IsOnboardingRoute(p) {
		return Decision{Reason: ReasonOnboardingRoute}
	}
	public := g.IsPublic(p)
	if !authed && !public {
		return Decision{
			Redirect: true,
			Location: g.cfg.SignInPath + "?redirect_url=" + url.QueryEscape(OriginalURL(r)),
			Reason:   ReasonUnauthenticated,
		}
	}
	if authed && !OnboardingComplete(claims) && !public {
		return Decision{Redirect: true, Location: g.cfg.OnboardingPath, Reason: ReasonOnboardingIncomplete}
	}
	if g.cfg.DashboardRoot != "" && p == g.cfg.DashboardRoot {
		return Decision{Redirect: true, Location: g.cfg.DashboardDefault, Reason: ReasonDashboardDefault}
	}
	return Decision{Reason: ReasonPass}
}

// authenticate returns the verified claims of the request's session, or nil.
func (g *Gate) authenticate(c *gin.Context) (string, map[string]interface{}) {
	token := SessionToken(c.Request)
	if token == "" {
		return "", nil
	}
	ctx := c.Request.Context()
	if g.revoked != nil {
		revoked, err := g.revoked.IsRevoked(ctx, token)
		if err != nil {
			g.log.Warn("revocation check failed", "error", err)
			return "", nil
		}
		if revoked {
			return "", nil
		}
	}
	claims, err := VerifyClaims(ctx, g.verifier, token)
	if err != nil {
		g.log.Debug("session rejected", "error", err)
		return "", nil
	}
	if SubjectFromClaims(claims) == "" {
		return "", nil
	}
	return token, claims
}

// Handler returns the gin middleware. Authenticated requests that pass carry
// their identity in the request context.
func (g *Gate) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, claims := g.authenticate(c)
		if claims != nil {
			setIdentity(c, claims)
		}
		// assets are never redirected, but keep the identity for handlers
		// that serve per-user files
		if IsStaticAsset(c.Request.URL.Path) {
			g.monitor.ObserveGate(ReasonStatic)
			c.Next()
			return
		}
		d := g.Decide(c.Request, claims)
		g.monitor.ObserveGate(d.Reason)
		if d.Redirect {
			g.log.Debug("redirect", "path", c.Request.URL.Path, "to", d.Location, "reason", d.Reason)
			c.Redirect(http.StatusTemporaryRedirect, d.Location)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OriginalURL reconstructs the absolute URL the client requested, honouring
// X-Forwarded-Proto and X-Forwarded-Host set by a fronting proxy.
func OriginalURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
