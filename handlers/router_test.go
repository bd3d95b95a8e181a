package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/models"
	"github.com/seguralta/portal/internal/onboarding"
	"github.com/seguralta/portal/internal/sessions"
	"github.com/seguralta/portal/internal/storage"
	"github.com/seguralta/portal/internal/tokens"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/metrics"
	"github.com/seguralta/portal/pkg/middleware"
)

// fakeVerifier accepts the tokens it knows and returns their claims.
type fakeVerifier map[string]map[string]interface{}

func (f fakeVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims, ok := f[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return middleware.ClaimsToken(claims), nil
}

type fakeIDP struct {
	metadata map[string]identity.PublicMetadata
	err      error
}

func (f *fakeIDP) UpdatePublicMetadata(_ context.Context, id string, md identity.PublicMetadata) error {
	if f.err != nil {
		return f.err
	}
	f.metadata[id] = md
	return nil
}

type fakeContracts struct {
	list []storage.Contract
	err  error
}

func (f *fakeContracts) List(_ context.Context, _ string) ([]storage.Contract, error) {
	return f.list, f.err
}

func (f *fakeContracts) PresignedURL(_ context.Context, id, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", storage.ErrInvalidName
	}
	return "https://files.example.com/" + id + "/" + name + "?sig=x", nil
}

type testEnv struct {
	cfg     *config.Config
	router  *gin.Engine
	repo    *users.MemoryUserRepository
	svc     *users.Service
	idp     *fakeIDP
	issuer  *tokens.Issuer
	monitor *metrics.Monitor
	redis   *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Environment: "development"},
		Identity: config.IdentityConfig{Provider: "clerk"},
		Routes: config.RoutesConfig{
			SignIn:           "/sign-in",
			Onboarding:       "/onboarding",
			DashboardRoot:    "/dashboard",
			DashboardDefault: "/dashboard/contratos",
			Public:           append([]string(nil), config.DefaultPublicRoutes...),
		},
	}
}

// sessions known to the fake verifier
var testSessions = fakeVerifier{
	"incomplete": {"sub": "user_new", "exp": float64(time.Now().Add(time.Hour).Unix())},
	"complete": {"sub": "user_done", "exp": float64(time.Now().Add(time.Hour).Unix()),
		"metadata": map[string]interface{}{"onboardingComplete": true}},
	"admin":   {"sub": "user_admin", "metadata": map[string]interface{}{"onboardingComplete": true}},
	"stringy": {"sub": "user_str", "metadata": map[string]interface{}{"onboardingComplete": "true"}},
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	repo := users.NewMemoryUserRepository()
	svc := users.NewService(repo)
	iss, err := tokens.NewIssuer("handlers-test-secret-xxxxxxxxxxxxxxxx", time.Minute)
	require.NoError(t, err)
	idp := &fakeIDP{metadata: map[string]identity.PublicMetadata{}}
	revoker := sessions.NewRevoker(rdb)
	reg := prometheus.NewRegistry()
	mon := metrics.NewMonitor(reg)
	require.NoError(t, mon.Start(time.Hour))
	t.Cleanup(mon.Stop)

	d := Deps{
		Config:    cfg,
		Verifier:  testSessions,
		Mutations: iss,
		Revoker:   revoker,
		Users:     svc,
		Action:    onboarding.NewAction(idp, users.NewMutationClient(svc, iss), iss, mon),
		Redis:     rdb,
		Monitor:   mon,
		Gatherer:  reg,
		Checks: map[string]Check{
			"redis": revoker.Ping,
		},
	}
	if mutate != nil {
		mutate(cfg, &d)
	}
	r, err := NewRouter(d)
	require.NoError(t, err)

	return &testEnv{cfg: cfg, router: r, repo: repo, svc: svc, idp: idp, issuer: iss, monitor: mon, redis: mr}
}

func (e *testEnv) seed(t *testing.T, u models.User) {
	t.Helper()
	_, err := e.repo.Insert(context.Background(), &u)
	require.NoError(t, err)
}

func (e *testEnv) do(method, target, session string, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: session})
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_RequiresCoreDeps(t *testing.T) {
	_, err := NewRouter(Deps{Config: testConfig()})
	require.Error(t, err)
}

func TestRouter_UnauthenticatedDashboardRedirectsToSignIn(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/dashboard/contratos", "", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/sign-in", loc.Path)
	assert.Equal(t, "http://example.com/dashboard/contratos", loc.Query().Get("redirect_url"))
}

func TestRouter_IncompleteSessionSentToOnboarding(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/dashboard/perfil", "incomplete", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))

	// the onboarding page itself is served to the same session
	w = env.do(http.MethodGet, "/onboarding", "incomplete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "onboarding-form")
}

func TestRouter_StringOnboardingFlagIsNotComplete(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/dashboard/perfil", "stringy", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))
}

func TestRouter_DashboardRootRedirectsToDefault(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/dashboard", "complete", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/dashboard/contratos", w.Header().Get("Location"))
}

func TestRouter_PublicPagesWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, p := range []string{"/", "/sign-in", "/sign-up/verify", "/simulacao", "/cotacao/auto"} {
		w := env.do(http.MethodGet, p, "", "", nil)
		assert.Equal(t, http.StatusOK, w.Code, p)
	}
	// an incomplete session is not redirected away from public pages
	w := env.do(http.MethodGet, "/simulacao", "incomplete", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RevokedSessionIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/auth/logout", "complete", "", map[string]string{"Accept": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/dashboard/contratos", "complete", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/sign-in?redirect_url="))
}

func TestRouter_StaticAssetsBypassGate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/static/app.css", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_OpsEndpoints(t *testing.T) {
	var storeErr error
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Checks["mongodb"] = func(context.Context) error { return storeErr }
	})

	w := env.do(http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/ready", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":true`)

	storeErr = errors.New("no primary")
	w = env.do(http.MethodGet, "/ready", "", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"mongodb":false`)

	env.do(http.MethodGet, "/dashboard/contratos", "", "", nil)
	w = env.do(http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `portal_gate_decisions_total{reason="unauthenticated"}`)
}

func TestRouter_UnknownRouteRendersNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/nao-existe", "", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Página não encontrada")
}

func TestRouter_RateLimitedSubmit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	})
	hdr := map[string]string{"Content-Type": "application/json"}

	w := env.do(http.MethodPost, "/onboarding", "incomplete", `{"name":""}`, hdr)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = env.do(http.MethodPost, "/onboarding", "incomplete", `{"name":""}`, hdr)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
