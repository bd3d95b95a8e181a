package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/models"
	"github.com/seguralta/portal/internal/storage"
)

func TestPages_ContractsListAndDownload(t *testing.T) {
	store := &fakeContracts{list: []storage.Contract{
		{Name: "apolice-auto.pdf", Size: 1024, LastModified: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}
	env := newTestEnv(t, func(_ *config.Config, d *Deps) { d.Contracts = store })

	w := env.do(http.MethodGet, "/dashboard/contratos", "complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apolice-auto.pdf")
	assert.Contains(t, w.Body.String(), "01/03/2026")

	w = env.do(http.MethodGet, "/dashboard/contratos/apolice-auto.pdf", "complete", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.com/user_done/apolice-auto.pdf?sig=x", w.Header().Get("Location"))

	w = env.do(http.MethodGet, "/dashboard/contratos/a..b", "complete", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.err = errors.New("minio down")
	w = env.do(http.MethodGet, "/dashboard/contratos", "complete", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPages_ContractsWithoutStorage(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/dashboard/contratos", "complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "em breve")

	w = env.do(http.MethodGet, "/dashboard/contratos/x.pdf", "complete", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPages_ProfileShowsStoredRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, models.User{ExternalID: "user_done", Name: "Ana", Phone: "11987654321", CPF: "52998224725", OnboardingCompleted: true})

	w := env.do(http.MethodGet, "/dashboard/perfil", "complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "(11) 98765-4321")
	assert.Contains(t, w.Body.String(), "529.982.247-25")
}

func TestPages_AdminChecksStoredRole(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, models.User{ExternalID: "user_done", Name: "Ana", Role: models.RoleUser, OnboardingCompleted: true})
	env.seed(t, models.User{ExternalID: "user_admin", Name: "Chefe", Role: models.RoleAdmin, OnboardingCompleted: true})

	w := env.do(http.MethodGet, "/dashboard/admin/usuarios", "complete", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/dashboard/admin/usuarios", "admin", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Chefe")
	assert.Contains(t, w.Body.String(), "Ana")
}

func TestPages_SimulacaoEstimate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/simulacao?tipo=auto&valor=100.000", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "R$ 4.500,00")

	w = env.do(http.MethodGet, "/simulacao?tipo=barco&valor=100", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "estimate")
}

func TestPages_SignInKeepsLocalRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/sign-in?redirect_url=http%3A%2F%2Fexample.com%2Fdashboard%2Fperfil", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-redirect="/dashboard/perfil"`)

	w = env.do(http.MethodGet, "/sign-in?redirect_url=https%3A%2F%2Fevil.example%2Fsteal", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-redirect="/dashboard/contratos"`)

	w = env.do(http.MethodGet, "/sign-up", "", "", nil)
	assert.Contains(t, w.Body.String(), `data-mode="sign-up"`)
}

func TestSafeRedirect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://portal.local/sign-in", nil)
	assert.Equal(t, "/x?y=1", safeRedirect(r, "http://portal.local/x?y=1", "/d"))
	assert.Equal(t, "/x", safeRedirect(r, "/x", "/d"))
	assert.Equal(t, "/d", safeRedirect(r, "//evil.example/x", "/d"))
	assert.Equal(t, "/d", safeRedirect(r, "", "/d"))
	assert.Equal(t, "/d", safeRedirect(r, "javascript:alert(1)", "/d"))
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "4.500,00", formatBRL(4500))
	assert.Equal(t, "12,50", formatBRL(12.5))
	assert.Equal(t, "1.234.567,89", formatBRL(1234567.891))
	assert.Equal(t, "100,00", formatBRL(100))
}

func TestPages_DownloadWithAssetExtensionStillNeedsSession(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) { d.Contracts = &fakeContracts{} })

	w := env.do(http.MethodGet, "/dashboard/contratos/proposta.docx", "", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/sign-in?redirect_url=")

	w = env.do(http.MethodGet, "/dashboard/contratos/proposta.docx", "complete", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/user_done/proposta.docx")
}
