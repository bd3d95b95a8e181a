package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/storage"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

// annual premium as a fraction of the insured value
var premiumRates = map[string]float64{
	"auto":        0.045,
	"residencial": 0.003,
	"vida":        0.012,
}

// PagesHandler renders the marketing pages and the dashboard.
type PagesHandler struct {
	cfg       *config.Config
	users     *users.Service
	contracts ContractStore
}

// NewPagesHandler accepts a nil contracts store; the contracts page then
// reports that documents are not available yet.
func NewPagesHandler(cfg *config.Config, svc *users.Service, contracts ContractStore) *PagesHandler {
	return &PagesHandler{cfg: cfg, users: svc, contracts: contracts}
}

func (h *PagesHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/", h.Home)
	for _, p := range []string{"/sign-in", "/sign-up"} {
		rg.GET(p, h.SignIn)
		rg.GET(p+"/*rest", h.SignIn)
	}
	rg.GET("/simulacao", h.Simulacao)
	rg.GET("/simulacao/*rest", h.Simulacao)
	rg.GET("/cotacao", h.Cotacao)
	rg.GET("/cotacao/*rest", h.Cotacao)

	root := h.cfg.Routes.DashboardRoot
	rg.GET(root, func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.Routes.DashboardDefault)
	})
	rg.GET(root+"/contratos", h.Contratos)
	rg.GET(root+"/contratos/:name", h.DownloadContrato)
	rg.GET(root+"/perfil", h.Perfil)
	rg.GET(root+"/admin/usuarios", h.AdminUsuarios)
}

func (h *PagesHandler) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", page(c, "Início"))
}

func (h *PagesHandler) SignIn(c *gin.Context) {
	signUp := strings.HasPrefix(c.Request.URL.Path, "/sign-up")
	title := "Entrar"
	if signUp {
		title = "Criar conta"
	}
	data := page(c, title)
	data["SignUp"] = signUp
	data["Provider"] = h.cfg.Identity.Provider
	data["RedirectURL"] = safeRedirect(c.Request, c.Query("redirect_url"), h.cfg.Routes.DashboardDefault)
	c.HTML(http.StatusOK, "sign_in.html", data)
}

// safeRedirect keeps post-sign-in navigation on this host.
func safeRedirect(r *http.Request, raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if u.Host != "" && u.Host != r.Host && u.Host != r.Header.Get("X-Forwarded-Host") {
		return fallback
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return fallback
	}
	out := u.Path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

func (h *PagesHandler) Simulacao(c *gin.Context) {
	data := page(c, "Simulação")
	tipo := c.DefaultQuery("tipo", "auto")
	valor := strings.TrimSpace(c.Query("valor"))
	data["Tipo"] = tipo
	data["Valor"] = valor
	data["Estimate"] = ""
	if est, ok := estimatePremium(tipo, valor); ok {
		data["Estimate"] = formatBRL(est)
	}
	c.HTML(http.StatusOK, "simulacao.html", data)
}

// estimatePremium accepts values written as 150000, 150.000 or 150.000,50.
func estimatePremium(tipo, valor string) (float64, bool) {
	rate, ok := premiumRates[tipo]
	if !ok || valor == "" {
		return 0, false
	}
	norm := strings.ReplaceAll(valor, ".", "")
	norm = strings.ReplaceAll(norm, ",", ".")
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * rate, true
}

func formatBRL(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String() + "," + frac
}

func (h *PagesHandler) Cotacao(c *gin.Context) {
	data := page(c, "Cotação")
	data["Step"] = strings.Trim(c.Param("rest"), "/")
	c.HTML(http.StatusOK, "cotacao.html", data)
}

func (h *PagesHandler) Contratos(c *gin.Context) {
	data := page(c, "Contratos")
	data["StorageEnabled"] = h.contracts != nil
	data["Contracts"] = []storage.Contract(nil)
	if h.contracts != nil {
		list, err := h.contracts.List(c.Request.Context(), middleware.SubjectFromContext(c.Request.Context()))
		if err != nil {
			logger.Errorf("list contracts: %v", err)
			renderError(c, http.StatusBadGateway, "Contratos", "Não foi possível carregar seus contratos.")
			return
		}
		data["Contracts"] = list
	}
	c.HTML(http.StatusOK, "contratos.html", data)
}

func (h *PagesHandler) DownloadContrato(c *gin.Context) {
	if h.contracts == nil {
		renderError(c, http.StatusNotFound, "Contratos", "Documento não encontrado.")
		return
	}
	ctx := c.Request.Context()
	sub := middleware.SubjectFromContext(ctx)
	if sub == "" {
		// document names with asset extensions skip the gate
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.Routes.SignIn+"?redirect_url="+url.QueryEscape(middleware.OriginalURL(c.Request)))
		return
	}
	link, err := h.contracts.PresignedURL(ctx, sub, c.Param("name"))
	if errors.Is(err, storage.ErrInvalidName) {
		renderError(c, http.StatusBadRequest, "Contratos", "Nome de documento inválido.")
		return
	}
	if err != nil {
		logger.Errorf("presign contract: %v", err)
		renderError(c, http.StatusBadGateway, "Contratos", "Não foi possível gerar o link do documento.")
		return
	}
	c.Redirect(http.StatusFound, link)
}

func (h *PagesHandler) Perfil(c *gin.Context) {
	u, err := h.users.Current(c.Request.Context())
	if err != nil {
		logger.Errorf("profile lookup: %v", err)
		renderError(c, http.StatusInternalServerError, "Perfil", "Não foi possível carregar seu perfil.")
		return
	}
	data := page(c, "Perfil")
	data["User"] = u
	c.HTML(http.StatusOK, "perfil.html", data)
}

// AdminUsuarios checks the role in the store, not the token claim.
func (h *PagesHandler) AdminUsuarios(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.users.Current(ctx)
	if err != nil {
		logger.Errorf("admin lookup: %v", err)
		renderError(c, http.StatusInternalServerError, "Usuários", "Não foi possível verificar suas permissões.")
		return
	}
	if !u.IsAdmin() {
		renderError(c, http.StatusForbidden, "Acesso negado", "Esta página é restrita a administradores.")
		return
	}
	list, err := h.users.List(ctx, 200)
	if err != nil {
		logger.Errorf("list users: %v", err)
		renderError(c, http.StatusInternalServerError, "Usuários", "Não foi possível listar os usuários.")
		return
	}
	data := page(c, "Usuários")
	data["Users"] = list
	c.HTML(http.StatusOK, "admin_usuarios.html", data)
}
