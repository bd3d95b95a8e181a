package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/onboarding"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

const msgSubmitInFlight = "Seu cadastro já está sendo enviado"

// OnboardingHandler serves the onboarding page, its blur validation and the
// submit endpoint.
type OnboardingHandler struct {
	cfg    *config.Config
	users  *users.Service
	action *onboarding.Action
	guard  *onboarding.Guard
	limit  gin.HandlerFunc
}

func NewOnboardingHandler(cfg *config.Config, u *users.Service, a *onboarding.Action, limit gin.HandlerFunc) *OnboardingHandler {
	return &OnboardingHandler{cfg: cfg, users: u, action: a, guard: onboarding.NewGuard(), limit: limit}
}

func (h *OnboardingHandler) Register(rg *gin.RouterGroup) {
	p := h.cfg.Routes.Onboarding
	rg.GET(p, h.Page)
	rg.POST(p+"/validate", h.Validate)
	rg.POST(p, h.limit, h.Submit)
}

func (h *OnboardingHandler) formData(c *gin.Context) gin.H {
	data := page(c, "Cadastro")
	data["RefreshRequired"] = false
	data["Message"] = ""
	data["Error"] = ""
	data["Next"] = h.cfg.Routes.DashboardDefault
	data["Values"] = onboarding.Values{}
	data["FieldErrors"] = map[string]string{}
	return data
}

// Page is the onboarding layout check. The claim says complete: leave for the
// dashboard. The claim says incomplete but the store says complete: the token
// is stale, so ask the client to reload its session instead of redirecting,
// which would loop through the gate.
func (h *OnboardingHandler) Page(c *gin.Context) {
	ctx := c.Request.Context()
	if middleware.OnboardingComplete(middleware.ClaimsFromContext(ctx)) {
		c.Redirect(http.StatusFound, h.cfg.Routes.DashboardDefault)
		return
	}
	data := h.formData(c)
	need, err := h.users.NeedsOnboarding(ctx)
	if err != nil {
		logger.Warnf("onboarding store check failed: %v", err)
		need = true
	}
	if !need {
		data["RefreshRequired"] = true
		c.HTML(http.StatusOK, "onboarding.html", data)
		return
	}
	if u, err := h.users.Current(ctx); err == nil && u != nil {
		data["Values"] = onboarding.Values{Name: u.Name, Phone: u.Phone, CPF: u.CPF}
	}
	c.HTML(http.StatusOK, "onboarding.html", data)
}

// Validate handles a field blur: the field is touched and validated.
func (h *OnboardingHandler) Validate(c *gin.Context) {
	fld, ok := onboarding.ParseField(c.Query("field"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field"})
		return
	}
	form := onboarding.NewForm()
	form.Set(fld, c.PostForm("value"))
	form.Blur(fld)

	errMsg := form.Errors()[fld]
	c.JSON(http.StatusOK, gin.H{
		"field":   fld,
		"value":   form.Values().Get(fld),
		"touched": true,
		"isValid": errMsg == "",
		"error":   errMsg,
	})
}

// Submit runs the completion action for the session's user.
func (h *OnboardingHandler) Submit(c *gin.Context) {
	var v onboarding.Values
	if err := c.ShouldBind(&v); err != nil {
		h.respond(c, http.StatusBadRequest, v, nil, onboarding.Result{Error: onboarding.MsgFieldsRequired})
		return
	}
	ctx := c.Request.Context()
	sub := middleware.SubjectFromContext(ctx)
	if sub == "" {
		h.respond(c, http.StatusUnauthorized, v, nil, onboarding.Result{Error: onboarding.MsgNotLoggedIn})
		return
	}
	release, ok := h.guard.Acquire(sub)
	if !ok {
		h.respond(c, http.StatusConflict, v, nil, onboarding.Result{Error: msgSubmitInFlight})
		return
	}
	defer release()

	form := onboarding.NewFormFrom(v)
	res, err := form.Submit(ctx, h.action.Complete)
	switch {
	case errors.Is(err, onboarding.ErrFormInvalid):
		fieldErrs := form.Errors()
		res = onboarding.Result{Error: firstError(v, fieldErrs)}
		h.respond(c, http.StatusUnprocessableEntity, form.Values(), fieldErrs, res)
		return
	case err != nil:
		h.respond(c, http.StatusConflict, v, nil, onboarding.Result{Error: msgSubmitInFlight})
		return
	}
	h.respond(c, statusFor(res), form.Values(), nil, res)
}

// firstError prefers the "all fields required" message when a field is blank.
func firstError(v onboarding.Values, errs map[onboarding.Field]string) string {
	if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.Phone) == "" || strings.TrimSpace(v.CPF) == "" {
		return onboarding.MsgFieldsRequired
	}
	for _, f := range onboarding.Fields {
		if msg, ok := errs[f]; ok {
			return msg
		}
	}
	return onboarding.MsgFieldsRequired
}

func statusFor(res onboarding.Result) int {
	switch res.Error {
	case "":
		return http.StatusOK
	case onboarding.MsgNotLoggedIn:
		return http.StatusUnauthorized
	case onboarding.MsgUpdateFailed:
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func (h *OnboardingHandler) respond(c *gin.Context, code int, v onboarding.Values, fieldErrs map[onboarding.Field]string, res onboarding.Result) {
	if wantsJSON(c) {
		if res.OK() {
			c.JSON(code, gin.H{
				"message":       res.Message,
				"redirect":      h.cfg.Routes.DashboardDefault,
				"reloadSession": true,
			})
			return
		}
		body := gin.H{"error": res.Error}
		if len(fieldErrs) > 0 {
			body["fields"] = fieldErrs
		}
		c.JSON(code, body)
		return
	}
	data := h.formData(c)
	data["Values"] = v
	data["Message"] = res.Message
	data["Error"] = res.Error
	errs := map[string]string{}
	for f, msg := range fieldErrs {
		errs[string(f)] = msg
	}
	data["FieldErrors"] = errs
	c.HTML(code, "onboarding.html", data)
}
