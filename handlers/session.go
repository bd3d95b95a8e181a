package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/sessions"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

// SessionHandler turns identity provider tokens into the session cookie and
// revokes them on sign-out.
type SessionHandler struct {
	cfg      *config.Config
	verifier middleware.Verifier
	revoker  *sessions.Revoker
}

func NewSessionHandler(cfg *config.Config, ver middleware.Verifier, rev *sessions.Revoker) *SessionHandler {
	return &SessionHandler{cfg: cfg, verifier: ver, revoker: rev}
}

// Register routes under /auth
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/session", h.Create)
	rg.POST("/logout", h.Logout)
}

type sessionRequest struct {
	Token string `json:"token" form:"token" binding:"required"`
}

// Create verifies a freshly issued token and stores it in the session cookie.
// Clients call it after sign-in and again after onboarding, so the cookie
// carries the current metadata claims.
func (h *SessionHandler) Create(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if revoked, err := h.revoker.IsRevoked(ctx, req.Token); err != nil || revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
		return
	}
	claims, err := middleware.VerifyClaims(ctx, h.verifier, req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
		return
	}
	sub := middleware.SubjectFromClaims(claims)
	if sub == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
		return
	}

	maxAge := 0
	if exp, err := expFromClaims(claims); err == nil {
		maxAge = int(time.Until(exp).Seconds())
		if maxAge <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, req.Token, maxAge, "/", "", h.cfg.Server.IsProduction(), true)
	logger.Debugf("session established for %s", sub)
	c.JSON(http.StatusOK, gin.H{"sub": sub, "onboardingComplete": middleware.OnboardingComplete(claims)})
}

// Logout revokes the current token until its expiry and clears the cookie.
// Tokens that no longer verify are not revoked; the gate rejects them anyway.
func (h *SessionHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if token := middleware.SessionToken(c.Request); token != "" {
		if claims, err := middleware.VerifyClaims(ctx, h.verifier, token); err == nil {
			ttl := h.cfg.JWT.MutationTokenTTL
			if exp, err := expFromClaims(claims); err == nil {
				ttl = time.Until(exp)
			}
			if err := h.revoker.Revoke(ctx, token, ttl); err != nil {
				logger.Errorf("failed to revoke session token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke session"})
				return
			}
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cfg.Server.IsProduction(), true)
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func expFromClaims(claims map[string]interface{}) (time.Time, error) {
	v, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	// exp may be float64 (json number), int64 (firebase) or json.Number
	switch vv := v.(type) {
	case float64:
		return time.Unix(int64(vv), 0), nil
	case int64:
		return time.Unix(vv, 0), nil
	case json.Number:
		i64, err := vv.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(i64, 0), nil
	}
	return time.Time{}, fmt.Errorf("unsupported exp type %T", v)
}
