package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
)

// UsersAPI exposes the user store. Queries take the caller's session;
// completing onboarding takes a mutation token.
type UsersAPI struct {
	svc *users.Service
}

func NewUsersAPI(svc *users.Service) *UsersAPI {
	return &UsersAPI{svc: svc}
}

func (h *UsersAPI) RegisterQueries(rg *gin.RouterGroup) {
	rg.GET("/current", h.Current)
	rg.GET("/needs-onboarding", h.NeedsOnboarding)
}

func (h *UsersAPI) RegisterMutations(rg *gin.RouterGroup) {
	rg.POST("/complete-onboarding", h.CompleteOnboarding)
}

func (h *UsersAPI) Current(c *gin.Context) {
	u, err := h.svc.Current(c.Request.Context())
	if err != nil {
		logger.Errorf("current user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *UsersAPI) NeedsOnboarding(c *gin.Context) {
	need, err := h.svc.NeedsOnboarding(c.Request.Context())
	if errors.Is(err, users.ErrNotAuthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf("needs onboarding: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"needsOnboarding": need})
}

func (h *UsersAPI) CompleteOnboarding(c *gin.Context) {
	var f users.OnboardingFields
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, err := h.svc.CompleteOnboarding(c.Request.Context(), f)
	switch {
	case errors.Is(err, users.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		logger.Errorf("complete onboarding: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}
