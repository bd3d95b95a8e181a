package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/metrics"
)

const maxWebhookBody = 1 << 20

// WebhookHandler mirrors identity provider user events into the user store.
type WebhookHandler struct {
	wh  *svix.Webhook
	svc *users.Service
	mon *metrics.Monitor
	log *slog.Logger
}

// NewWebhookHandler returns a handler that verifies svix signatures when
// secret is set. An empty secret accepts unsigned deliveries.
func NewWebhookHandler(secret string, svc *users.Service, mon *metrics.Monitor) (*WebhookHandler, error) {
	h := &WebhookHandler{svc: svc, mon: mon, log: logger.With("webhooks")}
	if secret == "" {
		h.log.Warn("webhook signing secret not set; deliveries are not verified")
		return h, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	h.wh = wh
	return h, nil
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		h.mon.ObserveWebhook("unknown", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if h.wh != nil {
		if err := h.wh.Verify(body, c.Request.Header); err != nil {
			h.mon.ObserveWebhook("unknown", "rejected")
			h.log.Warn("webhook signature rejected", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	var evt identity.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		h.mon.ObserveWebhook("unknown", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch evt.Type {
	case "user.created", "user.updated":
		_, err = h.svc.UpsertFromIdentity(c.Request.Context(), evt.Data)
	case "user.deleted":
		_, err = h.svc.DeleteFromIdentity(c.Request.Context(), evt.Data.ID)
	default:
		h.mon.ObserveWebhook("other", "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		h.mon.ObserveWebhook(evt.Type, "error")
		h.log.Error("webhook handling failed", "type", evt.Type, "id", evt.Data.ID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, users.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "processing failed"})
		return
	}
	h.mon.ObserveWebhook(evt.Type, "ok")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
