package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/models"
)

const userCreated = `{"type":"user.created","data":{"id":"user_9","first_name":"Joana","last_name":"Prado","public_metadata":{}}}`

func TestWebhook_UpsertAndDeleteUnsigned(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	w := env.do(http.MethodPost, "/webhooks/identity", "", userCreated, jsonHdr)
	require.Equal(t, http.StatusOK, w.Code)
	u, err := env.svc.GetByExternalID(ctx, "user_9")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Joana Prado", u.Name)
	assert.Equal(t, models.RoleUser, u.Role)

	updated := `{"type":"user.updated","data":{"id":"user_9","first_name":"Joana","public_metadata":{"onboardingComplete":true,"name":"Joana P.","phone":"11987654321"}}}`
	w = env.do(http.MethodPost, "/webhooks/identity", "", updated, jsonHdr)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = env.svc.GetByExternalID(ctx, "user_9")
	require.NoError(t, err)
	assert.Equal(t, "Joana P.", u.Name)
	assert.Equal(t, "11987654321", u.Phone)
	assert.True(t, u.OnboardingCompleted)

	w = env.do(http.MethodPost, "/webhooks/identity", "", `{"type":"user.deleted","data":{"id":"user_9"}}`, jsonHdr)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = env.svc.GetByExternalID(ctx, "user_9")
	require.NoError(t, err)
	assert.Nil(t, u)

	// deleting again is a logged no-op
	w = env.do(http.MethodPost, "/webhooks/identity", "", `{"type":"user.deleted","data":{"id":"user_9"}}`, jsonHdr)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.monitor.WebhookEvents.WithLabelValues("user.created", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.monitor.WebhookEvents.WithLabelValues("user.deleted", "ok")))
}

func TestWebhook_IgnoresOtherEventsAndRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/webhooks/identity", "", `{"type":"session.created","data":{"id":"sess_1"}}`, jsonHdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")

	w = env.do(http.MethodPost, "/webhooks/identity", "", `{"type":`, jsonHdr)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_VerifiesSignature(t *testing.T) {
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("portal-webhook-test-secret-32byte"))
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.Webhook.SigningSecret = secret
	})
	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)

	now := time.Now()
	sig, err := wh.Sign("msg_1", now, []byte(userCreated))
	require.NoError(t, err)
	hdr := map[string]string{
		"Content-Type":   "application/json",
		"svix-id":        "msg_1",
		"svix-timestamp": strconv.FormatInt(now.Unix(), 10),
		"svix-signature": sig,
	}

	w := env.do(http.MethodPost, "/webhooks/identity", "", userCreated, hdr)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	hdr["svix-signature"] = "v1,bm90IGEgc2lnbmF0dXJl"
	w = env.do(http.MethodPost, "/webhooks/identity", "", userCreated, hdr)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/webhooks/identity", "", userCreated, jsonHdr)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewWebhookHandler_RejectsMalformedSecret(t *testing.T) {
	_, err := NewWebhookHandler("whsec_%%%not-base64", nil, nil)
	require.Error(t, err)
}
