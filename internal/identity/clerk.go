package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/seguralta/portal/pkg/logger"
)

// ClerkProvider reads and writes public metadata through the Clerk Backend API.
type ClerkProvider struct {
	users *user.Client
	log   *slog.Logger
}

// NewClerkProvider creates a client for apiURL (for example
// https://api.clerk.com; the SDK appends the API version). An empty apiURL
// uses the SDK default.
func NewClerkProvider(apiURL, secretKey string, timeout time.Duration) (*ClerkProvider, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY is not set")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(secretKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if apiURL = strings.TrimRight(apiURL, "/"); apiURL != "" {
		cfg.URL = clerk.String(apiURL)
	}
	return &ClerkProvider{
		users: user.NewClient(cfg),
		log:   logger.With("clerk_client"),
	}, nil
}

// UpdatePublicMetadata replaces public_metadata.
func (p *ClerkProvider) UpdatePublicMetadata(ctx context.Context, externalID string, md PublicMetadata) error {
	raw, err := json.Marshal(md.Map())
	if err != nil {
		return err
	}
	msg := json.RawMessage(raw)
	_, err = p.users.Update(ctx, externalID, &user.UpdateParams{PublicMetadata: &msg})
	return p.wrap("update", externalID, err)
}

// GetPublicMetadata reads public_metadata.
func (p *ClerkProvider) GetPublicMetadata(ctx context.Context, externalID string) (PublicMetadata, error) {
	u, err := p.users.Get(ctx, externalID)
	if err != nil {
		return PublicMetadata{}, p.wrap("get", externalID, err)
	}
	m := map[string]interface{}{}
	if len(u.PublicMetadata) > 0 {
		if err := json.Unmarshal(u.PublicMetadata, &m); err != nil {
			return PublicMetadata{}, fmt.Errorf("decode clerk metadata: %w", err)
		}
	}
	return MetadataFromMap(m), nil
}

func (p *ClerkProvider) wrap(op, externalID string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *clerk.APIErrorResponse
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return ErrUserNotFound
		}
		p.log.Warn("clerk request failed", "op", op, "status", apiErr.HTTPStatusCode, "traceId", apiErr.TraceID)
		return fmt.Errorf("clerk %s users/%s: status %d: %w", op, externalID, apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("clerk %s users/%s: %w", op, externalID, err)
}
