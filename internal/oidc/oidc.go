package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/seguralta/portal/pkg/middleware"
)

// Verifier validates session tokens issued by a generic OIDC provider
// (Clerk exposes a standard issuer with JWKS discovery).
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer and builds a verifier. An empty clientID
// skips the audience check, since session tokens carry the frontend origin
// in "azp" instead of an audience.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	cfg := &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
	return &Verifier{provider: provider, verifier: provider.Verifier(cfg)}, nil
}

// NewRemoteVerifier verifies against the key set served at jwksURL without
// fetching the issuer's discovery document. Keys are fetched lazily and
// cached for the lifetime of ctx.
func NewRemoteVerifier(ctx context.Context, issuer, jwksURL, clientID string) *Verifier {
	return NewStaticVerifier(issuer, oidc.NewRemoteKeySet(ctx, jwksURL), clientID)
}

// NewStaticVerifier builds a verifier from an already known key set.
func NewStaticVerifier(issuer string, keySet oidc.KeySet, clientID string) *Verifier {
	cfg := &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
	return &Verifier{verifier: oidc.NewVerifier(issuer, keySet, cfg)}
}

// Verify verifies the provided raw token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
