package identity

import (
	"context"
	"fmt"

	"github.com/seguralta/portal/internal/config"
	portaloidc "github.com/seguralta/portal/internal/oidc"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

// Stack is the configured provider admin client together with the verifier
// for the session tokens it issues.
type Stack struct {
	Provider Provider
	Verifier middleware.Verifier
}

// NewStack builds the provider selected by cfg.Provider:
//   - firebase: Admin SDK for metadata, Firebase ID tokens as sessions
//   - clerk:    Backend API for metadata, Clerk session JWTs via OIDC discovery
//   - oidc:     any OIDC issuer for sessions, metadata through a Clerk
//     compatible Backend API at ClerkAPIURL
//
// With JWKSURL set, session keys come from that URL and discovery is skipped.
//
// With AllowInsecureToken the verifier decodes tokens without checking
// signatures; config validation refuses that in production.
func NewStack(ctx context.Context, cfg config.IdentityConfig) (*Stack, error) {
	var st Stack
	switch cfg.Provider {
	case "firebase":
		fp, err := NewFirebaseProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials)
		if err != nil {
			return nil, err
		}
		st.Provider, st.Verifier = fp, fp
	case "clerk", "oidc":
		cp, err := NewClerkProvider(cfg.ClerkAPIURL, cfg.ClerkSecretKey, 0)
		if err != nil {
			return nil, err
		}
		st.Provider = cp
		if !cfg.AllowInsecureToken {
			if cfg.Issuer == "" {
				return nil, fmt.Errorf("IDENTITY_ISSUER is required for provider %q", cfg.Provider)
			}
			if cfg.JWKSURL != "" {
				st.Verifier = portaloidc.NewRemoteVerifier(ctx, cfg.Issuer, cfg.JWKSURL, cfg.ClientID)
			} else {
				ver, err := portaloidc.NewVerifier(ctx, cfg.Issuer, cfg.ClientID)
				if err != nil {
					return nil, err
				}
				st.Verifier = ver
			}
		}
	default:
		return nil, fmt.Errorf("unsupported identity provider %q", cfg.Provider)
	}
	if cfg.AllowInsecureToken {
		logger.Warn("ALLOW_INSECURE_TOKEN is set; session token signatures are NOT verified")
		st.Verifier = portaloidc.NewInsecureVerifier()
	}
	return &st, nil
}
