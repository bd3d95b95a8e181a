package users

import (
	"context"
	"fmt"

	"github.com/seguralta/portal/pkg/middleware"
)

// MutationClient runs store mutations on behalf of a bearer token. The
// caller is always re-derived from the verified token, never passed in.
type MutationClient struct {
	svc      *Service
	verifier middleware.Verifier
}

func NewMutationClient(svc *Service, ver middleware.Verifier) *MutationClient {
	return &MutationClient{svc: svc, verifier: ver}
}

// CompleteOnboarding verifies token and completes onboarding for its subject.
func (m *MutationClient) CompleteOnboarding(ctx context.Context, token string, f OnboardingFields) (string, error) {
	if token == "" {
		return "", ErrNotAuthenticated
	}
	claims, err := middleware.VerifyClaims(ctx, m.verifier, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return m.svc.CompleteOnboarding(middleware.WithClaims(ctx, claims), f)
}
