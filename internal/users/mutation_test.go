package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seguralta/portal/internal/models"
	"github.com/seguralta/portal/internal/tokens"
	"github.com/seguralta/portal/pkg/middleware"
)

func TestMutationClient_DerivesCallerFromToken(t *testing.T) {
	repo := NewMemoryUserRepository()
	svc := NewService(repo)
	iss, err := tokens.NewIssuer("mutation-secret-xxxxxxxxxxxxxxxxxx", time.Minute)
	require.NoError(t, err)
	client := NewMutationClient(svc, iss)

	_, _ = repo.Insert(context.Background(), &models.User{ExternalID: "user_a"})
	_, _ = repo.Insert(context.Background(), &models.User{ExternalID: "user_b"})

	tok, err := iss.Issue("user_a")
	require.NoError(t, err)

	// the ambient context names a different user; the token wins
	ctx := middleware.WithClaims(context.Background(), map[string]interface{}{"sub": "user_b"})
	_, err = client.CompleteOnboarding(ctx, tok, OnboardingFields{Name: "Ana", Phone: "11987654321", CPF: "52998224725"})
	require.NoError(t, err)

	a, _ := repo.GetByExternalID(context.Background(), "user_a")
	b, _ := repo.GetByExternalID(context.Background(), "user_b")
	require.True(t, a.OnboardingCompleted)
	require.False(t, b.OnboardingCompleted)
}

func TestMutationClient_RejectsBadTokens(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	iss, _ := tokens.NewIssuer("mutation-secret-xxxxxxxxxxxxxxxxxx", time.Minute)
	client := NewMutationClient(svc, iss)

	_, err := client.CompleteOnboarding(context.Background(), "", OnboardingFields{})
	require.True(t, errors.Is(err, ErrNotAuthenticated))

	_, err = client.CompleteOnboarding(context.Background(), "forged.token.value", OnboardingFields{})
	require.True(t, errors.Is(err, ErrNotAuthenticated))
}
