package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/models"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

// ErrNotAuthenticated is returned when the context carries no identity.
var ErrNotAuthenticated = errors.New("not authenticated")

// OnboardingFields are the values collected by the onboarding form.
type OnboardingFields struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	CPF   string `json:"cpf"`
}

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
	log  *slog.Logger
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, log: logger.With("users")}
}

// UpsertFromIdentity mirrors a provider user into the store. Absent records
// are inserted; existing ones are patched. Phone and CPF are only written
// when the payload carries them, so omitted values keep what is stored.
func (s *Service) UpsertFromIdentity(ctx context.Context, p identity.UserPayload) (*models.User, error) {
	prof := p.Profile()
	if prof.ExternalID == "" {
		return nil, errors.New("user payload without id")
	}
	existing, err := s.repo.GetByExternalID(ctx, prof.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", prof.ExternalID, err)
	}
	if existing == nil {
		u, err := s.repo.Insert(ctx, &models.User{
			ExternalID:          prof.ExternalID,
			Name:                prof.Name,
			Phone:               prof.Phone,
			CPF:                 prof.CPF,
			Role:                prof.Role,
			OnboardingCompleted: prof.OnboardingCompleted,
		})
		if err == nil {
			s.log.Info("user created", "externalId", prof.ExternalID)
			return u, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("insert %s: %w", prof.ExternalID, err)
		}
		// lost an insert race against a concurrent delivery; patch instead
		s.log.Debug("insert raced, patching", "externalId", prof.ExternalID)
	}

	patch := models.UserPatch{
		Name:                &prof.Name,
		Role:                &prof.Role,
		OnboardingCompleted: &prof.OnboardingCompleted,
	}
	if prof.Phone != "" {
		patch.Phone = &prof.Phone
	}
	if prof.CPF != "" {
		patch.CPF = &prof.CPF
	}
	u, err := s.repo.Patch(ctx, prof.ExternalID, patch)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", prof.ExternalID, err)
	}
	return u, nil
}

// DeleteFromIdentity removes the record for externalID. Deleting an unknown
// user logs a warning and succeeds.
func (s *Service) DeleteFromIdentity(ctx context.Context, externalID string) (bool, error) {
	deleted, err := s.repo.DeleteByExternalID(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", externalID, err)
	}
	if !deleted {
		s.log.Warn("can't delete user, none found for externalId", "externalId", externalID)
	}
	return deleted, nil
}

// CompleteOnboarding patches the caller's record with the onboarding fields
// and marks it complete. The caller is taken from ctx only. The role is reset
// to user on every completion. It never creates a record.
func (s *Service) CompleteOnboarding(ctx context.Context, f OnboardingFields) (string, error) {
	externalID := middleware.SubjectFromContext(ctx)
	if externalID == "" {
		return "", ErrNotAuthenticated
	}
	existing, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", externalID, err)
	}
	if existing == nil {
		return "", ErrNotFound
	}
	role := models.RoleUser
	done := true
	u, err := s.repo.Patch(ctx, externalID, models.UserPatch{
		Name:                &f.Name,
		Phone:               &f.Phone,
		CPF:                 &f.CPF,
		Role:                &role,
		OnboardingCompleted: &done,
	})
	if err != nil {
		return "", err
	}
	if existing.IsAdmin() {
		s.log.Warn("onboarding reset admin role to user", "externalId", externalID)
	}
	return u.ID, nil
}

// Current returns the caller's record, or nil when unauthenticated or absent.
func (s *Service) Current(ctx context.Context) (*models.User, error) {
	externalID := middleware.SubjectFromContext(ctx)
	if externalID == "" {
		return nil, nil
	}
	return s.repo.GetByExternalID(ctx, externalID)
}

// NeedsOnboarding reports whether the caller's stored record is missing or
// not yet complete.
func (s *Service) NeedsOnboarding(ctx context.Context) (bool, error) {
	externalID := middleware.SubjectFromContext(ctx)
	if externalID == "" {
		return false, ErrNotAuthenticated
	}
	u, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return false, err
	}
	return u == nil || !u.OnboardingCompleted, nil
}

// GetByExternalID returns the record for externalID, or nil.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// List returns up to limit records (all when limit <= 0).
func (s *Service) List(ctx context.Context, limit int) ([]*models.User, error) {
	return s.repo.List(ctx, limit)
}

// SyncFromMetadata replays provider metadata onto the stored record. Empty
// metadata fields leave the stored values untouched. The role is not changed.
func (s *Service) SyncFromMetadata(ctx context.Context, externalID string, md identity.PublicMetadata) (*models.User, error) {
	patch := models.UserPatch{OnboardingCompleted: &md.OnboardingComplete}
	if md.Name != "" {
		patch.Name = &md.Name
	}
	if md.Phone != "" {
		patch.Phone = &md.Phone
	}
	if md.CPF != "" {
		patch.CPF = &md.CPF
	}
	return s.repo.Patch(ctx, externalID, patch)
}
