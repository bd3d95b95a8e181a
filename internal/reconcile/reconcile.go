// Package reconcile compares the onboarding flag held by the identity
// provider with the one in the user store and optionally repairs drift left
// behind by a partially failed onboarding.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/models"
	"github.com/seguralta/portal/pkg/logger"
)

// Drift kinds.
const (
	// KindClaimAhead: provider says complete, store does not (store write failed).
	KindClaimAhead = "claim_ahead"
	// KindStoreAhead: store says complete, provider does not.
	KindStoreAhead = "store_ahead"
	// KindMissingIdentity: the store holds a user the provider no longer knows.
	KindMissingIdentity = "missing_identity"
	// KindMissingRecord: a requested user has no stored record.
	KindMissingRecord = "missing_record"
)

// Store is the part of users.Service the reconciler needs.
type Store interface {
	List(ctx context.Context, limit int) ([]*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	SyncFromMetadata(ctx context.Context, externalID string, md identity.PublicMetadata) (*models.User, error)
}

// Options select the users to check. UserIDs, when set, replaces the store
// walk and Limit is ignored.
type Options struct {
	Fix     bool
	Limit   int
	UserIDs []string
}

type Drift struct {
	ExternalID     string `json:"externalId"`
	Kind           string `json:"kind"`
	StoreCompleted bool   `json:"storeCompleted"`
	ClaimCompleted bool   `json:"claimCompleted"`
	Fixed          bool   `json:"fixed"`
	Error          string `json:"error,omitempty"`
}

type Report struct {
	Checked int     `json:"checked"`
	InSync  int     `json:"inSync"`
	Fixed   int     `json:"fixed"`
	Errors  int     `json:"errors"`
	Drifts  []Drift `json:"drifts"`
}

type Reconciler struct {
	store Store
	idp   identity.Provider
	log   *slog.Logger
}

func New(store Store, idp identity.Provider) *Reconciler {
	return &Reconciler{store: store, idp: idp, log: logger.With("reconcile")}
}

// Run walks the store. Per-user failures are recorded in the report; only a
// failure to load users aborts the run.
func (r *Reconciler) Run(ctx context.Context, opts Options) (Report, error) {
	var rep Report
	list, err := r.load(ctx, opts, &rep)
	if err != nil {
		return rep, err
	}
	for _, u := range list {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++
		md, err := r.idp.GetPublicMetadata(ctx, u.ExternalID)
		if errors.Is(err, identity.ErrUserNotFound) {
			rep.Drifts = append(rep.Drifts, Drift{ExternalID: u.ExternalID, Kind: KindMissingIdentity, StoreCompleted: u.OnboardingCompleted})
			continue
		}
		if err != nil {
			rep.Errors++
			rep.Drifts = append(rep.Drifts, Drift{ExternalID: u.ExternalID, StoreCompleted: u.OnboardingCompleted, Error: err.Error()})
			r.log.Warn("metadata read failed", "externalId", u.ExternalID, "error", err)
			continue
		}
		if md.OnboardingComplete == u.OnboardingCompleted {
			rep.InSync++
			continue
		}
		d := Drift{ExternalID: u.ExternalID, StoreCompleted: u.OnboardingCompleted, ClaimCompleted: md.OnboardingComplete}
		if md.OnboardingComplete {
			d.Kind = KindClaimAhead
		} else {
			d.Kind = KindStoreAhead
		}
		if opts.Fix {
			if err := r.fix(ctx, u, md, d.Kind); err != nil {
				rep.Errors++
				d.Error = err.Error()
				r.log.Error("repair failed", "externalId", u.ExternalID, "kind", d.Kind, "error", err)
			} else {
				rep.Fixed++
				d.Fixed = true
				r.log.Info("repaired", "externalId", u.ExternalID, "kind", d.Kind)
			}
		}
		rep.Drifts = append(rep.Drifts, d)
	}
	return rep, nil
}

func (r *Reconciler) load(ctx context.Context, opts Options, rep *Report) ([]*models.User, error) {
	if len(opts.UserIDs) == 0 {
		list, err := r.store.List(ctx, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		return list, nil
	}
	list := make([]*models.User, 0, len(opts.UserIDs))
	for _, id := range opts.UserIDs {
		u, err := r.store.GetByExternalID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", id, err)
		}
		if u == nil {
			rep.Checked++
			rep.Drifts = append(rep.Drifts, Drift{ExternalID: id, Kind: KindMissingRecord})
			continue
		}
		list = append(list, u)
	}
	return list, nil
}

func (r *Reconciler) fix(ctx context.Context, u *models.User, md identity.PublicMetadata, kind string) error {
	switch kind {
	case KindClaimAhead:
		_, err := r.store.SyncFromMetadata(ctx, u.ExternalID, md)
		return err
	case KindStoreAhead:
		out := identity.PublicMetadata{
			OnboardingComplete: true,
			Name:               u.Name,
			Phone:              u.Phone,
			CPF:                u.CPF,
		}
		if u.IsAdmin() {
			out.Role = string(models.RoleAdmin)
		}
		return r.idp.UpdatePublicMetadata(ctx, u.ExternalID, out)
	}
	return nil
}
