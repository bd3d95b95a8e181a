package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seguralta/portal/internal/models"
)

// MemoryUserRepository is an in-memory UserRepository used in development
// when MONGODB_URI is unset, and by tests. It enforces the same external id
// uniqueness as the by_externalId index.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User // by external id
	seq   atomic.Int64
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		store: make(map[string]*models.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryUserRepository) GetByExternalID(_ context.Context, externalID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.store[externalID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryUserRepository) Insert(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[u.ExternalID]; ok {
		return nil, ErrDuplicate
	}
	rec := *u
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("usr_%06d", m.seq.Add(1))
	}
	if rec.Role == "" {
		rec.Role = models.RoleUser
	}
	rec.CreatedAt = m.now()
	rec.UpdatedAt = rec.CreatedAt
	m.store[rec.ExternalID] = &rec
	cp := rec
	return &cp, nil
}

func (m *MemoryUserRepository) Patch(_ context.Context, externalID string, p models.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Apply(u)
	u.UpdatedAt = m.now()
	cp := *u
	return &cp, nil
}

func (m *MemoryUserRepository) DeleteByExternalID(_ context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[externalID]; !ok {
		return false, nil
	}
	delete(m.store, externalID)
	return true, nil
}

func (m *MemoryUserRepository) List(_ context.Context, limit int) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.store))
	for _, u := range m.store {
		cp := *u
		out = append(out, &cp)
	}
	// oldest first, like the Mongo repository's createdAt sort
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
