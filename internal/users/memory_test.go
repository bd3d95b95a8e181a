package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seguralta/portal/internal/models"
)

func TestMemoryUserRepository_CRUD(t *testing.T) {
	r := NewMemoryUserRepository()
	ctx := context.Background()

	u, err := r.Insert(ctx, &models.User{ExternalID: "user_1", Name: "Ana"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, models.RoleUser, u.Role)
	require.False(t, u.CreatedAt.IsZero())

	_, err = r.Insert(ctx, &models.User{ExternalID: "user_1"})
	require.ErrorIs(t, err, ErrDuplicate)

	got, err := r.GetByExternalID(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, "Ana", got.Name)

	// returned records are copies
	got.Name = "mutated"
	again, _ := r.GetByExternalID(ctx, "user_1")
	require.Equal(t, "Ana", again.Name)

	phone := "11987654321"
	p, err := r.Patch(ctx, "user_1", models.UserPatch{Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, "Ana", p.Name)
	require.Equal(t, phone, p.Phone)

	_, err = r.Patch(ctx, "ghost", models.UserPatch{Phone: &phone})
	require.ErrorIs(t, err, ErrNotFound)

	missing, err := r.GetByExternalID(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)

	ok, err := r.DeleteByExternalID(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = r.DeleteByExternalID(ctx, "user_1")
	require.False(t, ok)
}

func TestMemoryUserRepository_ListOrdersByCreatedAt(t *testing.T) {
	r := NewMemoryUserRepository()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	for _, u := range []*models.User{
		{ID: "usr_z", ExternalID: "first"},
		{ID: "usr_a", ExternalID: "second"},
		{ID: "usr_m", ExternalID: "third"},
	} {
		_, err := r.Insert(ctx, u)
		require.NoError(t, err)
	}
	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "first", all[0].ExternalID)
	require.Equal(t, "second", all[1].ExternalID)
	require.Equal(t, "third", all[2].ExternalID)

	one, _ := r.List(ctx, 1)
	require.Len(t, one, 1)
	require.Equal(t, "usr_z", one[0].ID)
}

func TestMemoryUserRepository_ListLimit(t *testing.T) {
	r := NewMemoryUserRepository()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Insert(ctx, &models.User{ExternalID: id})
		require.NoError(t, err)
	}
	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	two, _ := r.List(ctx, 2)
	require.Len(t, two, 2)
	require.Equal(t, "a", two[0].ExternalID)
}
