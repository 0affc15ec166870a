// ABOUTME: Tests for the identity service
// ABOUTME: Covers role resolution, profile upserts, registration and roster filtering

package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/store"
)

func newService(st store.Store) *Service {
	return New(st, "instructor", "owner", nil)
}

func TestRoleOf(t *testing.T) {
	s := newService(store.NewMockStore())

	assert.Equal(t, RoleOwner, s.RoleOf("owner"))
	assert.Equal(t, RoleInstructor, s.RoleOf("instructor"))
	assert.Equal(t, RoleLearner, s.RoleOf("anyone-else"))

	assert.True(t, RoleOwner.Privileged())
	assert.True(t, RoleInstructor.Privileged())
	assert.False(t, RoleLearner.Privileged())
}

func TestUpsertProfile_CreatesWithDefaults(t *testing.T) {
	s := newService(store.NewMockStore())

	p, err := s.UpsertProfile(context.Background(), Profile{ID: "u1", DisplayName: "Alice", Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, i18n.DefaultLanguage, p.Language)
	assert.False(t, p.Registered())
	assert.False(t, p.CreatedAt.IsZero())
}

func TestUpsertProfile_RefreshKeepsPhone(t *testing.T) {
	s := newService(store.NewMockStore())
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, Profile{ID: "u1", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = s.Register(ctx, "u1", "Alice", "+711")
	require.NoError(t, err)

	p, err := s.UpsertProfile(ctx, Profile{ID: "u1", DisplayName: "Alice Updated", Username: "al"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Updated", p.DisplayName)
	assert.Equal(t, "+711", p.Phone)
	assert.True(t, p.Registered())
	assert.NotNil(t, p.RegisteredAt)
}

func TestUpsertProfile_SurvivesStoreFailure(t *testing.T) {
	ms := store.NewMockStore()
	ms.FailWrites = errors.New("disk full")
	s := newService(ms)
	ctx := context.Background()

	p, err := s.UpsertProfile(ctx, Profile{ID: "u1", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)

	// The cache serves later reads despite the failed write.
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
}

func TestSetLanguage(t *testing.T) {
	s := newService(store.NewMockStore())
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, Profile{ID: "u1", DisplayName: "Alice"})
	require.NoError(t, err)
	require.NoError(t, s.SetLanguage(ctx, "u1", "en"))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "en", p.Language)
}

func TestListRegistered_ExcludesStaff(t *testing.T) {
	s := newService(store.NewMockStore())
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "instructor", "owner"} {
		_, err := s.UpsertProfile(ctx, Profile{ID: id, DisplayName: id})
		require.NoError(t, err)
		_, err = s.Register(ctx, id, id, "+7"+id)
		require.NoError(t, err)
	}
	_, err := s.UpsertProfile(ctx, Profile{ID: "u3", DisplayName: "unregistered"})
	require.NoError(t, err)

	roster, err := s.ListRegistered(ctx)
	require.NoError(t, err)
	ids := make([]string, len(roster))
	for i, p := range roster {
		ids[i] = p.ID
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestGet_UnknownParticipant(t *testing.T) {
	s := newService(store.NewMockStore())

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
