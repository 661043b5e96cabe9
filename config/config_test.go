package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestSystemConfigOverridesEnv(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t.Setenv("CONNEX_TEST_KEY", "from-env")

	v, err := s.Get(ctx, "CONNEX_TEST_KEY", "default")
	require.NoError(t, err)
	require.Equal(t, "from-env", v)

	require.NoError(t, s.Set(ctx, "CONNEX_TEST_KEY", "from-db"))
	v, err = s.Get(ctx, "CONNEX_TEST_KEY", "default")
	require.NoError(t, err)
	require.Equal(t, "from-db", v)
}

func TestSearchNotableFuzzy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetNotable(ctx, "owner_favorite_color", "blue"))
	require.NoError(t, s.SetNotable(ctx, "unrelated_fact", "irrelevant"))

	results, err := s.SearchNotable(ctx, "favorite_color", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "owner_favorite_color", results[0].Key)
}

func TestRatcliffObershelpIdentical(t *testing.T) {
	require.Equal(t, 1.0, ratcliffObershelp("hello", "hello"))
}

func TestSkillRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IncrementSkillRequest(ctx, "translate text"))
	require.NoError(t, s.IncrementSkillRequest(ctx, "translate text"))

	pending, err := s.SkillRequestsByStatus(ctx, apitypes.SkillRequestPending)
	require.NoError(t, err)
	require.Contains(t, pending, "translate text")

	require.NoError(t, s.SetSkillRequestStatus(ctx, "translate text", apitypes.SkillRequestCreated))
	pending, err = s.SkillRequestsByStatus(ctx, apitypes.SkillRequestPending)
	require.NoError(t, err)
	require.NotContains(t, pending, "translate text")
}
