package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

type flakyStore struct {
	Store
	fail bool
}

func (s *flakyStore) List(ctx context.Context) ([]models.Agent, error) {
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	return s.Store.List(ctx)
}

func newTestRegistry(t *testing.T) (*Registry, *MemoryStore, *ids.FakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := ids.NewFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	return NewRegistry(store, WithClock(clock)), store, clock
}

func TestCreateAndLookup(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, models.Agent{
		Name:                "Billing Specialist",
		Role:                "billing",
		Keywords:            []string{"billing", "invoice"},
		Domain:              "billing",
		SpecializationScore: 0.8,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	got, err := r.ByName(ctx, "Billing Specialist")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	byDomain, err := r.ByDomain(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, byDomain, 1)

	count, err := r.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateValidation(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, models.Agent{Name: "  "})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindInvalidInput, models.KindOf(err))

	_, err = r.Create(ctx, models.Agent{Name: "Support"})
	require.NoError(t, err)

	_, err = r.Create(ctx, models.Agent{Name: "Support"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindInvalidInput, models.KindOf(err), "active names are unique")
}

func TestCreateClampsScores(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	created, err := r.Create(context.Background(), models.Agent{
		Name:                "Oddball",
		SpecializationScore: 1.8,
		CollaborationScore:  -0.4,
		PreferredTier:       "warp",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, created.SpecializationScore)
	assert.Equal(t, 0.0, created.CollaborationScore)
	assert.Equal(t, models.TierBalanced, created.PreferredTier)
}

func TestDeactivateIsSoft(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, models.Agent{Name: "Legacy", Keywords: []string{"legacy"}})
	require.NoError(t, err)
	require.NoError(t, r.Deactivate(ctx, created.ID))

	// Routing lookups no longer see it.
	_, err = r.ByName(ctx, "Legacy")
	assert.Equal(t, models.ErrKindNotFound, models.KindOf(err))
	ranked, err := r.ByKeywords(ctx, []string{"legacy"})
	require.NoError(t, err)
	assert.Empty(t, ranked)

	// Historical attribution still resolves by id.
	got, err := r.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Its name is free for reuse.
	_, err = r.Create(ctx, models.Agent{Name: "Legacy"})
	assert.NoError(t, err)
}

func TestByKeywordsRanking(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, models.Agent{
		Name: "Generalist", Keywords: []string{"billing"}, SpecializationScore: 0.2,
	})
	require.NoError(t, err)
	_, err = r.Create(ctx, models.Agent{
		Name: "Billing Pro", Keywords: []string{"billing", "invoice"}, SpecializationScore: 0.9,
	})
	require.NoError(t, err)
	_, err = r.Create(ctx, models.Agent{
		Name: "Security", Keywords: []string{"auth"}, SpecializationScore: 1.0,
	})
	require.NoError(t, err)

	ranked, err := r.ByKeywords(ctx, []string{"Billing", "INVOICE"})
	require.NoError(t, err)

	require.Len(t, ranked, 2, "no-match agents are omitted")
	assert.Equal(t, "Billing Pro", ranked[0].Agent.Name)
	assert.InDelta(t, 2+0.5*0.9, ranked[0].Rank, 1e-9)
	assert.Equal(t, "Generalist", ranked[1].Agent.Name)
	assert.InDelta(t, 1+0.5*0.2, ranked[1].Rank, 1e-9)
}

func TestCacheTTL(t *testing.T) {
	r, store, clock := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, models.Agent{Name: "Original"})
	require.NoError(t, err)

	// Mutate the store behind the registry's back: invisible within the TTL.
	behind := *created
	behind.Name = "Renamed"
	require.NoError(t, store.Upsert(ctx, behind))

	got, err := r.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Name)

	clock.Advance(defaultCacheTTL + time.Second)
	got, err = r.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name, "lazy refresh after the TTL")
}

func TestStaleCacheServedOnRefreshFailure(t *testing.T) {
	store := NewMemoryStore()
	flaky := &flakyStore{Store: store}
	clock := ids.NewFakeClock(time.Now())
	r := NewRegistry(flaky, WithClock(clock))
	ctx := context.Background()

	created, err := r.Create(ctx, models.Agent{Name: "Survivor"})
	require.NoError(t, err)

	flaky.fail = true
	clock.Advance(defaultCacheTTL + time.Second)

	got, err := r.ByID(ctx, created.ID)
	require.NoError(t, err, "stale cache keeps serving when the store is down")
	assert.Equal(t, "Survivor", got.Name)
}
