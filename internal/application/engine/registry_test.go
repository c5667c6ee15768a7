package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
)

func TestExclusionRegistry_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewExclusionRegistry(store.Exclusions(), clockwork.NewFakeClockAt(wednesday()), time.Second)

	changed, err := r.Exclude(ctx, admin, "memes", "#memes")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Exclude(ctx, admin, "memes", "#memes")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, r.IsExcluded("memes"))
	assert.Equal(t, 1, r.Len())

	changed, err = r.Include(ctx, admin, "memes")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Include(ctx, admin, "memes")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, r.IsExcluded("memes"))
}

func TestExclusionRegistry_RequiresAdmin(t *testing.T) {
	r := NewExclusionRegistry(memory.NewStore().Exclusions(), nil, 0)
	_, err := r.Exclude(context.Background(), shared.NewCapability("someone", ""), "c1", "")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.False(t, r.IsExcluded("c1"))
}

func TestExclusionRegistry_LoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	first := NewExclusionRegistry(store.Exclusions(), nil, 0)
	_, err := first.Exclude(ctx, admin, "bots", "#bots")
	require.NoError(t, err)

	second := NewExclusionRegistry(store.Exclusions(), nil, 0)
	require.NoError(t, second.Load(ctx))
	assert.True(t, second.IsExcluded("bots"))
	assert.Equal(t, "ops", second.List()[0].AddedBy)
}

func TestRoster_BanBlocksJoinUntilUnbanned(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewRoster(store.Participants(), clockwork.NewFakeClockAt(wednesday()), time.Second, discardLogger())

	_, changed, err := r.Ban(ctx, admin, "troll")
	require.NoError(t, err)
	assert.True(t, changed, "unknown users can be banned pre-emptively")

	_, changed, err = r.Ban(ctx, admin, "troll")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = r.Join(ctx, "troll", "Troll", league.TrackEnglish)
	assert.ErrorIs(t, err, shared.ErrParticipantBanned)
	assert.True(t, shared.IsUserVisible(err))

	_, changed, err = r.Unban(ctx, admin, "troll")
	require.NoError(t, err)
	assert.True(t, changed)

	p, err := r.Join(ctx, "troll", "Troll", league.TrackEnglish)
	require.NoError(t, err)
	assert.True(t, p.IsActive())

	stored, err := store.Participants().Get(ctx, "troll")
	require.NoError(t, err)
	assert.Equal(t, league.StatusActive, stored.Status)
}

func TestRoster_JoinSwitchAndLeave(t *testing.T) {
	ctx := context.Background()
	r := NewRoster(memory.NewStore().Participants(), nil, 0, discardLogger())

	_, err := r.Join(ctx, "ana", "Ana", league.TrackSpanish)
	require.NoError(t, err)

	_, err = r.Join(ctx, "ana", "Ana", league.TrackSpanish)
	assert.ErrorIs(t, err, shared.ErrAlreadyOnTrack)

	p, err := r.Join(ctx, "ana", "", league.TrackEnglish)
	require.NoError(t, err)
	assert.Equal(t, league.TrackEnglish, p.Track)
	assert.Equal(t, "Ana", p.DisplayName)

	_, err = r.Leave(ctx, "ana")
	require.NoError(t, err)
	_, err = r.Leave(ctx, "ana")
	assert.ErrorIs(t, err, shared.ErrNotParticipating)

	c := r.Counts()
	assert.Equal(t, 1, c.Total)
	assert.Equal(t, 0, c.Active)
}
