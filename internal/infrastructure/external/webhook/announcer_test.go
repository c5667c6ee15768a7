package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/shared"
)

var roundEnd = time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)

func TestFormat_Winners(t *testing.T) {
	ev := shared.NewWinnersAnnouncedEvent("r1", "spanish", roundEnd, []shared.Winner{
		{Position: 1, ParticipantID: "111", Score: 42},
		{Position: 2, ParticipantID: "222", Score: 30},
		{Position: 4, ParticipantID: "444", Score: 10},
	}, roundEnd)

	assert.Equal(t,
		"🏆 **Spanish league** results for the round ending 2024-01-21\n"+
			"🥇 <@111> with 42 points\n"+
			"🥈 <@222> with 30 points\n"+
			"#4 <@444> with 10 points",
		Format(ev))
}

func TestFormat_EmptyAndUnsupported(t *testing.T) {
	empty := shared.NewWinnersAnnouncedEvent("r1", "english", roundEnd, nil, roundEnd)
	assert.Contains(t, Format(empty), "No counted messages")

	resumed := shared.NewRolloverStateEvent(shared.EventRolloverResumed, "r1", "", roundEnd)
	assert.Empty(t, Format(resumed))
}

func TestAnnouncer_PostsContent(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAnnouncer(DefaultConfig(srv.URL))
	ev := shared.NewRolloverStateEvent(shared.EventRolloverHalted, "r1", "two open rounds", roundEnd)

	require.NoError(t, a.Handle(ev))
	assert.Equal(t, "⚠️ Round rollover halted: two open rounds", got.Content)
}

func TestAnnouncer_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewAnnouncer(DefaultConfig(srv.URL))
	err := a.Handle(shared.NewRoundRolledOverEvent("r1", "r2", roundEnd, roundEnd.Add(14*24*time.Hour), 2, roundEnd))

	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
