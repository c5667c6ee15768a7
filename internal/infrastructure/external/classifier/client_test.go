package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL + "/")
	cfg.RequestsPerSecond = 0
	return NewClient(cfg), &calls
}

func TestDetect_ParsesVerdict(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/detect", r.URL.Path)

		var req detectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lang := "en"
		if req.Text == "hola a todos" {
			lang = "es"
		}
		_ = json.NewEncoder(w).Encode(detectResponse{Language: lang, Confidence: 0.99})
	})

	lang, err := client.Detect(context.Background(), "hola a todos")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageSpanish, lang)

	lang, err = client.Detect(context.Background(), "hello everyone")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageEnglish, lang)
}

func TestDetect_OtherLanguageIsNone(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(detectResponse{Language: "fr", Confidence: 0.99})
	})

	lang, err := client.Detect(context.Background(), "bonjour tout le monde")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageNone, lang)
}

func TestDetect_LowConfidenceIsNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(detectResponse{Language: "es", Confidence: 0.4})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.MinConfidence = 0.8
	lang, err := NewClient(cfg).Detect(context.Background(), "ok si")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageNone, lang)
}

func TestDetect_RetriesServerErrors(t *testing.T) {
	var n int32
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(detectResponse{Language: "en"})
	})

	lang, err := client.Detect(context.Background(), "hello there friends")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageEnglish, lang)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestDetect_ClientErrorIsNotRetried(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Detect(context.Background(), "hello there friends")
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.True(t, client.breaker.IsClosed())
}

func TestDetect_BreakerOpensOnRepeatedFailures(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Detect(context.Background(), "hello there friends")
		require.Error(t, err)
	}
	before := atomic.LoadInt32(calls)

	_, err := client.Detect(context.Background(), "hello there friends")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, shared.ErrClassifierUnavailable)
	assert.Equal(t, before, atomic.LoadInt32(calls))
}

func TestHinted(t *testing.T) {
	ctx := context.Background()

	lang, err := Hinted{}.Detect(WithHint(ctx, league.LanguageSpanish), "hola")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageSpanish, lang)

	lang, err = Hinted{}.Detect(WithHint(ctx, league.Language("fr")), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageNone, lang)

	lang, err = Hinted{}.Detect(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageNone, lang)

	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(detectResponse{Language: "en", Confidence: 0.9})
	})
	lang, err = Hinted{Next: client}.Detect(ctx, "hello there friends")
	require.NoError(t, err)
	assert.Equal(t, league.LanguageEnglish, lang)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
