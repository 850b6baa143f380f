package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSleeper records requested waits instead of sleeping.
type fakeSleeper struct {
	waits []time.Duration
}

func (s *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestFetcher(opts Options) (*Fetcher, *fakeSleeper) {
	f := New(opts, zap.NewNop())
	s := &fakeSleeper{}
	f.sleep = s.sleep
	return f, s
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Options{Retries: 3, BackoffBase: 100 * time.Millisecond})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", body)
}

func TestFetchExhaustsRetriesOn503(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Options{Retries: 3, BackoffBase: 100 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	require.True(t, IsExhausted(err))
	require.EqualValues(t, 4, hits.Load(), "1 initial + 3 retries")
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, sleeper.waits)
}

func TestFetchHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("fine now"))
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Options{Retries: 2, BackoffBase: 100 * time.Millisecond})
	body, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Equal(t, "fine now", body)
	require.Equal(t, []time.Duration{2 * time.Second}, sleeper.waits)
}

func TestFetchCapsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Options{Retries: 1, BackoffBase: 100 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Equal(t, []time.Duration{maxRetryAfter}, sleeper.waits)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Options{Retries: 3, BackoffBase: 100 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.EqualValues(t, 1, hits.Load())
	require.Empty(t, sleeper.waits)
}

func TestFetchRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("third time lucky"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Options{Retries: 3, BackoffBase: 50 * time.Millisecond})
	body, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Equal(t, "third time lucky", body)
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _ := newTestFetcher(Options{Retries: 3, BackoffBase: 100 * time.Millisecond})
	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchSendsHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Options{
		Retries:     0,
		BackoffBase: time.Millisecond,
		UserAgent:   "novelpress-test/1.0",
		Headers:     map[string]string{"Accept-Language": "ja"},
	})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "novelpress-test/1.0", gotUA)
	require.Equal(t, "ja", gotLang)
}
