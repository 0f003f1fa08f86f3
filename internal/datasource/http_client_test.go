package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/logger"
)

var testStart = time.Date(2024, 2, 3, 12, 0, 0, 0, time.UTC)

func newTestFetcher(interval, timeout time.Duration, attempts int, clk clock.Clock) *RateLimitedHTTPClient {
	return NewRateLimitedHTTPClient(HTTPClientConfig{
		MinInterval: interval,
		Timeout:     timeout,
		Retry: RetryPolicy{
			MaxAttempts: attempts,
			Strategy:    BackoffFixed,
			BackoffMin:  100 * time.Millisecond,
			BackoffMax:  time.Second,
		},
	}, logger.Discard(), WithClock(clk))
}

// dropConnection closes the connection without writing a response
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	_ = conn.Close()
}

func TestExecuteSpacesCallsByMinInterval(t *testing.T) {
	fake := clock.NewFake(testStart)

	var mu sync.Mutex
	var calls []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, fake.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestFetcher(600*time.Millisecond, 2*time.Second, 3, fake)

	for i := 0; i < 3; i++ {
		resp, err := client.Execute(context.Background(), Request{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 600*time.Millisecond)
	}
}

func TestExecuteSpacingSurvivesCallerWork(t *testing.T) {
	fake := clock.NewFake(testStart)

	var mu sync.Mutex
	var calls []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, fake.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(DefaultHTTPClientConfig(), logger.Discard(), WithClock(fake))

	for i := 0; i < 10; i++ {
		fake.Advance(time.Duration(i) * 37 * time.Millisecond)
		_, err := client.Execute(context.Background(), Request{URL: server.URL})
		require.NoError(t, err)
	}

	require.Len(t, calls, 10)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 600*time.Millisecond, "call %d", i)
	}
}

func TestExecuteDoesNotRetryHTTPStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client := newTestFetcher(0, 2*time.Second, 3, clock.NewFake(testStart))

	resp, err := client.Execute(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, "maintenance", fe.Body)
	assert.False(t, IsTransient(err))
}

func TestExecuteRetriesNetworkErrors(t *testing.T) {
	fake := clock.NewFake(testStart)

	var mu sync.Mutex
	var calls []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, fake.Now())
		n := len(calls)
		mu.Unlock()
		if n < 3 {
			dropConnection(t, w)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestFetcher(600*time.Millisecond, 2*time.Second, 3, fake)

	resp, err := client.Execute(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 600*time.Millisecond)
	}
	assert.Contains(t, fake.Sleeps(), 100*time.Millisecond)
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		dropConnection(t, w)
	}))
	defer server.Close()

	client := newTestFetcher(0, 2*time.Second, 3, clock.NewFake(testStart))

	_, err := client.Execute(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNetworkUnavailable, fe.Kind)
	assert.True(t, IsTransient(err))
}

func TestExecuteTimesOutEachAttempt(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestFetcher(0, 50*time.Millisecond, 2, clock.NewFake(testStart))

	_, err := client.Execute(context.Background(), Request{URL: server.URL})
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestExecuteSendsQueryHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "GB", r.URL.Query().Get("country"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer server.Close()

	client := newTestFetcher(0, 2*time.Second, 1, clock.NewFake(testStart))

	resp, err := client.Execute(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL + "/token?page=1",
		Query:  map[string][]string{"country": {"GB"}},
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"username":"u"}`),
	})
	require.NoError(t, err)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "abc", out.Token)
}

func TestExecuteRedactsSecretsInErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestFetcher(0, 2*time.Second, 1, clock.NewFake(testStart))

	_, err := client.Execute(context.Background(), Request{
		URL:       server.URL + "/s3cr3t/eventsday.php",
		Query:     map[string][]string{"apiKey": {"s3cr3t"}},
		Sensitive: []string{"s3cr3t"},
	})
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))
	assert.NotContains(t, err.Error(), "s3cr3t")
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestFetcher(0, 2*time.Second, 3, clock.NewFake(testStart))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, Request{URL: server.URL})
	assert.Error(t, err)
}

func TestRetryPolicyDelay(t *testing.T) {
	exp := RetryPolicy{MaxAttempts: 6, Strategy: BackoffExponential, BackoffMin: 500 * time.Millisecond, BackoffMax: 5 * time.Second}
	assert.Equal(t, 500*time.Millisecond, exp.Delay(0))
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))
	assert.Equal(t, 5*time.Second, exp.Delay(4))
	assert.Equal(t, 5*time.Second, exp.Delay(100))

	fixed := RetryPolicy{MaxAttempts: 3, Strategy: BackoffFixed, BackoffMin: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, fixed.Delay(0))
	assert.Equal(t, 250*time.Millisecond, fixed.Delay(5))

	assert.Equal(t, 2, DefaultRetryPolicy().retries())
	assert.Equal(t, 0, RetryPolicy{MaxAttempts: 1}.retries())
}

func TestIsAuthRejected(t *testing.T) {
	assert.True(t, IsAuthRejected(&FetchError{Kind: KindHTTPStatus, StatusCode: http.StatusForbidden}))
	assert.False(t, IsAuthRejected(&FetchError{Kind: KindHTTPStatus, StatusCode: http.StatusNotFound}))
	assert.False(t, IsAuthRejected(&FetchError{Kind: KindTimeout}))
	assert.False(t, IsAuthRejected(errors.New("boom")))
}
