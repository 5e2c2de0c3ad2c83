package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receiver collects webhook deliveries.
type receiver struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	failures int // respond 500 to this many requests first
}

func (r *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failures > 0 {
			r.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		r.bodies = append(r.bodies, body)
		r.headers = append(r.headers, req.Header.Clone())
		w.WriteHeader(http.StatusOK)
	}
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newConfig(accountID, url string, triggers ...Trigger) *Config {
	return &Config{
		ID:        "alertcfg_test",
		AccountID: accountID,
		URL:       url,
		Triggers:  triggers,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatcherDeliversSignedAlert(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerFlagged)))

	d := NewDispatcher(store, "topsecret", WithRetries(0, time.Millisecond))
	d.AccountFlagged(context.Background(), "@alice", "flag_1", "velocity anomaly")

	waitFor(t, func() bool { return rcv.count() == 1 })

	rcv.mu.Lock()
	body := rcv.bodies[0]
	header := rcv.headers[0]
	rcv.mu.Unlock()

	var alert Alert
	require.NoError(t, json.Unmarshal(body, &alert))
	assert.Equal(t, TriggerFlagged, alert.Trigger)
	assert.Equal(t, "@alice", alert.AccountID)
	assert.Equal(t, "velocity anomaly", alert.Data["reason"])

	assert.Equal(t, string(TriggerFlagged), header.Get("X-Trustrail-Trigger"))
	sig := header.Get("X-Trustrail-Signature")
	require.NotEmpty(t, sig)
	assert.True(t, VerifySignature(body, "topsecret", sig))
	assert.False(t, VerifySignature(body, "wrongsecret", sig))
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	rcv := &receiver{failures: 2}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerBlocked)))

	d := NewDispatcher(store, "", WithRetries(3, time.Millisecond))
	d.NotifyBlocked(context.Background(), "@alice", 25.5, "score below threshold")

	waitFor(t, func() bool { return rcv.count() == 1 })

	cfg, err := store.Get(context.Background(), "alertcfg_test")
	require.NoError(t, err)
	assert.NotNil(t, cfg.LastSuccess)
	assert.Empty(t, cfg.LastError)
}

func TestDispatcherRecordsFailureAfterRetryBudget(t *testing.T) {
	rcv := &receiver{failures: 10}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerBlocked)))

	d := NewDispatcher(store, "", WithRetries(1, time.Millisecond))
	d.NotifyBlocked(context.Background(), "@alice", 10, "score below threshold")

	waitFor(t, func() bool {
		cfg, err := store.Get(context.Background(), "alertcfg_test")
		return err == nil && cfg.LastError != ""
	})
	assert.Equal(t, 0, rcv.count())
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerFlagged)))

	d := NewDispatcher(store, "", WithRetries(5, time.Millisecond))
	d.AccountFlagged(context.Background(), "@alice", "flag_1", "anomaly")

	waitFor(t, func() bool {
		cfg, err := store.Get(context.Background(), "alertcfg_test")
		return err == nil && cfg.LastError != ""
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "4xx should not be retried")
}

func TestDispatcherSkipsUnsubscribedTriggers(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	// Subscribed to blocked only.
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerBlocked)))

	d := NewDispatcher(store, "", WithRetries(0, time.Millisecond))
	d.AccountFlagged(context.Background(), "@alice", "flag_1", "anomaly")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rcv.count())
}

func TestDispatcherWildcardConfig(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("*", srv.URL, TriggerFlagged)))

	d := NewDispatcher(store, "", WithRetries(0, time.Millisecond))
	d.AccountFlagged(context.Background(), "@anyone", "flag_1", "anomaly")

	waitFor(t, func() bool { return rcv.count() == 1 })
}

func TestDispatcherSurvivesCancelledRequestContext(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler())
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(),
		newConfig("@alice", srv.URL, TriggerFlagged)))

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(store, "", WithRetries(0, time.Millisecond))
	d.AccountFlagged(ctx, "@alice", "flag_1", "anomaly")
	cancel() // the originating request ends; delivery continues

	waitFor(t, func() bool { return rcv.count() == 1 })
}

func TestMemoryStoreForAccount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := newConfig("@alice", "http://example.com/a", TriggerFlagged)
	a.ID = "alertcfg_a"
	b := newConfig("@bob", "http://example.com/b", TriggerFlagged)
	b.ID = "alertcfg_b"
	wild := newConfig("*", "http://example.com/all", TriggerBlocked)
	wild.ID = "alertcfg_wild"

	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	require.NoError(t, store.Create(ctx, wild))

	configs, err := store.ForAccount(ctx, "@alice")
	require.NoError(t, err)
	assert.Len(t, configs, 2) // own config plus wildcard

	require.NoError(t, store.Delete(ctx, "alertcfg_wild"))
	configs, err = store.ForAccount(ctx, "@alice")
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}
