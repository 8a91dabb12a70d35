// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/replaydiff/internal/httpclient"
	"github.com/JakeFAU/replaydiff/internal/metrics"
	"github.com/JakeFAU/replaydiff/internal/queue/memory"
	"github.com/JakeFAU/replaydiff/internal/replay"
)

func baseConfig() replay.Config {
	return replay.Config{
		OldURL:      "http://old.local",
		NewURL:      "http://new.local",
		Method:      replay.MethodGet,
		Timeout:     time.Second,
		QueueSize:   2,
		Concurrency: 4,
	}
}

func entries(n int) []replay.Entry {
	out := make([]replay.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, replay.Entry{Payload: fmt.Sprintf("id=%d", i)})
	}
	return out
}

// TestPoolProcessesEveryEntryOnce checks that each submitted entry reaches
// exactly one worker and is counted exactly once.
func TestPoolProcessesEveryEntryOnce(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.failOn("http://new.local?id=3")
	client.failOn("http://old.local?id=17")

	pool, err := New(context.Background(), baseConfig(), client)
	require.NoError(t, err)
	require.Equal(t, 4, pool.Size())

	const n = 50
	batch := entries(n)
	for start := 0; start < n; start += 5 {
		require.NoError(t, pool.Submit(context.Background(), batch[start:start+5]))
	}
	snap := pool.Shutdown()

	require.EqualValues(t, n, pool.Submitted())
	require.EqualValues(t, n, snap.Total())
	require.EqualValues(t, 2, snap.Failed)
	require.EqualValues(t, n-2, snap.Succeeded)
	require.False(t, snap.FinishedAt.Before(snap.StartedAt))

	for i := 0; i < n; i++ {
		old := fmt.Sprintf("http://old.local?id=%d", i)
		require.Equal(t, 1, client.count(old), old)
		if i == 17 {
			require.Zero(t, client.count(fmt.Sprintf("http://new.local?id=%d", i)))
			continue
		}
		require.Equal(t, 1, client.count(fmt.Sprintf("http://new.local?id=%d", i)))
	}
}

func TestPoolRejectsEmptyURLs(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*replay.Config){
		"old": func(c *replay.Config) { c.OldURL = "" },
		"new": func(c *replay.Config) { c.NewURL = "" },
	} {
		cfg := baseConfig()
		mutate(&cfg)
		client := newFakeClient()
		pool, err := New(context.Background(), cfg, client)
		require.ErrorIs(t, err, replay.ErrMissingURL, name)
		require.Nil(t, pool, name)
		require.Zero(t, client.total(), name)
	}
}

func TestPoolUnsupportedMethodFailsEveryEntry(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Method = "PATCH"
	client := newFakeClient()
	core, logs := observer.New(zapcore.ErrorLevel)

	pool, err := New(context.Background(), cfg, client, WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, pool.Submit(context.Background(), entries(5)))
	snap := pool.Shutdown()

	require.EqualValues(t, 5, snap.Failed)
	require.Zero(t, snap.Succeeded)
	require.Zero(t, client.total())

	failures := logs.FilterMessage("handle replay entry failed").All()
	require.Len(t, failures, 5)
	for _, entry := range failures {
		require.Contains(t, entry.ContextMap()["error"], "unsupported method")
	}
}

// TestPoolBackpressure uses one worker and a one-slot queue: while the worker
// is busy, the third entry must wait in Submit rather than be dropped.
func TestPoolBackpressure(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.QueueSize = 1
	cfg.Concurrency = 1
	client := newFakeClient()
	client.block = make(chan struct{})
	client.started = make(chan string, 16)

	pool, err := New(context.Background(), cfg, client)
	require.NoError(t, err)

	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.Submit(context.Background(), entries(3))
	}()

	select {
	case url := <-client.started:
		require.Equal(t, "http://old.local?id=0", url)
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first entry")
	}

	select {
	case err := <-submitted:
		t.Fatalf("submit returned while the pool was saturated: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	require.EqualValues(t, 2, pool.Submitted())

	close(client.block)
	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit did not unblock once the worker drained the queue")
	}

	snap := pool.Shutdown()
	require.EqualValues(t, 3, snap.Succeeded)
	require.Zero(t, snap.Failed)
}

// Not parallel: the queue depth gauge is process-wide.
func TestPoolQueueDepthFollowsDrain(t *testing.T) {
	cfg := baseConfig()
	cfg.QueueSize = 5
	cfg.Concurrency = 1
	client := newFakeClient()
	client.block = make(chan struct{})
	client.started = make(chan string, 16)

	pool, err := New(context.Background(), cfg, client)
	require.NoError(t, err)
	require.NoError(t, pool.Submit(context.Background(), entries(5)))

	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first entry")
	}
	require.Equal(t, 4.0, scrapeQueueDepth(t))

	close(client.block)
	require.Eventually(t, func() bool {
		return client.count("http://new.local?id=4") == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0.0, scrapeQueueDepth(t))

	snap := pool.Shutdown()
	require.EqualValues(t, 5, snap.Succeeded)
}

func scrapeQueueDepth(t *testing.T) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if value, ok := strings.CutPrefix(line, "replaydiff_queue_depth "); ok {
			depth, err := strconv.ParseFloat(value, 64)
			require.NoError(t, err)
			return depth
		}
	}
	t.Fatal("replaydiff_queue_depth missing from metrics output")
	return 0
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	pool, err := New(context.Background(), baseConfig(), newFakeClient())
	require.NoError(t, err)

	first := pool.Shutdown()
	second := pool.Shutdown()
	require.Equal(t, first, second)
	require.Zero(t, first.Total())

	err = pool.Submit(context.Background(), entries(1))
	require.ErrorIs(t, err, memory.ErrClosed)
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.QueueSize = 1
	cfg.Concurrency = 1
	client := newFakeClient()
	client.block = make(chan struct{})
	client.started = make(chan string, 16)

	pool, err := New(context.Background(), cfg, client)
	require.NoError(t, err)

	require.NoError(t, pool.Submit(context.Background(), entries(1)))
	<-client.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = pool.Submit(ctx, entries(3))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(client.block)
	snap := pool.Shutdown()
	require.Equal(t, pool.Submitted(), snap.Total())
}

// TestPoolEndToEnd replays two GET payloads against real endpoints that agree
// on a=1 and disagree on a=2.
func TestPoolEndToEnd(t *testing.T) {
	t.Parallel()

	oldServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":"` + r.URL.Query().Get("a") + `"}`))
	}))
	defer oldServer.Close()
	newServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get("a")
		if value == "2" {
			value = "two"
		}
		_, _ = w.Write([]byte(`{"value":"` + value + `"}`))
	}))
	defer newServer.Close()

	cfg := baseConfig()
	cfg.OldURL = oldServer.URL
	cfg.NewURL = newServer.URL
	core, logs := observer.New(zapcore.InfoLevel)

	pool, err := New(context.Background(), cfg, httpclient.New(httpclient.Config{}), WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, pool.Submit(context.Background(), []replay.Entry{{Payload: "a=1"}, {Payload: "a=2"}}))
	snap := pool.Shutdown()

	require.EqualValues(t, 2, snap.Succeeded)
	require.Zero(t, snap.Failed)
	require.EqualValues(t, 1, snap.Diffs)

	diffs := logs.FilterMessage("found diff").All()
	require.Len(t, diffs, 1)
	fields := diffs[0].ContextMap()
	require.Equal(t, "a=2", fields["payload"])
	require.Equal(t, oldServer.URL+"?a=2", fields["old_url"])
	require.Equal(t, newServer.URL+"?a=2", fields["new_url"])
	require.Equal(t, `{"value":"2"}`, fields["old_body"])
	require.Equal(t, `{"value":"two"}`, fields["new_body"])
}

type fakeClient struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]bool
	block   chan struct{}
	started chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls: make(map[string]int),
		fail:  make(map[string]bool),
	}
}

func (c *fakeClient) failOn(url string) {
	c.fail[url] = true
}

func (c *fakeClient) Get(_ context.Context, url string, _ time.Duration) (replay.Response, error) {
	return c.handle(url)
}

func (c *fakeClient) PostJSON(_ context.Context, url string, _ string, _ time.Duration) (replay.Response, error) {
	return c.handle(url)
}

func (c *fakeClient) handle(url string) (replay.Response, error) {
	c.mu.Lock()
	c.calls[url]++
	shouldFail := c.fail[url]
	c.mu.Unlock()

	if c.started != nil {
		c.started <- url
	}
	if c.block != nil {
		<-c.block
	}
	if shouldFail {
		return replay.Response{}, fmt.Errorf("%w: refused", replay.ErrTransport)
	}
	return replay.Response{URL: url, StatusCode: http.StatusOK, Body: []byte("ok")}, nil
}

func (c *fakeClient) count(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[url]
}

func (c *fakeClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}
