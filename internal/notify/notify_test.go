package notify_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/notify"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		name string
		snap model.Snapshot
		then string
	}{
		{
			name: "completed",
			snap: snapshot(model.StatusCompleted, 42, ""),
			then: "internet search finished: 42 results in 1m3s",
		},
		{
			name: "completed single",
			snap: snapshot(model.StatusCompleted, 1, ""),
			then: "internet search finished: 1 result in 1m3s",
		},
		{
			name: "failed",
			snap: snapshot(model.StatusError, 3, "provider quota exceeded"),
			then: "internet search failed after 1m3s: provider quota exceeded",
		},
		{
			name: "cancelled",
			snap: snapshot(model.StatusCancelled, 0, ""),
			then: "internet search cancelled after 1m3s with 0 results",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.then, notify.Summarize(tc.snap))
		})
	}
}

func TestWriterNotifier(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	n := notify.NewWriterNotifier(&buf)

	require.NoError(t, n.NotifyCompleted(t.Context(), snapshot(model.StatusCompleted, 2, "")))
	require.NoError(t, n.NotifyFailed(t.Context(), snapshot(model.StatusError, 0, "boom")))

	var events []notify.Event
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var e notify.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, events, 2)

	require.Equal(t, notify.EventCompleted, events[0].Event)
	require.Equal(t, 2, events[0].Results)
	require.Empty(t, events[0].Items)
	require.Equal(t, int64(63_000), events[0].ElapsedMs)

	require.Equal(t, notify.EventFailed, events[1].Event)
	require.Equal(t, "boom", events[1].Error)
	require.Equal(t, model.StatusError, events[1].Status)
}

func TestDirNotifier(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	n, err := notify.NewDirNotifier(dir)
	require.NoError(t, err)

	snap := snapshot(model.StatusCompleted, 3, "")
	require.NoError(t, n.NotifyCompleted(t.Context(), snap))

	path := filepath.Join(dir, notify.FileName(notify.NewEvent(notify.EventCompleted, snap)))
	require.Equal(t, "leadseeker-internet-search-2025-03-01-10-01-03-6f1c.json", filepath.Base(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var e notify.Event
	require.NoError(t, json.Unmarshal(raw, &e))
	require.Equal(t, snap.ID, e.ID)
	require.Len(t, e.Items, 3)
	require.Equal(t, "c-2", e.Items[2].ID)

	require.NoError(t, n.Close())
	require.Error(t, n.Close())
	require.Error(t, n.NotifyFailed(t.Context(), snap))

	_, err = notify.NewDirNotifier(filepath.Join(dir, "does-not-exist"))
	require.Error(t, err)
}

func TestWebhookNotifier(t *testing.T) {
	t.Parallel()
	type captured struct {
		auth  string
		event notify.Event
	}
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&c.event); err != nil {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"bad payload"}`)
			return
		}
		if c.event.Event == notify.EventFailed {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"detail":"failures are not accepted"}`)
			return
		}
		reqs <- c
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL + "/hooks/leads")
	require.NoError(t, err)
	n, err := notify.NewWebhookNotifier(model.Webhook{URL: model.URL{URL: u}, Token: "hook"})
	require.NoError(t, err)

	t.Run("completed", func(t *testing.T) {
		require.NoError(t, n.NotifyCompleted(t.Context(), snapshot(model.StatusCompleted, 5, "")))
		got := <-reqs
		require.Equal(t, "Bearer hook", got.auth)
		require.Equal(t, notify.EventCompleted, got.event.Event)
		require.Equal(t, 5, got.event.Results)
		require.Equal(t, "internet search finished: 5 results in 1m3s", got.event.Message)
	})

	t.Run("problem", func(t *testing.T) {
		err := n.NotifyFailed(t.Context(), snapshot(model.StatusError, 0, "boom"))
		require.EqualError(t, err, "webhook search.failed: status code: 409, detail: failures are not accepted")
	})

	t.Run("empty url", func(t *testing.T) {
		_, err := notify.NewWebhookNotifier(model.Webhook{})
		require.Error(t, err)
	})
}

func TestMulti(t *testing.T) {
	t.Parallel()
	errSink := errors.New("sink down")
	ok1, ok2 := &counter{}, &counter{}
	broken := &counter{err: errSink}
	m := notify.Multi{ok1, broken, ok2}

	err := m.NotifyCompleted(t.Context(), snapshot(model.StatusCompleted, 1, ""))
	require.ErrorIs(t, err, errSink)
	err = m.NotifyFailed(t.Context(), snapshot(model.StatusError, 0, "x"))
	require.ErrorIs(t, err, errSink)

	for _, c := range []*counter{ok1, broken, ok2} {
		require.Equal(t, int32(1), c.completed.Load())
		require.Equal(t, int32(1), c.failed.Load())
	}

	require.NoError(t, m.Close())
	require.True(t, ok1.closed.Load())
	require.True(t, broken.closed.Load())
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		m, err := notify.FromConfig(t.Context(), model.Config{})
		require.NoError(t, err)
		require.Equal(t, notify.Multi{notify.LogNotifier{}}, m)
	})

	t.Run("all sinks", func(t *testing.T) {
		u, err := url.Parse("https://hooks.example.com/leads")
		require.NoError(t, err)
		cfg := model.Config{Notify: &model.Notify{
			Log:     true,
			Dir:     t.TempDir(),
			Webhook: &model.Webhook{URL: model.URL{URL: u}},
		}}
		m, err := notify.FromConfig(t.Context(), cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close() })
		require.Len(t, m, 3)
		require.IsType(t, notify.LogNotifier{}, m[0])
		require.IsType(t, &notify.DirNotifier{}, m[1])
		require.IsType(t, &notify.WebhookNotifier{}, m[2])
	})

	t.Run("bad dir", func(t *testing.T) {
		cfg := model.Config{Notify: &model.Notify{Dir: filepath.Join(t.TempDir(), "missing")}}
		_, err := notify.FromConfig(t.Context(), cfg)
		require.ErrorContains(t, err, "notify.dir")
	})
}

type counter struct {
	completed atomic.Int32
	failed    atomic.Int32
	closed    atomic.Bool
	err       error
}

func (c *counter) NotifyCompleted(context.Context, model.Snapshot) error {
	c.completed.Add(1)
	return c.err
}

func (c *counter) NotifyFailed(context.Context, model.Snapshot) error {
	c.failed.Add(1)
	return c.err
}

func (c *counter) Close() error {
	c.closed.Store(true)
	return nil
}

func snapshot(status model.SearchStatus, results int, reason string) model.Snapshot {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(63 * time.Second)
	snap := model.Snapshot{
		ID:          "6f1c",
		Kind:        model.KindInternetSearch,
		Filters:     model.SearchFilters{Regions: []string{"Praha"}},
		Status:      status,
		StartedAt:   started,
		CompletedAt: &completed,
		Results:     []model.ResultItem{},
		Progress:    model.SearchProgress{Processed: uint(results), Total: uint(results), Found: uint(results)},
		Error:       reason,
	}
	for i := range results {
		snap.Results = append(snap.Results, model.ResultItem{
			ID:      "c-" + strconv.Itoa(i),
			Payload: json.RawMessage(`{"name":"x"}`),
		})
	}
	return snap
}
