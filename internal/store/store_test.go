package store_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/store"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	s := open(t)

	started := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
	completed := started.Add(90 * time.Second)
	snap := model.Snapshot{
		ID:          "3b5f0a6e",
		Kind:        model.KindRegistryLookup,
		Filters:     model.SearchFilters{Regions: []string{"Brno"}, HasPhone: true},
		Status:      model.StatusCompleted,
		Phase:       model.PhaseProcessing,
		StartedAt:   started,
		CompletedAt: &completed,
		Results: []model.ResultItem{
			{ID: "27082440", Payload: json.RawMessage(`{"name":"Alza.cz a.s."}`)},
			{ID: "00006947"},
		},
		Progress: model.SearchProgress{Processed: 2, Total: 2, Found: 2},
		Summary:  &model.Summary{Total: 2, Found: 2, DurationMs: 1500},
	}

	t.Run("not found", func(t *testing.T) {
		_, err := s.Get(ctx, snap.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save", func(t *testing.T) {
		require.NoError(t, s.NotifyCompleted(ctx, snap))
		err := s.SaveResults(ctx, snap)
		require.ErrorIs(t, err, store.ErrAlreadySaved)
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.Get(ctx, snap.ID)
		require.NoError(t, err)
		require.Equal(t, snap.ID, got.ID)
		require.Equal(t, snap.Kind, got.Kind)
		require.Equal(t, snap.Filters, got.Filters)
		require.Equal(t, snap.Status, got.Status)
		require.Equal(t, snap.Phase, got.Phase)
		require.True(t, snap.StartedAt.Equal(got.StartedAt))
		require.NotNil(t, got.CompletedAt)
		require.True(t, completed.Equal(*got.CompletedAt))
		require.Equal(t, snap.Progress, got.Progress)
		require.Equal(t, snap.Summary, got.Summary)
		require.Empty(t, got.Error)
		require.Len(t, got.Results, 2)
		require.Equal(t, "27082440", got.Results[0].ID)
		require.JSONEq(t, `{"name":"Alza.cz a.s."}`, string(got.Results[0].Payload))
		require.Equal(t, model.ResultItem{ID: "00006947"}, got.Results[1])
	})

	t.Run("failed", func(t *testing.T) {
		failed := model.Snapshot{
			ID:          "9c2d",
			Kind:        model.KindInternetSearch,
			Status:      model.StatusError,
			StartedAt:   started.Add(time.Hour),
			CompletedAt: &completed,
			Results:     []model.ResultItem{{ID: "1"}},
			Progress:    model.SearchProgress{Processed: 1, Found: 1},
			Error:       "search stream interrupted",
		}
		require.NoError(t, s.NotifyFailed(ctx, failed))
		got, err := s.Get(ctx, failed.ID)
		require.NoError(t, err)
		require.Equal(t, model.StatusError, got.Status)
		require.Equal(t, "search stream interrupted", got.Error)
		require.Nil(t, got.Summary)
		require.Len(t, got.Results, 1)
	})

	t.Run("list", func(t *testing.T) {
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "9c2d", list[0].ID)
		require.Equal(t, snap.ID, list[1].ID)
		require.Empty(t, list[1].Results)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, snap.ID))
		require.ErrorIs(t, s.Delete(ctx, snap.ID), store.ErrNotFound)
		_, err := s.Get(ctx, snap.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("running search is refused", func(t *testing.T) {
		running := snap
		running.ID = "running"
		running.Status = model.StatusRunning
		err := s.SaveResults(ctx, running)
		require.ErrorIs(t, err, store.ErrNotFinished)
	})
}

func TestStore_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "leadseeker.db")
	s, err := store.Open(t.Context(), path)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.SaveResults(t.Context(), model.Snapshot{
		ID:          "a",
		Kind:        model.KindInternetSearch,
		Status:      model.StatusCompleted,
		StartedAt:   now,
		CompletedAt: &now,
	}))
	require.NoError(t, s.Close())

	s, err = store.Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.Get(t.Context(), "a")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Empty(t, got.Results)
}

func open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
