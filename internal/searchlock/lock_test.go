package searchlock_test

import (
	"math/rand/v2"
	"testing"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/searchlock"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	t.Parallel()
	lock := searchlock.New()
	require.False(t, lock.Locked())
	require.Empty(t, lock.DescribeConflict())

	t.Run("acquire free", func(t *testing.T) {
		require.True(t, lock.Acquire(model.KindInternetSearch))
		kind, ok := lock.Active()
		require.True(t, ok)
		require.Equal(t, model.KindInternetSearch, kind)
	})
	t.Run("other kind denied", func(t *testing.T) {
		require.False(t, lock.Acquire(model.KindRegistryLookup))
		kind, _ := lock.Active()
		require.Equal(t, model.KindInternetSearch, kind)
		msg := lock.DescribeConflict()
		require.NotEmpty(t, msg)
		require.Contains(t, msg, "internet-search")
	})
	t.Run("same kind re-enters", func(t *testing.T) {
		require.True(t, lock.Acquire(model.KindInternetSearch))
	})
	t.Run("stale release is a no-op", func(t *testing.T) {
		lock.Release(model.KindRegistryLookup)
		kind, ok := lock.Active()
		require.True(t, ok)
		require.Equal(t, model.KindInternetSearch, kind)
	})
	t.Run("release", func(t *testing.T) {
		lock.Release(model.KindInternetSearch)
		require.False(t, lock.Locked())
		lock.Release(model.KindInternetSearch)
		require.False(t, lock.Locked())
		require.True(t, lock.Acquire(model.KindRegistryLookup))
	})
}

func TestTryAcquire(t *testing.T) {
	t.Parallel()
	lock := searchlock.New()
	require.NoError(t, lock.TryAcquire(model.KindInternetSearch))

	err := lock.TryAcquire(model.KindRegistryLookup)
	require.ErrorIs(t, err, searchlock.ErrLocked)
	var conflict *searchlock.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, model.KindInternetSearch, conflict.Holder)
	require.Equal(t, model.KindRegistryLookup, conflict.Requested)
	require.Equal(t, lock.DescribeConflict(), conflict.Error())
}

// random acquire/release sequences never leave two holders
func TestLock_MutualExclusion(t *testing.T) {
	t.Parallel()
	lock := searchlock.New()
	kinds := model.Kinds()
	rnd := rand.New(rand.NewPCG(1, 2))

	var holder model.SearchKind
	for range 10_000 {
		kind := kinds[rnd.IntN(len(kinds))]
		if rnd.IntN(2) == 0 {
			ok := lock.Acquire(kind)
			require.Equal(t, holder == "" || holder == kind, ok)
			if ok {
				holder = kind
			}
		} else {
			lock.Release(kind)
			if holder == kind {
				holder = ""
			}
		}
		active, _ := lock.Active()
		require.Equal(t, holder, active)
	}
}
