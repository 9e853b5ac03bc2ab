package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	d := &canary.Deployment{
		ID:        "dep-1",
		Status:    canary.StatusPending,
		CreatedAt: time.Now().UTC(),
		Steps:     []canary.Step{{Number: 1, TargetPercent: 10, Status: canary.StepPending}},
	}
	require.NoError(t, s.Create(ctx, d))
	require.ErrorIs(t, s.Create(ctx, d), store.ErrExists)

	got, err := s.Get(ctx, "dep-1")
	require.NoError(t, err)
	require.Equal(t, canary.StatusPending, got.Status)
	require.Equal(t, int64(1), got.Version)

	got.Status = canary.StatusProgressing
	require.NoError(t, s.Update(ctx, got))

	again, err := s.Get(ctx, "dep-1")
	require.NoError(t, err)
	require.Equal(t, canary.StatusProgressing, again.Status)
	require.Equal(t, int64(2), again.Version)

	require.NoError(t, s.Delete(ctx, "dep-1"))
	_, err = s.Get(ctx, "dep-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBadgerUpdateConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Create(ctx, &canary.Deployment{ID: "dep-1", CreatedAt: time.Now().UTC()}))

	a, err := s.Get(ctx, "dep-1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "dep-1")
	require.NoError(t, err)

	a.StatusMessage = "first writer"
	require.NoError(t, s.Update(ctx, a))

	b.StatusMessage = "second writer"
	require.ErrorIs(t, s.Update(ctx, b), store.ErrConflict)
}

func TestBadgerUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	err := s.Update(ctx, &canary.Deployment{ID: "missing", Version: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBadgerList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Create(ctx, &canary.Deployment{ID: "dep-1", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.Create(ctx, &canary.Deployment{ID: "dep-2", CreatedAt: time.Now().UTC()}))

	ds, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 2)
}
