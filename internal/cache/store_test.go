package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAll returns one fresh store per backend.
func openAll(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()

	stores := make(map[string]Store)

	for _, backend := range []string{BackendMemory, BackendSQLite, BackendBadger} {
		s, err := Open(context.Background(), Options{
			Backend: backend,
			TTL:     ttl,
			Dir:     t.TempDir(),
			Logger:  slog.Default(),
		})
		require.NoError(t, err, backend)

		t.Cleanup(func() { _ = s.Close() })

		stores[backend] = s
	}

	return stores
}

func TestStore_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()

	for name, s := range openAll(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, ItemKey("a/b"), []byte(`{"id":"1"}`)))
			require.NoError(t, s.Set(ctx, ChildrenKey("root-id"), []byte(`[]`)))

			v, ok, err := s.Get(ctx, ItemKey("a/b"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"id":"1"}`, string(v))

			// Overwrite.
			require.NoError(t, s.Set(ctx, ItemKey("a/b"), []byte(`{"id":"2"}`)))
			v, _, err = s.Get(ctx, ItemKey("a/b"))
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"2"}`, string(v))

			require.NoError(t, s.InvalidateAll(ctx))

			for _, key := range []string{ItemKey("a/b"), ChildrenKey("root-id")} {
				_, ok, err := s.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, ok, key)
			}
		})
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()

	for name, s := range openAll(t, 0) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup

			for i := range 16 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					key := fmt.Sprintf("k%d", i)
					assert.NoError(t, s.Set(ctx, key, []byte(key)))

					v, ok, err := s.Get(ctx, key)
					assert.NoError(t, err)
					assert.True(t, ok)
					assert.Equal(t, key, string(v))
				}()
			}

			wg.Wait()
		})
	}
}

func TestMemory_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'x'

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(v))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20 * time.Millisecond)

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_ExpiryAndPurge(t *testing.T) {
	ctx := context.Background()

	s, err := OpenSQLite(ctx, t.TempDir()+"/cache.db", time.Minute, slog.Default())
	require.NoError(t, err)
	defer s.Close()

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_ReopenKeepsEntriesAndSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/cache.db"

	s, err := OpenSQLite(ctx, path, 0, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, 0, slog.Default())
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "item:a/b", ItemKey("a/b"))
	assert.Equal(t, "children:X!1", ChildrenKey("X!1"))
}
