package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-index/internal/cache"
	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
)

// fakeRemote is an in-memory drive tree keyed by folder ID.
type fakeRemote struct {
	mu       sync.Mutex
	rootPath string
	root     graph.Item
	children map[string][]graph.Item

	rootCalls int
	listCalls map[string]int
	failList  error

	// onList runs after a listing snapshot is taken, outside the lock.
	onList func(folderID string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		root:      graph.Item{ID: "root-id", Name: "root", IsFolder: true},
		children:  make(map[string][]graph.Item),
		listCalls: make(map[string]int),
	}
}

func (f *fakeRemote) add(parentID string, item graph.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item.ParentID = parentID
	f.children[parentID] = append(f.children[parentID], item)
}

func (f *fakeRemote) GetItemByPath(_ context.Context, remote string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rootCalls++

	if remote != f.rootPath {
		return nil, &graph.GraphError{StatusCode: 404, Err: graph.ErrNotFound}
	}

	item := f.root

	return &item, nil
}

func (f *fakeRemote) ListChildren(_ context.Context, folderID string) ([]graph.Item, error) {
	f.mu.Lock()

	f.listCalls[folderID]++

	if f.failList != nil {
		err := f.failList
		f.mu.Unlock()

		return nil, err
	}

	out := make([]graph.Item, len(f.children[folderID]))
	copy(out, f.children[folderID])
	hook := f.onList
	f.mu.Unlock()

	if hook != nil {
		hook(folderID)
	}

	return out, nil
}

func (f *fakeRemote) calls(folderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listCalls[folderID]
}

func mustParse(t *testing.T, raw string) pathcodec.Path {
	t.Helper()

	p, err := pathcodec.Parse(raw)
	require.NoError(t, err)

	return p
}

func newTestResolver(remote *fakeRemote) (*Resolver, *cache.Memory) {
	store := cache.NewMemory(0)
	return New(remote, store, pathcodec.Codec{}, slog.Default(), nil), store
}

// seedTree builds: /docs (folder) /docs/readme.md /docs/sub (folder) /top.txt
func seedTree(f *fakeRemote) {
	f.add("root-id", graph.Item{ID: "docs-id", Name: "docs", IsFolder: true})
	f.add("root-id", graph.Item{ID: "top-id", Name: "top.txt"})
	f.add("docs-id", graph.Item{ID: "readme-id", Name: "readme.md", ETag: "e1"})
	f.add("docs-id", graph.Item{ID: "sub-id", Name: "sub", IsFolder: true})
}

func TestResolve_RootWarmCacheNoRemoteCall(t *testing.T) {
	remote := newFakeRemote()
	r, _ := newTestResolver(remote)
	ctx := context.Background()

	item, err := r.Resolve(ctx, pathcodec.Root())
	require.NoError(t, err)
	assert.Equal(t, "root-id", item.ID)
	assert.Equal(t, 1, remote.rootCalls)

	item, err = r.Resolve(ctx, pathcodec.Root())
	require.NoError(t, err)
	assert.Equal(t, "root-id", item.ID)
	assert.Equal(t, 1, remote.rootCalls, "warm root must not hit the remote")
}

func TestResolve_WalksAndMemoizes(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, _ := newTestResolver(remote)
	ctx := context.Background()

	item, err := r.Resolve(ctx, mustParse(t, "docs/readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "readme-id", item.ID)
	assert.Equal(t, "e1", item.ETag)
	assert.Equal(t, 1, remote.calls("root-id"))
	assert.Equal(t, 1, remote.calls("docs-id"))

	// Full path and intermediate folder are memoized.
	_, err = r.Resolve(ctx, mustParse(t, "docs/readme.md"))
	require.NoError(t, err)

	folder, err := r.Resolve(ctx, mustParse(t, "docs"))
	require.NoError(t, err)
	assert.Equal(t, "docs-id", folder.ID)
	assert.Equal(t, 1, remote.calls("root-id"))
	assert.Equal(t, 1, remote.calls("docs-id"))

	// Sibling reuses the cached listing.
	sub, err := r.Resolve(ctx, mustParse(t, "docs/sub"))
	require.NoError(t, err)
	assert.True(t, sub.IsFolder)
	assert.Equal(t, 1, remote.calls("docs-id"))
}

func TestResolve_CaseSensitive(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, _ := newTestResolver(remote)

	_, err := r.Resolve(context.Background(), mustParse(t, "Docs"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_MissingSegmentNotMemoized(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, store := newTestResolver(remote)
	ctx := context.Background()

	_, err := r.Resolve(ctx, mustParse(t, "docs/b"))
	require.ErrorIs(t, err, ErrNotFound)

	_, ok, err := store.Get(ctx, cache.ItemKey("docs/b"))
	require.NoError(t, err)
	assert.False(t, ok, "negative result must not be cached")

	// b appears out-of-band; no manual cache clearing.
	remote.add("docs-id", graph.Item{ID: "b-id", Name: "b"})

	item, err := r.Resolve(ctx, mustParse(t, "docs/b"))
	require.NoError(t, err)
	assert.Equal(t, "b-id", item.ID)
}

func TestResolve_ThroughFileIsNotFound(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, _ := newTestResolver(remote)

	_, err := r.Resolve(context.Background(), mustParse(t, "top.txt/x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_RemoteErrorPropagates(t *testing.T) {
	remote := newFakeRemote()
	remote.failList = &graph.GraphError{StatusCode: 503, Err: graph.ErrServerError}
	r, _ := newTestResolver(remote)

	_, err := r.Resolve(context.Background(), mustParse(t, "docs"))
	assert.ErrorIs(t, err, graph.ErrServerError)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolve_ConfiguredRoot(t *testing.T) {
	remote := newFakeRemote()
	remote.rootPath = "/Public"
	seedTree(remote)

	r := New(remote, cache.NewMemory(0), pathcodec.NewCodec(mustParse(t, "Public")), slog.Default(), nil)

	item, err := r.Resolve(context.Background(), mustParse(t, "docs"))
	require.NoError(t, err)
	assert.Equal(t, "docs-id", item.ID)

	missing := New(remote, cache.NewMemory(0), pathcodec.NewCodec(mustParse(t, "Private")), slog.Default(), nil)
	_, err = missing.Resolve(context.Background(), pathcodec.Root())
	assert.ErrorIs(t, err, ErrNotFound)
}

// failingStore is a cache whose every call fails.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("store down") }
func (failingStore) InvalidateAll(context.Context) error       { return errors.New("store down") }
func (failingStore) Close() error                              { return nil }

func TestResolve_CacheFailureFallsBackToRemote(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r := New(remote, failingStore{}, pathcodec.Codec{}, slog.Default(), nil)

	item, err := r.Resolve(context.Background(), mustParse(t, "docs/readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "readme-id", item.ID)
}

func TestResolvePair(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, _ := newTestResolver(remote)

	a, b, err := r.ResolvePair(context.Background(), mustParse(t, "docs/readme.md"), mustParse(t, "docs/sub"))
	require.NoError(t, err)
	assert.Equal(t, "readme-id", a.ID)
	assert.Equal(t, "sub-id", b.ID)

	_, _, err = r.ResolvePair(context.Background(), mustParse(t, "docs"), mustParse(t, "nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChildren(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, _ := newTestResolver(remote)
	ctx := context.Background()

	items, err := r.Children(ctx, mustParse(t, "docs"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "readme.md", items[0].Name)

	_, err = r.Children(ctx, mustParse(t, "top.txt"))
	assert.ErrorIs(t, err, ErrNotFolder)

	rootItems, err := r.Children(ctx, pathcodec.Root())
	require.NoError(t, err)
	assert.Len(t, rootItems, 2)
}

func TestChildren_ListingReadBeforeInvalidateIsNotCached(t *testing.T) {
	remote := newFakeRemote()
	seedTree(remote)
	r, store := newTestResolver(remote)
	ctx := context.Background()

	// Warm the root so only the docs listing is in flight.
	_, err := r.Resolve(ctx, mustParse(t, "docs"))
	require.NoError(t, err)

	listed := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	remote.onList = func(folderID string) {
		if folderID != "docs-id" {
			return
		}

		once.Do(func() {
			close(listed)
			<-release
		})
	}

	done := make(chan error, 1)

	go func() {
		_, err := r.Children(ctx, mustParse(t, "docs"))
		done <- err
	}()

	<-listed

	require.NoError(t, r.InvalidateAll(ctx))
	remote.add("docs-id", graph.Item{ID: "new-id", Name: "new.txt"})

	close(release)
	require.NoError(t, <-done)

	_, ok, err := store.Get(ctx, cache.ChildrenKey("docs-id"))
	require.NoError(t, err)
	assert.False(t, ok, "listing taken before invalidation must not be cached")

	items, err := r.Children(ctx, mustParse(t, "docs"))
	require.NoError(t, err)
	assert.Len(t, items, 3)
}
