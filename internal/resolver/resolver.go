// Package resolver maps logical paths to drive items by walking the remote
// tree from the configured root, one folder listing per segment, with every
// positive lookup memoized in the shared cache.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-index/internal/cache"
	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/internal/metrics"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
)

// ErrNotFound is returned when a path segment has no matching child.
var ErrNotFound = errors.New("resolver: not found")

// ErrNotFolder is returned when a listing is requested for a file.
var ErrNotFolder = errors.New("resolver: not a folder")

// Remote is the slice of the drive API the resolver reads from.
type Remote interface {
	GetItemByPath(ctx context.Context, remote string) (*graph.Item, error)
	ListChildren(ctx context.Context, folderID string) ([]graph.Item, error)
}

// Resolver turns logical paths into items. It is safe for concurrent use;
// lookups live in the cache store.
//
// gen counts invalidations. A lookup records it before reading the remote
// and writes back only if no invalidation happened since, so a listing read
// before a mutation never lands in the cache after the mutation cleared it.
type Resolver struct {
	remote  Remote
	store   cache.Store
	codec   pathcodec.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu  sync.RWMutex // shared by cache writes, exclusive in InvalidateAll
	gen uint64
}

// New builds a Resolver. m may be nil.
func New(remote Remote, store cache.Store, codec pathcodec.Codec, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		remote:  remote,
		store:   store,
		codec:   codec,
		logger:  logger,
		metrics: m,
	}
}

// Codec returns the path codec the resolver addresses the drive with.
func (r *Resolver) Codec() pathcodec.Codec {
	return r.codec
}

// Resolve returns the item at p. The empty path is the configured root.
func (r *Resolver) Resolve(ctx context.Context, p pathcodec.Path) (*graph.Item, error) {
	gen := r.generation()

	if p.IsRoot() {
		return r.root(ctx, gen)
	}

	if item, ok := r.cachedItem(ctx, cache.ItemKey(p.String())); ok {
		return item, nil
	}

	cur, err := r.root(ctx, gen)
	if err != nil {
		return nil, err
	}

	walked := pathcodec.Root()

	for _, seg := range p.Segments() {
		if !cur.IsFolder {
			return nil, fmt.Errorf("%w: %q is not a folder", ErrNotFound, walked.String())
		}

		child, err := r.findChild(ctx, gen, cur, seg)
		if err != nil {
			return nil, err
		}

		if child == nil {
			r.logger.Debug("path segment not found",
				slog.String("parent", walked.String()),
				slog.String("segment", seg),
			)

			return nil, fmt.Errorf("%w: %q", ErrNotFound, p.String())
		}

		// seg came from a parsed Path, so Join cannot fail.
		walked, _ = walked.Join(seg)
		r.storeItem(ctx, gen, cache.ItemKey(walked.String()), child)
		cur = child
	}

	return cur, nil
}

// ResolvePair resolves two paths concurrently. Either failure cancels the
// other lookup and is returned.
func (r *Resolver) ResolvePair(ctx context.Context, a, b pathcodec.Path) (*graph.Item, *graph.Item, error) {
	var itemA, itemB *graph.Item

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		itemA, err = r.Resolve(gctx, a)

		return err
	})

	g.Go(func() error {
		var err error
		itemB, err = r.Resolve(gctx, b)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return itemA, itemB, nil
}

// Children lists the folder at p, using the cached listing when present.
func (r *Resolver) Children(ctx context.Context, p pathcodec.Path) ([]graph.Item, error) {
	return r.listChildren(ctx, p, true)
}

// FreshChildren lists the folder at p from the remote, bypassing any cached
// listing. The folder itself may still be located through the cache.
func (r *Resolver) FreshChildren(ctx context.Context, p pathcodec.Path) ([]graph.Item, error) {
	return r.listChildren(ctx, p, false)
}

func (r *Resolver) listChildren(ctx context.Context, p pathcodec.Path, useCache bool) ([]graph.Item, error) {
	gen := r.generation()

	folder, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	if !folder.IsFolder {
		return nil, fmt.Errorf("%w: %q", ErrNotFolder, p.String())
	}

	children, _, err := r.children(ctx, gen, folder.ID, useCache)

	return children, err
}

// InvalidateAll clears the cache store and discards every write-back still
// pending from lookups that started before the call.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++

	return r.store.InvalidateAll(ctx)
}

func (r *Resolver) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.gen
}

// root returns the item the logical root maps to.
func (r *Resolver) root(ctx context.Context, gen uint64) (*graph.Item, error) {
	if item, ok := r.cachedItem(ctx, cache.RootKey); ok {
		return item, nil
	}

	item, err := r.remote.GetItemByPath(ctx, r.codec.ToRemote(pathcodec.Root()))
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, fmt.Errorf("%w: configured root %q", ErrNotFound, r.codec.Root().String())
		}

		return nil, err
	}

	r.storeItem(ctx, gen, cache.RootKey, item)

	return item, nil
}

// findChild looks up name among the children of parent. A miss in a cached
// listing is re-checked against a fresh one so an item created after the
// listing was cached is still found. Returns (nil, nil) when absent.
func (r *Resolver) findChild(ctx context.Context, gen uint64, parent *graph.Item, name string) (*graph.Item, error) {
	children, cached, err := r.children(ctx, gen, parent.ID, true)
	if err != nil {
		return nil, err
	}

	if child := matchName(children, name); child != nil {
		return child, nil
	}

	if !cached {
		return nil, nil
	}

	children, _, err = r.children(ctx, gen, parent.ID, false)
	if err != nil {
		return nil, err
	}

	return matchName(children, name), nil
}

// children returns the listing of folderID and whether it came from cache.
// Fresh listings are written back unless the cache was invalidated after gen.
func (r *Resolver) children(ctx context.Context, gen uint64, folderID string, useCache bool) ([]graph.Item, bool, error) {
	key := cache.ChildrenKey(folderID)

	if useCache {
		if data, ok := r.cacheGet(ctx, key); ok {
			var items []graph.Item
			if err := json.Unmarshal(data, &items); err == nil {
				return items, true, nil
			}

			r.logger.Warn("discarding undecodable cached listing", slog.String("key", key))
		}
	}

	items, err := r.remote.ListChildren(ctx, folderID)
	if err != nil {
		return nil, false, err
	}

	if data, err := json.Marshal(items); err == nil {
		r.cacheSet(ctx, gen, key, data)
	}

	return items, false, nil
}

// matchName returns the child whose name equals name exactly. OneDrive
// stores names NFC-normalized, the same form pathcodec produces.
func matchName(children []graph.Item, name string) *graph.Item {
	for i := range children {
		if children[i].Name == name {
			child := children[i]
			return &child
		}
	}

	return nil
}

func (r *Resolver) cachedItem(ctx context.Context, key string) (*graph.Item, bool) {
	data, ok := r.cacheGet(ctx, key)
	if !ok {
		return nil, false
	}

	var item graph.Item
	if err := json.Unmarshal(data, &item); err != nil {
		r.logger.Warn("discarding undecodable cached item", slog.String("key", key))
		return nil, false
	}

	return &item, true
}

func (r *Resolver) storeItem(ctx context.Context, gen uint64, key string, item *graph.Item) {
	data, err := json.Marshal(item)
	if err != nil {
		return
	}

	r.cacheSet(ctx, gen, key, data)
}

// cacheGet treats a failing store as a miss; the remote is authoritative.
func (r *Resolver) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		ok = false
	}

	r.metrics.ObserveCacheLookup(ok)

	return data, ok
}

// cacheSet writes data unless an invalidation happened after gen. The read
// lock keeps InvalidateAll from clearing the store between the check and
// the write.
func (r *Resolver) cacheSet(ctx context.Context, gen uint64, key string, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.gen != gen {
		r.logger.Debug("dropping cache write from before invalidation", slog.String("key", key))
		return
	}

	if err := r.store.Set(ctx, key, data); err != nil {
		r.logger.Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
