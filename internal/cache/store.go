// Package cache holds the process-wide key/value cache of drive items and
// folder listings. Every backend is safe for concurrent use and supports
// wholesale invalidation, which is the only consistency operation the
// mutation layer relies on.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("cache: unknown backend")

// Store is a string-keyed byte cache.
type Store interface {
	// Get returns the value for key. A missing or expired entry is
	// (nil, false, nil), never an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// InvalidateAll drops every entry.
	InvalidateAll(ctx context.Context) error
	Close() error
}

// Options configures Open.
type Options struct {
	Backend string
	// TTL bounds how long an entry lives. Zero means entries never expire
	// on their own and only InvalidateAll removes them.
	TTL time.Duration
	// Dir holds the on-disk state of the sqlite and badger backends.
	Dir    string
	Logger *slog.Logger
}

// Open returns the Store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening cache",
		slog.String("backend", opts.Backend),
		slog.Duration("ttl", opts.TTL),
		slog.String("dir", opts.Dir),
	)

	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(opts.TTL), nil
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(opts.Dir, "cache.db"), opts.TTL, logger)
	case BackendBadger:
		return OpenBadger(filepath.Join(opts.Dir, "badger"), opts.TTL, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Key helpers. Item entries are addressed by logical path, listings by the
// parent's item ID.
const (
	RootKey        = "root"
	itemPrefix     = "item:"
	childrenPrefix = "children:"
)

// ItemKey is the cache key of the item at a logical path.
func ItemKey(path string) string {
	return itemPrefix + path
}

// ChildrenKey is the cache key of a folder listing.
func ChildrenKey(folderID string) string {
	return childrenPrefix + folderID
}
