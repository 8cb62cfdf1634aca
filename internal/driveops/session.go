// Package driveops binds authenticated Graph clients to one drive. A
// Session is the remote the resolver reads through and the gateway mutates
// through; SessionProvider caches token sources so every session sharing a
// token file shares one refresh chain.
package driveops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	gosync "sync"

	"github.com/tonimelisma/onedrive-index/internal/driveid"
	"github.com/tonimelisma/onedrive-index/internal/graph"
)

// Target names the drive a session talks to.
type Target struct {
	BaseURL   string     // defaults to graph.DefaultBaseURL
	TokenPath string     // saved OAuth2 token
	DriveID   driveid.ID // zero means the signed-in user's default drive
}

// Session holds authenticated clients and the drive identity for a single
// drive. Meta (short timeout) serves metadata calls; Transfer (no overall
// timeout) carries uploads and downloads.
type Session struct {
	Meta     *graph.Client
	Transfer *graph.Client
	DriveID  driveid.ID
}

// SessionProvider caches TokenSources by token file path and creates Sessions
// on demand. Two independent refreshes of one refresh token can invalidate
// each other, so a token path only ever gets one TokenSource.
type SessionProvider struct {
	metaHTTP     *http.Client
	transferHTTP *http.Client
	userAgent    string
	logger       *slog.Logger

	// TokenSourceFn creates a TokenSource from a token file path. Exported
	// for test injection; defaults to graph.TokenSourceFromPath.
	TokenSourceFn func(ctx context.Context, tokenPath string, logger *slog.Logger) (graph.TokenSource, error)

	mu         gosync.Mutex
	tokenCache map[string]graph.TokenSource // keyed by token file path
}

// NewSessionProvider creates a SessionProvider with default TokenSourceFn.
func NewSessionProvider(metaHTTP, transferHTTP *http.Client, userAgent string, logger *slog.Logger) *SessionProvider {
	return &SessionProvider{
		metaHTTP:      metaHTTP,
		transferHTTP:  transferHTTP,
		userAgent:     userAgent,
		logger:        logger,
		TokenSourceFn: graph.TokenSourceFromPath,
		tokenCache:    make(map[string]graph.TokenSource),
	}
}

// Session creates an authenticated Session for t, reusing the cached
// TokenSource for t.TokenPath when there is one.
func (p *SessionProvider) Session(ctx context.Context, t Target) (*Session, error) {
	if t.TokenPath == "" {
		return nil, errors.New("driveops: cannot determine token path")
	}

	ts, err := p.getOrCreateTokenSource(ctx, t.TokenPath)
	if err != nil {
		if errors.Is(err, graph.ErrNotLoggedIn) {
			return nil, fmt.Errorf("not logged in, run 'onedrive-index login' first: %w", err)
		}

		return nil, err
	}

	baseURL := t.BaseURL
	if baseURL == "" {
		baseURL = graph.DefaultBaseURL
	}

	p.logger.Debug("session created",
		slog.String("drive_id", t.DriveID.String()),
		slog.String("base_url", baseURL),
	)

	return &Session{
		Meta:     graph.NewClient(baseURL, p.metaHTTP, ts, p.logger, p.userAgent),
		Transfer: graph.NewClient(baseURL, p.transferHTTP, ts, p.logger, p.userAgent),
		DriveID:  t.DriveID,
	}, nil
}

// getOrCreateTokenSource returns a cached TokenSource for the given token
// path, creating one on cache miss. Thread-safe via mutex.
func (p *SessionProvider) getOrCreateTokenSource(ctx context.Context, tokenPath string) (graph.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ts, ok := p.tokenCache[tokenPath]; ok {
		return ts, nil
	}

	ts, err := p.TokenSourceFn(ctx, tokenPath, p.logger)
	if err != nil {
		return nil, err
	}

	p.tokenCache[tokenPath] = ts

	return ts, nil
}

// GetItemByPath fetches the item at an escaped, root-prefixed remote path.
func (s *Session) GetItemByPath(ctx context.Context, remote string) (*graph.Item, error) {
	return s.Meta.GetItemByPath(ctx, s.DriveID, remote)
}

// ListChildren lists every child of a folder, following pagination.
func (s *Session) ListChildren(ctx context.Context, folderID string) ([]graph.Item, error) {
	return s.Meta.ListChildren(ctx, s.DriveID, folderID)
}

// GetItem fetches an item by ID.
func (s *Session) GetItem(ctx context.Context, itemID string) (*graph.Item, error) {
	return s.Meta.GetItem(ctx, s.DriveID, itemID)
}

// UploadByPath writes r to the remote path, creating or replacing the file.
func (s *Session) UploadByPath(ctx context.Context, remote string, r io.Reader, size int64) (*graph.Item, error) {
	return s.Transfer.UploadByPath(ctx, s.DriveID, remote, r, size)
}

// UploadByID replaces an existing file's content.
func (s *Session) UploadByID(ctx context.Context, itemID string, r io.Reader, size int64) (*graph.Item, error) {
	return s.Transfer.UploadByID(ctx, s.DriveID, itemID, r, size)
}

// CreateFolder creates name under parentID, failing if it already exists.
func (s *Session) CreateFolder(ctx context.Context, parentID, name string) (*graph.Item, error) {
	return s.Meta.CreateFolder(ctx, s.DriveID, parentID, name)
}

// DeleteItem deletes an item; a non-empty etag makes the delete conditional.
func (s *Session) DeleteItem(ctx context.Context, itemID, etag string) error {
	return s.Meta.DeleteItem(ctx, s.DriveID, itemID, etag)
}

// CopyItem starts an asynchronous copy into destParentID, keeping the name.
func (s *Session) CopyItem(ctx context.Context, itemID, destParentID string) (*graph.CopyMonitor, error) {
	return s.Meta.CopyItem(ctx, s.DriveID, itemID, destParentID, "")
}

// MoveItem reparents and optionally renames an item.
func (s *Session) MoveItem(ctx context.Context, itemID, destParentID, newName string) (*graph.Item, error) {
	return s.Meta.MoveItem(ctx, s.DriveID, itemID, destParentID, newName)
}

// CreateShareLink creates an anonymous view link.
func (s *Session) CreateShareLink(ctx context.Context, itemID string) (*graph.Link, error) {
	return s.Meta.CreateShareLink(ctx, s.DriveID, itemID)
}

// DeleteShareLinks revokes every link permission on the item.
func (s *Session) DeleteShareLinks(ctx context.Context, itemID string) (int, error) {
	return s.Meta.DeleteShareLinks(ctx, s.DriveID, itemID)
}

// Download streams a file's content to w.
func (s *Session) Download(ctx context.Context, itemID string, w io.Writer) (int64, error) {
	return s.Transfer.Download(ctx, s.DriveID, itemID, w)
}

// Drive describes the bound drive.
func (s *Session) Drive(ctx context.Context) (*graph.Drive, error) {
	return s.Meta.Drive(ctx, s.DriveID)
}

// Me returns the signed-in account.
func (s *Session) Me(ctx context.Context) (*graph.User, error) {
	return s.Meta.Me(ctx)
}
