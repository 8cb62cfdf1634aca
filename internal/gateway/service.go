// Package gateway sequences every mutation of the drive: decode the caller's
// token or path, resolve at most what the remote call needs, issue exactly
// one mutating request, then drop the whole listing cache. Every failure
// leaves the package as a *Error with a closed Kind.
package gateway

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-index/internal/captoken"
	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/internal/metrics"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
	"github.com/tonimelisma/onedrive-index/internal/resolver"
)

// Operation names, used in errors, logs, metrics and events.
const (
	OpUploadFile      = "uploadFile"
	OpUploadImage     = "uploadImage"
	OpCreateFolder    = "createFolder"
	OpCreateTextFile  = "createTextFile"
	OpEditTextFile    = "editTextFile"
	OpLockFolder      = "lockFolder"
	OpDeleteItem      = "deleteItem"
	OpCopyItem        = "copyItem"
	OpMoveItem        = "moveItem"
	OpCreateShareLink = "createShareLink"
	OpDeleteShareLink = "deleteShareLink"
	OpReadTextFile    = "readTextFile"
	OpList            = "list"
	OpIssueToken      = "issueToken"
	OpOpen            = "open"
)

const (
	// LockFileName marks a folder as password protected. Its content is the
	// plaintext password.
	LockFileName = ".password"

	// DefaultLockPassword is used when LockFolder gets no password.
	DefaultLockPassword = "12345678"

	textFileSuffix    = ".md"
	imageSegmentLen   = 8
	imageSegmentChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Remote is the drive API surface the gateway mutates through. Item IDs are
// opaque; remote paths are escaped and root-prefixed by pathcodec.
type Remote interface {
	UploadByPath(ctx context.Context, remote string, r io.Reader, size int64) (*graph.Item, error)
	UploadByID(ctx context.Context, itemID string, r io.Reader, size int64) (*graph.Item, error)
	GetItem(ctx context.Context, itemID string) (*graph.Item, error)
	CreateFolder(ctx context.Context, parentID, name string) (*graph.Item, error)
	DeleteItem(ctx context.Context, itemID, etag string) error
	CopyItem(ctx context.Context, itemID, destParentID string) (*graph.CopyMonitor, error)
	MoveItem(ctx context.Context, itemID, destParentID, newName string) (*graph.Item, error)
	CreateShareLink(ctx context.Context, itemID string) (*graph.Link, error)
	DeleteShareLinks(ctx context.Context, itemID string) (int, error)
	Download(ctx context.Context, itemID string, w io.Writer) (int64, error)
}

// Event describes one cache invalidation after a successful mutation.
type Event struct {
	Op   string    `json:"op"`
	Path string    `json:"path,omitempty"`
	At   time.Time `json:"at"`
}

// Listener is told about every invalidation. Implementations must not block.
type Listener interface {
	Invalidated(Event)
}

// Options configures a Service. Remote, Resolver and Tokens are required.
// The cache is reached through the Resolver, which owns invalidation.
type Options struct {
	Remote   Remote
	Resolver *resolver.Resolver
	Tokens   *captoken.Codec

	// ImagePath is the logical folder anonymous image uploads land under.
	ImagePath pathcodec.Path
	// PublicURL prefixes the view and delete URLs handed back for images.
	PublicURL string

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Listener Listener

	// Now and Rand default to time.Now and crypto/rand.
	Now  func() time.Time
	Rand io.Reader
}

// Service runs gateway operations. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	remote    Remote
	resolver  *resolver.Resolver
	codec     pathcodec.Codec
	tokens    *captoken.Codec
	imagePath pathcodec.Path
	publicURL string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	listener  Listener
	now       func() time.Time
	rand      io.Reader
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Remote == nil || opts.Resolver == nil || opts.Tokens == nil {
		return nil, errors.New("gateway: remote, resolver and tokens are required")
	}

	s := &Service{
		remote:    opts.Remote,
		resolver:  opts.Resolver,
		codec:     opts.Resolver.Codec(),
		tokens:    opts.Tokens,
		imagePath: opts.ImagePath,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		listener:  opts.Listener,
		now:       opts.Now,
		rand:      opts.Rand,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.rand == nil {
		s.rand = crand.Reader
	}

	return s, nil
}

// Result is returned by operations that have nothing but a message to report.
type Result struct {
	Message string `json:"-"`
}

// ItemResult carries the item a mutation produced.
type ItemResult struct {
	Message string      `json:"-"`
	Item    *graph.Item `json:"item"`
}

// ImageResult is returned by UploadImage. DeleteURL embeds a capability
// that deletes exactly this version of the image without authentication.
type ImageResult struct {
	Message   string      `json:"-"`
	Item      *graph.Item `json:"item"`
	Path      string      `json:"path"`
	ViewURL   string      `json:"url"`
	DeleteURL string      `json:"delete,omitempty"`
}

// CopyResult holds the monitor URL of an asynchronous copy.
type CopyResult struct {
	Message    string `json:"-"`
	MonitorURL string `json:"monitor_url"`
}

// LinkResult holds a created share link.
type LinkResult struct {
	Message string `json:"-"`
	URL     string `json:"url"`
}

// TextFile is the current content of a text file opened for editing.
type TextFile struct {
	Item    *graph.Item `json:"item"`
	Content string      `json:"content"`
}

// Listing is one folder's children plus the navigation token that
// createFolder, createTextFile and lockFolder accept for it.
type Listing struct {
	Path  string       `json:"path"`
	Token string       `json:"token"`
	Items []graph.Item `json:"items"`
}

// UploadFileInput names where an uploaded file goes.
type UploadFileInput struct {
	Folder   string // logical folder path; "" is the root
	Filename string
	Content  io.Reader
	Size     int64
}

// UploadImageInput is an anonymous image upload.
type UploadImageInput struct {
	Filename string
	Content  io.Reader
	Size     int64
}

// CreateFolderInput creates Name inside the folder ParentToken names.
type CreateFolderInput struct {
	ParentToken string
	Name        string
}

// CreateTextFileInput creates Name + ".md" inside the folder ParentToken names.
type CreateTextFileInput struct {
	ParentToken string
	Name        string
	Content     string
}

// EditTextFileInput replaces the content of an existing file.
type EditTextFileInput struct {
	ItemID  string
	Content string
}

// LockFolderInput writes the lock marker into the folder FolderToken names.
type LockFolderInput struct {
	FolderToken string
	Password    string
}

// CopyItemInput copies Source into the Destination folder.
type CopyItemInput struct {
	Source      string
	Destination string
}

// MoveItemInput moves Source into the Destination folder, optionally
// renaming it.
type MoveItemInput struct {
	Source      string
	Destination string
	NewName     string
}

// UploadFile stores Content at Folder/Filename, replacing any file there.
// Nothing is resolved: the remote creates missing parent folders.
func (s *Service) UploadFile(ctx context.Context, in UploadFileInput) (res *ItemResult, err error) {
	defer s.observe(OpUploadFile, time.Now(), &err)

	folder, err := pathcodec.Parse(in.Folder)
	if err != nil {
		return nil, err
	}

	dest, err := folder.Join(in.Filename)
	if err != nil {
		return nil, err
	}

	item, err := s.uploadByPath(ctx, OpUploadFile, s.codec.ToRemote(dest), in.Content, in.Size)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpUploadFile, dest)

	return &ItemResult{Message: "File uploaded", Item: item}, nil
}

// UploadImage stores an image under ImagePath/YYYY/MM/DD/<random>/filename
// and hands back a view URL plus a delete URL bound to the stored version.
func (s *Service) UploadImage(ctx context.Context, in UploadImageInput) (res *ImageResult, err error) {
	defer s.observe(OpUploadImage, time.Now(), &err)

	dest, err := s.imageDestination(in.Filename)
	if err != nil {
		return nil, err
	}

	item, err := s.uploadByPath(ctx, OpUploadImage, s.codec.ToRemote(dest), in.Content, in.Size)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpUploadImage, dest)

	res = &ImageResult{
		Message: "Image uploaded",
		Item:    item,
		Path:    dest.String(),
		ViewURL: s.publicURL + "/view" + dest.Escaped(),
	}

	if item.ETag == "" {
		s.logger.Warn("uploaded image has no etag, not issuing a delete link",
			slog.String("item_id", item.ID),
		)

		return res, nil
	}

	token, err := s.tokens.EncodeDeleteToken(item.ID, item.ETag)
	if err != nil {
		// The upload already happened; report it without a delete link.
		s.logger.Warn("could not issue delete token",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)

		return res, nil
	}

	res.DeleteURL = s.publicURL + "/delete/" + token

	return res, nil
}

func (s *Service) imageDestination(filename string) (pathcodec.Path, error) {
	segment, err := randomSegment(s.rand, imageSegmentLen)
	if err != nil {
		return pathcodec.Path{}, err
	}

	now := s.now()
	dest := s.imagePath

	for _, seg := range []string{now.Format("2006"), now.Format("01"), now.Format("02"), segment} {
		// Date digits and alphanumerics always form valid segments.
		dest, _ = dest.Join(seg)
	}

	return dest.Join(filename)
}

// CreateFolder creates Name inside the folder the parent token names.
func (s *Service) CreateFolder(ctx context.Context, in CreateFolderInput) (res *ItemResult, err error) {
	defer s.observe(OpCreateFolder, time.Now(), &err)

	parentPath, err := s.tokens.DecodePath(in.ParentToken)
	if err != nil {
		return nil, err
	}

	target, err := parentPath.Join(in.Name)
	if err != nil {
		return nil, err
	}

	parent, err := s.resolver.Resolve(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	if !parent.IsFolder {
		return nil, invalidInput(OpCreateFolder, "%q is not a folder", parentPath.String())
	}

	item, err := s.remote.CreateFolder(ctx, parent.ID, target.Base())
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpCreateFolder, target)

	return &ItemResult{Message: "Folder created", Item: item}, nil
}

// CreateTextFile writes Content to Name.md inside the folder the parent
// token names.
func (s *Service) CreateTextFile(ctx context.Context, in CreateTextFileInput) (res *ItemResult, err error) {
	defer s.observe(OpCreateTextFile, time.Now(), &err)

	parentPath, err := s.tokens.DecodePath(in.ParentToken)
	if err != nil {
		return nil, err
	}

	dest, err := parentPath.Join(in.Name + textFileSuffix)
	if err != nil {
		return nil, err
	}

	item, err := s.uploadByPath(ctx, OpCreateTextFile, s.codec.ToRemote(dest),
		strings.NewReader(in.Content), int64(len(in.Content)))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpCreateTextFile, dest)

	return &ItemResult{Message: "File created", Item: item}, nil
}

// EditTextFile replaces the content of the file with the given ID in place.
func (s *Service) EditTextFile(ctx context.Context, in EditTextFileInput) (res *ItemResult, err error) {
	defer s.observe(OpEditTextFile, time.Now(), &err)

	if err := checkItemID(OpEditTextFile, in.ItemID); err != nil {
		return nil, err
	}

	item, err := s.uploadByID(ctx, OpEditTextFile, in.ItemID, strings.NewReader(in.Content), int64(len(in.Content)))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpEditTextFile, pathcodec.Root())

	return &ItemResult{Message: "File updated", Item: item}, nil
}

// LockFolder writes the password marker into the folder the token names.
// An existing marker is overwritten.
func (s *Service) LockFolder(ctx context.Context, in LockFolderInput) (res *ItemResult, err error) {
	defer s.observe(OpLockFolder, time.Now(), &err)

	folder, err := s.tokens.DecodePath(in.FolderToken)
	if err != nil {
		return nil, err
	}

	password := in.Password
	if password == "" {
		password = DefaultLockPassword
	}

	// LockFileName is a constant valid segment.
	marker, _ := folder.Join(LockFileName)

	item, err := s.uploadByPath(ctx, OpLockFolder, s.codec.ToRemote(marker),
		strings.NewReader(password), int64(len(password)))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpLockFolder, folder)

	return &ItemResult{Message: "Folder locked, remember the password", Item: item}, nil
}

// DeleteItem deletes the item a delete token names, but only while the
// item is still at the version the token was issued for.
func (s *Service) DeleteItem(ctx context.Context, token string) (res *Result, err error) {
	defer s.observe(OpDeleteItem, time.Now(), &err)

	itemID, tag, err := s.tokens.DecodeDeleteToken(token)
	if err != nil {
		return nil, err
	}

	if tag == "" {
		return nil, fmt.Errorf("%w: token names no version", captoken.ErrTokenInvalid)
	}

	if err := s.remote.DeleteItem(ctx, itemID, tag); err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpDeleteItem, pathcodec.Root())

	return &Result{Message: "File deleted"}, nil
}

// CopyItem starts a server-side copy of source into the destination
// folder. The copy completes asynchronously.
func (s *Service) CopyItem(ctx context.Context, in CopyItemInput) (res *CopyResult, err error) {
	defer s.observe(OpCopyItem, time.Now(), &err)

	src, dst, err := s.resolveTransfer(ctx, OpCopyItem, in.Source, in.Destination)
	if err != nil {
		return nil, err
	}

	monitor, err := s.remote.CopyItem(ctx, src.item.ID, dst.item.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpCopyItem, dst.path)

	return &CopyResult{Message: "Copy started", MonitorURL: monitor.URL}, nil
}

// MoveItem moves source into the destination folder, renaming it when
// NewName is set.
func (s *Service) MoveItem(ctx context.Context, in MoveItemInput) (res *ItemResult, err error) {
	defer s.observe(OpMoveItem, time.Now(), &err)

	if in.NewName != "" {
		if _, err := pathcodec.Root().Join(in.NewName); err != nil {
			return nil, err
		}
	}

	src, dst, err := s.resolveTransfer(ctx, OpMoveItem, in.Source, in.Destination)
	if err != nil {
		return nil, err
	}

	if dst.path.HasPrefix(src.path) {
		return nil, invalidInput(OpMoveItem, "cannot move %q into itself", src.path.String())
	}

	item, err := s.remote.MoveItem(ctx, src.item.ID, dst.item.ID, in.NewName)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpMoveItem, dst.path)

	return &ItemResult{Message: "Item moved", Item: item}, nil
}

type resolved struct {
	path pathcodec.Path
	item *graph.Item
}

// resolveTransfer parses and resolves a copy or move pair. The source may
// not be the root and the destination must be a folder.
func (s *Service) resolveTransfer(ctx context.Context, op, source, destination string) (resolved, resolved, error) {
	srcPath, err := pathcodec.Parse(source)
	if err != nil {
		return resolved{}, resolved{}, err
	}

	if srcPath.IsRoot() {
		return resolved{}, resolved{}, invalidInput(op, "the root cannot be copied or moved")
	}

	dstPath, err := pathcodec.Parse(destination)
	if err != nil {
		return resolved{}, resolved{}, err
	}

	srcItem, dstItem, err := s.resolver.ResolvePair(ctx, srcPath, dstPath)
	if err != nil {
		return resolved{}, resolved{}, err
	}

	if !dstItem.IsFolder {
		return resolved{}, resolved{}, invalidInput(op, "destination %q is not a folder", dstPath.String())
	}

	return resolved{srcPath, srcItem}, resolved{dstPath, dstItem}, nil
}

// CreateShareLink creates an anonymous view link on the item at path.
func (s *Service) CreateShareLink(ctx context.Context, path string) (res *LinkResult, err error) {
	defer s.observe(OpCreateShareLink, time.Now(), &err)

	item, err := s.resolvePath(ctx, path)
	if err != nil {
		return nil, err
	}

	link, err := s.remote.CreateShareLink(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpCreateShareLink, pathcodec.Root())

	return &LinkResult{Message: "Share link created", URL: link.URL}, nil
}

// DeleteShareLink revokes every share link on the item at path.
func (s *Service) DeleteShareLink(ctx context.Context, path string) (res *Result, err error) {
	defer s.observe(OpDeleteShareLink, time.Now(), &err)

	item, err := s.resolvePath(ctx, path)
	if err != nil {
		return nil, err
	}

	n, err := s.remote.DeleteShareLinks(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, OpDeleteShareLink, pathcodec.Root())

	return &Result{Message: fmt.Sprintf("Share link removed (%d)", n)}, nil
}

// ReadTextFile returns the current content of a file for editing. Files
// above the single-request upload limit are refused since they could not
// be saved back.
func (s *Service) ReadTextFile(ctx context.Context, itemID string) (tf *TextFile, err error) {
	defer s.observe(OpReadTextFile, time.Now(), &err)

	if err := checkItemID(OpReadTextFile, itemID); err != nil {
		return nil, err
	}

	item, err := s.remote.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.IsFolder {
		return nil, invalidInput(OpReadTextFile, "%q is a folder", item.Name)
	}

	if item.Size > graph.SimpleUploadMaxSize {
		return nil, fmt.Errorf("%w: %q is too large to edit", graph.ErrTooLarge, item.Name)
	}

	var buf bytes.Buffer
	if _, err := s.remote.Download(ctx, itemID, &buf); err != nil {
		return nil, err
	}

	return &TextFile{Item: item, Content: buf.String()}, nil
}

// List returns the children of the folder at path, cache-assisted.
func (s *Service) List(ctx context.Context, path string) (l *Listing, err error) {
	defer s.observe(OpList, time.Now(), &err)

	p, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}

	items, err := s.resolver.Children(ctx, p)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.EncodePath(p)
	if err != nil {
		return nil, err
	}

	return &Listing{Path: p.String(), Token: token, Items: items}, nil
}

// IssuePathToken mints the navigation token for a folder path.
func (s *Service) IssuePathToken(path string) (token string, err error) {
	defer s.observe(OpIssueToken, time.Now(), &err)

	p, err := pathcodec.Parse(path)
	if err != nil {
		return "", err
	}

	return s.tokens.EncodePath(p)
}

// IssueDeleteToken resolves path and mints a delete token bound to the
// item's current version.
func (s *Service) IssueDeleteToken(ctx context.Context, path string) (token string, err error) {
	defer s.observe(OpIssueToken, time.Now(), &err)

	item, err := s.resolvePath(ctx, path)
	if err != nil {
		return "", err
	}

	if item.ETag == "" {
		return "", invalidInput(OpIssueToken, "%q has no version tag", path)
	}

	return s.tokens.EncodeDeleteToken(item.ID, item.ETag)
}

// Open resolves a file for anonymous viewing. Every ancestor folder holding
// a lock marker must be unlocked by one of passwords, so nested locks with
// different passwords need one entry each. The marker itself is never
// served.
func (s *Service) Open(ctx context.Context, path string, passwords ...string) (item *graph.Item, err error) {
	defer s.observe(OpOpen, time.Now(), &err)

	p, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}

	if p.Base() == LockFileName {
		return nil, fmt.Errorf("%w: %q", resolver.ErrNotFound, p.String())
	}

	item, err = s.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	if item.IsFolder {
		return nil, invalidInput(OpOpen, "%q is a folder", p.String())
	}

	for dir := p.Parent(); ; dir = dir.Parent() {
		if err := s.checkLock(ctx, dir, passwords); err != nil {
			return nil, err
		}

		if dir.IsRoot() {
			break
		}
	}

	return item, nil
}

// checkLock fails with ErrLocked when dir carries a lock marker whose
// content matches none of passwords. The listing is always read fresh: a
// cached one may predate the marker.
func (s *Service) checkLock(ctx context.Context, dir pathcodec.Path, passwords []string) error {
	children, err := s.resolver.FreshChildren(ctx, dir)
	if err != nil {
		return err
	}

	var marker *graph.Item

	for i := range children {
		if children[i].Name == LockFileName && !children[i].IsFolder {
			marker = &children[i]
			break
		}
	}

	if marker == nil {
		return nil
	}

	var buf bytes.Buffer
	if _, err := s.remote.Download(ctx, marker.ID, &buf); err != nil {
		return err
	}

	for _, password := range passwords {
		if subtle.ConstantTimeCompare(buf.Bytes(), []byte(password)) == 1 {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrLocked, dir.String())
}

// Download streams the content of a file opened with Open.
func (s *Service) Download(ctx context.Context, itemID string, w io.Writer) (n int64, err error) {
	defer s.observe(OpOpen, time.Now(), &err)

	if err := checkItemID(OpOpen, itemID); err != nil {
		return 0, err
	}

	return s.remote.Download(ctx, itemID, w)
}

func (s *Service) resolvePath(ctx context.Context, path string) (*graph.Item, error) {
	p, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}

	return s.resolver.Resolve(ctx, p)
}

// invalidate drops the whole cache once after a successful mutation. It
// runs detached from ctx so a caller that hangs up right after the remote
// call still leaves a clean cache. Failure is logged and counted only.
func (s *Service) invalidate(ctx context.Context, op string, p pathcodec.Path) {
	err := s.resolver.InvalidateAll(context.WithoutCancel(ctx))
	s.metrics.ObserveInvalidation(err)

	if err != nil {
		s.logger.Error("CacheInvalidationFailed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return
	}

	if s.listener != nil {
		s.listener.Invalidated(Event{Op: op, Path: p.String(), At: s.now()})
	}
}

// observe normalizes *errp in place and records the outcome.
func (s *Service) observe(op string, start time.Time, errp *error) {
	elapsed := time.Since(start)

	if *errp == nil {
		s.metrics.ObserveOperation(op, "ok", elapsed)
		s.logger.Debug("operation succeeded",
			slog.String("op", op),
			slog.Duration("elapsed", elapsed),
		)

		return
	}

	gwErr := normalize(op, *errp)
	*errp = gwErr

	s.metrics.ObserveOperation(op, string(gwErr.Kind), elapsed)

	level := slog.LevelInfo
	if gwErr.Kind == KindRemoteUnavailable {
		level = slog.LevelWarn
	}

	s.logger.Log(context.Background(), level, "operation failed",
		slog.String("op", op),
		slog.String("kind", string(gwErr.Kind)),
		slog.String("error", gwErr.Message),
	)
}

// checkItemID rejects IDs that would change the request URL when spliced
// into an item path.
func checkItemID(op, id string) error {
	if id == "" || strings.ContainsAny(id, "/?#% \t\r\n") {
		return invalidInput(op, "invalid item id %q", id)
	}

	return nil
}

// randomSegment returns n characters drawn uniformly from imageSegmentChars.
func randomSegment(r io.Reader, n int) (string, error) {
	// Largest multiple of the alphabet size that fits in a byte; bytes at
	// or above it are rejected to avoid modulo bias.
	limit := byte(256 - 256%len(imageSegmentChars))

	out := make([]byte, 0, n)
	buf := make([]byte, n)

	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("gateway: reading random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= limit {
				continue
			}

			out = append(out, imageSegmentChars[int(b)%len(imageSegmentChars)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}
