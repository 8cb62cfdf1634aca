// Package httpapi serves the gateway over HTTP: a chi router, a JSON
// envelope for every response, bearer-key admin auth and a websocket stream
// of cache invalidation events.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-index/internal/config"
	"github.com/tonimelisma/onedrive-index/internal/gateway"
	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/internal/metrics"
)

// RequestIDHeader carries the per-request correlation ID in both directions.
const RequestIDHeader = "X-Request-Id"

// Gateway is the operation surface the server exposes. *gateway.Service
// implements it.
type Gateway interface {
	UploadFile(ctx context.Context, in gateway.UploadFileInput) (*gateway.ItemResult, error)
	UploadImage(ctx context.Context, in gateway.UploadImageInput) (*gateway.ImageResult, error)
	CreateFolder(ctx context.Context, in gateway.CreateFolderInput) (*gateway.ItemResult, error)
	CreateTextFile(ctx context.Context, in gateway.CreateTextFileInput) (*gateway.ItemResult, error)
	EditTextFile(ctx context.Context, in gateway.EditTextFileInput) (*gateway.ItemResult, error)
	LockFolder(ctx context.Context, in gateway.LockFolderInput) (*gateway.ItemResult, error)
	DeleteItem(ctx context.Context, token string) (*gateway.Result, error)
	CopyItem(ctx context.Context, in gateway.CopyItemInput) (*gateway.CopyResult, error)
	MoveItem(ctx context.Context, in gateway.MoveItemInput) (*gateway.ItemResult, error)
	CreateShareLink(ctx context.Context, path string) (*gateway.LinkResult, error)
	DeleteShareLink(ctx context.Context, path string) (*gateway.Result, error)
	ReadTextFile(ctx context.Context, itemID string) (*gateway.TextFile, error)
	List(ctx context.Context, path string) (*gateway.Listing, error)
	IssueDeleteToken(ctx context.Context, path string) (string, error)
	Open(ctx context.Context, path string, passwords ...string) (*graph.Item, error)
	Download(ctx context.Context, itemID string, w io.Writer) (int64, error)
}

// Options configures a Server. Gateway and Config are required.
type Options struct {
	Gateway Gateway
	Config  *config.Holder
	Hub     *Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server routes HTTP requests to the gateway. Settings that may change on
// reload (admin keys, upload limit, image hosting) are read from the
// config holder per request.
type Server struct {
	gw       Gateway
	holder   *config.Holder
	hub      *Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// New builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Gateway == nil || opts.Config == nil {
		return nil, errors.New("httpapi: gateway and config are required")
	}

	s := &Server{
		gw:       opts.Gateway,
		holder:   opts.Config,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		validate: newValidator(),
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Handler returns the routed handler tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.accessLog, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/delete/{token}", s.handleDeleteItem)
	r.Delete("/delete/{token}", s.handleDeleteItem)
	r.Get("/view/*", s.handleView)

	r.Route("/api", func(r chi.Router) {
		r.Post("/image", s.handleUploadImage)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)

			r.Get("/list", s.handleList)
			r.Post("/upload", s.handleUploadFile)
			r.Post("/folders", s.handleCreateFolder)
			r.Post("/files", s.handleCreateTextFile)
			r.Get("/files/{id}", s.handleReadTextFile)
			r.Put("/files/{id}", s.handleEditTextFile)
			r.Post("/lock", s.handleLockFolder)
			r.Post("/copy", s.handleCopyItem)
			r.Post("/move", s.handleMoveItem)
			r.Post("/share", s.handleCreateShareLink)
			r.Post("/unshare", s.handleDeleteShareLink)
			r.Post("/tokens/delete", s.handleIssueDeleteToken)
			r.Get("/events", s.handleEvents)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeFailure(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeFailure(w, r, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	return r
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the correlation ID assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID keeps a caller-supplied UUID or assigns a fresh one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// accessLog logs and counts every request by route pattern. Query strings
// are never logged: they may carry passwords.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)

		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", elapsed),
			slog.String("request_id", RequestID(r.Context())),
		)
	})
}

// adminOnly requires "Authorization: Bearer <key>" matching one of the
// configured admin keys. With no keys configured every admin route is
// refused.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || key == "" || !s.knownKey(key) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="onedrive-index"`)
			s.writeFailure(w, r, http.StatusUnauthorized, codeUnauthorized, "admin key required")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) knownKey(key string) bool {
	match := 0

	for _, k := range s.holder.Config().Security.AdminKeys {
		match |= subtle.ConstantTimeCompare([]byte(k), []byte(key))
	}

	return match == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, r, http.StatusOK, "ok", nil)
}
