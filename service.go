package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/tonimelisma/onedrive-index/internal/cache"
	"github.com/tonimelisma/onedrive-index/internal/captoken"
	"github.com/tonimelisma/onedrive-index/internal/config"
	"github.com/tonimelisma/onedrive-index/internal/driveid"
	"github.com/tonimelisma/onedrive-index/internal/driveops"
	"github.com/tonimelisma/onedrive-index/internal/gateway"
	"github.com/tonimelisma/onedrive-index/internal/metrics"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
	"github.com/tonimelisma/onedrive-index/internal/resolver"
)

// httpClients builds the metadata client (bounded by data_timeout) and the
// transfer client (no overall timeout). Both dial with connect_timeout.
func httpClients(cfg *config.Config) (meta, transfer *http.Client) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout()

	meta = &http.Client{Transport: transport, Timeout: cfg.DataTimeout()}
	transfer = &http.Client{Transport: transport}

	return meta, transfer
}

// newSession authenticates against the configured drive.
func newSession(ctx context.Context, cc *CLIContext) (*driveops.Session, error) {
	meta, transfer := httpClients(cc.Cfg)
	provider := driveops.NewSessionProvider(meta, transfer, cc.Cfg.Network.UserAgent, cc.Logger)

	return provider.Session(ctx, driveops.Target{
		BaseURL:   cc.Cfg.Graph.BaseURL,
		TokenPath: cc.Cfg.Graph.TokenPath,
		DriveID:   driveid.New(cc.Cfg.Graph.DriveID),
	})
}

// serviceDeps carries the optional collaborators serve wires in.
type serviceDeps struct {
	Metrics  *metrics.Metrics
	Listener gateway.Listener
}

// stack is everything a gateway needs, so callers can close the cache.
type stack struct {
	Service *gateway.Service
	Session *driveops.Session
	Store   cache.Store
}

func (s *stack) Close(logger *slog.Logger) {
	if err := s.Store.Close(); err != nil {
		logger.Warn("closing cache", slog.String("error", err.Error()))
	}
}

// newStack wires session, cache, resolver, token codec and gateway from the
// resolved config.
func newStack(ctx context.Context, cc *CLIContext, deps serviceDeps) (*stack, error) {
	cfg := cc.Cfg

	root, err := pathcodec.Parse(cfg.Graph.RootPath)
	if err != nil {
		return nil, fmt.Errorf("graph.root_path: %w", err)
	}

	imagePath, err := pathcodec.Parse(cfg.ImageHosting.Path)
	if err != nil {
		return nil, fmt.Errorf("image_hosting.path: %w", err)
	}

	tokens, err := captoken.New([]byte(cfg.Security.AppSecret))
	if err != nil {
		return nil, fmt.Errorf("security.app_secret: %w", err)
	}

	sess, err := newSession(ctx, cc)
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(ctx, cache.Options{
		Backend: cfg.Cache.Backend,
		TTL:     cfg.CacheTTL(),
		Dir:     cfg.Cache.Dir,
		Logger:  cc.Logger,
	})
	if err != nil {
		return nil, err
	}

	res := resolver.New(sess, store, pathcodec.NewCodec(root), cc.Logger, deps.Metrics)

	svc, err := gateway.New(gateway.Options{
		Remote:    sess,
		Resolver:  res,
		Tokens:    tokens,
		ImagePath: imagePath,
		PublicURL: publicURL(cfg),
		Logger:    cc.Logger,
		Metrics:   deps.Metrics,
		Listener:  deps.Listener,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &stack{Service: svc, Session: sess, Store: store}, nil
}

// publicURL is the configured public_url, or the listen address when unset.
func publicURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return cfg.Server.PublicURL
	}

	return "http://" + cfg.Server.Listen
}
