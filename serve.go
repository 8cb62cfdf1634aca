package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-index/internal/cache"
	"github.com/tonimelisma/onedrive-index/internal/config"
	"github.com/tonimelisma/onedrive-index/internal/httpapi"
	"github.com/tonimelisma/onedrive-index/internal/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Serve the index over HTTP. Anonymous callers may upload images (when
image hosting is enabled), view files and delete items through capability
links. Every /api route except /api/image needs an admin key.

The config file is watched and re-read on change or SIGHUP; settings that
cannot change at runtime are reported and keep their old value.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	releasePID, err := writePIDFile(pidFilePath(cc.Cfg))
	if err != nil {
		return err
	}
	defer releasePID()

	ctx := shutdownContext(cmd.Context(), logger)

	m := metrics.New(prometheus.NewRegistry())
	hub := httpapi.NewHub(logger)

	st, err := newStack(ctx, cc, serviceDeps{Metrics: m, Listener: hub})
	if err != nil {
		return err
	}
	defer st.Close(logger)

	holder := config.NewHolder(cc.Cfg, cc.CfgPath)

	api, err := httpapi.New(httpapi.Options{
		Gateway: st.Service,
		Config:  holder,
		Hub:     hub,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cc.Cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cc.Cfg.Server.Listen, err)
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	rl := &reloader{holder: holder, env: cc.Env, cli: cc.CLI, level: cc.Level, logger: logger}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving",
			slog.String("listen", ln.Addr().String()),
			slog.String("public_url", publicURL(cc.Cfg)),
			slog.Bool("image_hosting", cc.Cfg.ImageHosting.Enabled),
		)

		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		logger.Info("server stopped")

		return nil
	})

	g.Go(func() error {
		// Without a watcher SIGHUP still reloads.
		if err := watchConfig(gctx, cc.CfgPath, logger, func() { rl.reload("file changed") }); err != nil {
			logger.Warn("config file watching disabled", slog.String("error", err.Error()))
		}

		return nil
	})

	g.Go(func() error {
		hup := reloadSignals(gctx)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				rl.reload("SIGHUP")
			}
		}
	})

	if p, ok := st.Store.(purger); ok {
		g.Go(func() error {
			purgeLoop(gctx, p, cc.Cfg.CacheTTL(), logger)
			return nil
		})
	}

	return g.Wait()
}

// purger is implemented by cache backends whose expired rows are not
// reclaimed on their own.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

var _ purger = (*cache.SQLite)(nil)

// purgeLoop removes expired cache rows once per TTL.
func purgeLoop(ctx context.Context, p purger, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("cache purge failed", slog.String("error", err.Error()))
				continue
			}

			logger.Debug("cache purged", slog.Int64("rows", n))
		}
	}
}
