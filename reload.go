package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-index/internal/config"
)

// reloadDebounce absorbs the burst of events an editor produces for a
// single save.
const reloadDebounce = 500 * time.Millisecond

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running server to re-read its config file",
		Long: `Send SIGHUP to the running "onedrive-index serve". The server also picks up
config file changes on its own; use this when the file lives somewhere the
watcher cannot see, such as a bind mount.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(pidFilePath(cc.Cfg)); err != nil {
				return err
			}

			cc.Statusf("Reload requested.\n")

			return nil
		},
	}
}

// reloader swaps in a fresh config and applies the parts that can change
// at runtime: log level, admin keys, upload limit and image hosting.
// Everything else needs a restart and only produces a warning.
type reloader struct {
	holder *config.Holder
	env    config.EnvOverrides
	cli    config.CLIOverrides
	level  *slog.LevelVar
	logger *slog.Logger
}

func (r *reloader) reload(reason string) {
	old := r.holder.Config()

	cfg, err := r.holder.Reload(r.env, r.cli)
	if err != nil {
		r.logger.Warn("config reload failed, keeping current config",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)

		return
	}

	r.level.Set(parseLevel(cfg.Logging.LogLevel))

	for _, key := range restartRequired(old, cfg) {
		r.logger.Warn("config change takes effect after restart", slog.String("key", key))
	}

	r.logger.Info("config reloaded",
		slog.String("reason", reason),
		slog.String("path", r.holder.Path()),
		slog.Int("admin_keys", len(cfg.Security.AdminKeys)),
	)
}

// restartRequired lists changed keys that a running server cannot apply.
func restartRequired(old, cfg *config.Config) []string {
	var keys []string

	check := func(key, a, b string) {
		if a != b {
			keys = append(keys, key)
		}
	}

	check("graph.base_url", old.Graph.BaseURL, cfg.Graph.BaseURL)
	check("graph.drive_id", old.Graph.DriveID, cfg.Graph.DriveID)
	check("graph.root_path", old.Graph.RootPath, cfg.Graph.RootPath)
	check("graph.token_path", old.Graph.TokenPath, cfg.Graph.TokenPath)
	check("image_hosting.path", old.ImageHosting.Path, cfg.ImageHosting.Path)
	check("security.app_secret", old.Security.AppSecret, cfg.Security.AppSecret)
	check("cache.backend", old.Cache.Backend, cfg.Cache.Backend)
	check("cache.ttl", old.Cache.TTL, cfg.Cache.TTL)
	check("cache.dir", old.Cache.Dir, cfg.Cache.Dir)
	check("server.listen", old.Server.Listen, cfg.Server.Listen)
	check("server.public_url", old.Server.PublicURL, cfg.Server.PublicURL)
	check("logging.log_format", old.Logging.LogFormat, cfg.Logging.LogFormat)
	check("network.connect_timeout", old.Network.ConnectTimeout, cfg.Network.ConnectTimeout)
	check("network.data_timeout", old.Network.DataTimeout, cfg.Network.DataTimeout)
	check("network.user_agent", old.Network.UserAgent, cfg.Network.UserAgent)

	return keys
}

// watchConfig calls onChange, debounced, whenever the config file is
// written, created or renamed into place. The parent directory is watched
// because editors often replace the file instead of writing it.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		if os.IsNotExist(err) {
			logger.Info("config directory does not exist, file watching disabled",
				slog.String("dir", dir),
			)

			return nil
		}

		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce.Reset(reloadDebounce)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))

		case <-debounce.C:
			onChange()
		}
	}
}
