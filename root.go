package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-index/internal/config"
	"github.com/tonimelisma/onedrive-index/internal/gateway"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that load config themselves (login
// and logout must work before a valid config exists).
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flag values.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once in the root pre-run and handed to every
// subcommand through the command context.
type CLIContext struct {
	Flags   CLIFlags
	Env     config.EnvOverrides
	CLI     config.CLIOverrides
	Cfg     *config.Config // nil for commands that skip config loading
	CfgPath string
	Logger  *slog.Logger
	Out     io.Writer

	// Level backs Logger so serve can change verbosity on config reload.
	Level *slog.LevelVar
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "onedrive-index",
		Short: "OneDrive index and upload gateway",
		Long: `onedrive-index serves a path-addressed view of a OneDrive folder over HTTP
and runs privileged file operations (upload, mkdir, copy, move, share) from
the command line or the admin API.`,
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newConfigCmd(),
		newServeCmd(),
		newReloadCmd(),
		newLsCmd(),
		newPutCmd(),
		newImageCmd(),
		newMkdirCmd(),
		newNewCmd(),
		newCatCmd(),
		newEditCmd(),
		newLockCmd(),
		newRmCmd(),
		newCpCmd(),
		newMvCmd(),
		newShareCmd(),
		newUnshareCmd(),
		newTokenCmd(),
	)

	return cmd
}

// newCLIContext resolves config through the four-layer chain unless the
// command opts out, then builds the logger.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{
		Flags: flags,
		Env:   config.ReadEnvOverrides(),
		CLI:   config.CLIOverrides{ConfigPath: flags.ConfigPath, LogLevel: flagLogLevel(flags)},
		Level: new(slog.LevelVar),
		Out:   cmd.OutOrStdout(),
	}

	if listen, err := cmd.Flags().GetString("listen"); err == nil && cmd.Flags().Changed("listen") {
		cc.CLI.Listen = listen
	}

	if needsConfig(cmd) {
		cfg, path, err := config.Resolve(cc.Env, cc.CLI)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg, cc.CfgPath = cfg, path
	} else {
		cc.CfgPath = config.ConfigPath(cc.Env, cc.CLI)
	}

	cc.Logger = buildLogger(cc.Cfg, flags, cc.Level, cmd.ErrOrStderr())

	return cc, nil
}

// needsConfig reports whether cmd runs against a validated config. Help
// and shell completion never do.
func needsConfig(cmd *cobra.Command) bool {
	if cmd.Annotations[skipConfigAnnotation] != "" || cmd.Name() == "help" {
		return false
	}

	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "completion" {
			return false
		}
	}

	return true
}

// flagLogLevel maps --verbose and --quiet onto a config log level; "" means
// the flags leave the configured level alone.
func flagLogLevel(flags CLIFlags) string {
	switch {
	case flags.Verbose:
		return "debug"
	case flags.Quiet:
		return "error"
	default:
		return ""
	}
}

// parseLevel converts a validated config log level to a slog level.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger creates the process logger. Config provides the baseline
// level; --verbose and --quiet override it because CLI flags always win.
// With log_format "auto" a terminal gets text and anything else gets JSON.
func buildLogger(cfg *config.Config, flags CLIFlags, level *slog.LevelVar, w io.Writer) *slog.Logger {
	format := "auto"

	if cfg != nil {
		level.Set(parseLevel(cfg.Logging.LogLevel))
		format = cfg.Logging.LogFormat
	}

	if lvl := flagLogLevel(flags); lvl != "" {
		level.Set(parseLevel(lvl))
	}

	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = "text"
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
// Gateway failures print only their caller-safe message.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
	os.Exit(1)
}

func errorMessage(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}

	return err.Error()
}
