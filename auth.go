package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-index/internal/config"
	"github.com/tonimelisma/onedrive-index/internal/graph"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "login",
		Short:       "Authenticate with OneDrive using device code flow",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove saved authentication token",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user and the served drive",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// tokenPath reads the token location from config without validating the
// rest: login must work before app_secret is set.
func tokenPath(cc *CLIContext) (string, error) {
	cfg, err := config.LoadOrDefault(cc.CfgPath)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}

	config.ApplyOverrides(cfg, cc.Env, cc.CLI)

	if cfg.Graph.TokenPath == "" {
		return "", fmt.Errorf("cannot determine token path: set graph.token_path in %s", cc.CfgPath)
	}

	return cfg.Graph.TokenPath, nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path, err := tokenPath(cc)
	if err != nil {
		return err
	}

	cc.Logger.Info("login started", slog.String("token_path", path))

	_, err = graph.Login(cmd.Context(), path, func(da graph.DeviceAuth) {
		// Device code prompts must always be visible, even with --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
	}, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path, err := tokenPath(cc)
	if err != nil {
		return err
	}

	if err := graph.Logout(path, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	User  *graph.User  `json:"user"`
	Drive *graph.Drive `json:"drive"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := newSession(ctx, cc)
	if err != nil {
		return err
	}

	user, err := sess.Me(ctx)
	if err != nil {
		return fmt.Errorf("fetching user profile: %w", err)
	}

	drive, err := sess.Drive(ctx)
	if err != nil {
		return fmt.Errorf("fetching drive: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, whoamiOutput{User: user, Drive: drive})
	}

	fmt.Fprintf(cc.Out, "User:  %s (%s)\n", user.DisplayName, user.Email)
	fmt.Fprintf(cc.Out, "ID:    %s\n", user.ID)
	fmt.Fprintf(cc.Out, "\nDrive: %s (%s)\n", drive.Name, drive.DriveType)
	fmt.Fprintf(cc.Out, "  ID:    %s\n", drive.ID)
	fmt.Fprintf(cc.Out, "  Quota: %s / %s\n", formatSize(drive.QuotaUsed), formatSize(drive.QuotaTotal))

	return nil
}
