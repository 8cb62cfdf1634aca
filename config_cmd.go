package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-index/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Out, redacted(cc.Cfg))
	}

	return config.RenderEffective(cc.Cfg, cc.Out)
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg

	if out.Security.AppSecret != "" {
		out.Security.AppSecret = "<redacted>"
	}

	out.Security.AdminKeys = make([]string, len(cfg.Security.AdminKeys))
	for i := range out.Security.AdminKeys {
		out.Security.AdminKeys[i] = "<redacted>"
	}

	return &out
}
