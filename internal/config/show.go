package config

import (
	"fmt"
	"io"
	"strings"
)

const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as TOML-like text to w
// for the "config show" command. Secrets and admin keys are redacted.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("[graph]\n")
	ew.printf("  base_url   = %q\n", cfg.Graph.BaseURL)
	ew.printf("  drive_id   = %q\n", cfg.Graph.DriveID)
	ew.printf("  root_path  = %q\n", cfg.Graph.RootPath)
	ew.printf("  token_path = %q\n\n", cfg.Graph.TokenPath)

	ew.printf("[image_hosting]\n")
	ew.printf("  enabled = %t\n", cfg.ImageHosting.Enabled)
	ew.printf("  path    = %q\n\n", cfg.ImageHosting.Path)

	ew.printf("[security]\n")
	ew.printf("  app_secret = %q\n", redactIfSet(cfg.Security.AppSecret))
	ew.printf("  admin_keys = [%s]\n\n", redactedList(len(cfg.Security.AdminKeys)))

	ew.printf("[cache]\n")
	ew.printf("  backend = %q\n", cfg.Cache.Backend)
	ew.printf("  ttl     = %q\n", cfg.Cache.TTL)
	ew.printf("  dir     = %q\n\n", cfg.Cache.Dir)

	ew.printf("[server]\n")
	ew.printf("  listen          = %q\n", cfg.Server.Listen)
	ew.printf("  public_url      = %q\n", cfg.Server.PublicURL)
	ew.printf("  max_upload_size = %q\n\n", cfg.Server.MaxUploadSize)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", cfg.Network.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", cfg.Network.DataTimeout)
	ew.printf("  user_agent      = %q\n", cfg.Network.UserAgent)

	return ew.err
}

func redactIfSet(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

func redactedList(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("%q", redacted)
	}

	return strings.Join(items, ", ")
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
