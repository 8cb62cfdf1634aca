package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minSecretBytes     = 16
	minCacheTTL        = 1 * time.Second
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
	maxUploadSizeBytes = 4 * 1024 * 1024 // single-request upload limit
	minAdminKeyBytes   = 16
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGraph(&cfg.Graph)...)
	errs = append(errs, validateImageHosting(&cfg.ImageHosting)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateGraph(g *GraphConfig) []error {
	var errs []error

	if u, err := url.Parse(g.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("graph.base_url: must be an absolute URL, got %q", g.BaseURL))
	}

	if g.TokenPath == "" {
		errs = append(errs, errors.New("graph.token_path: must not be empty"))
	}

	errs = append(errs, validateLogicalPath("graph.root_path", g.RootPath)...)

	return errs
}

func validateImageHosting(i *ImageHostingConfig) []error {
	return validateLogicalPath("image_hosting.path", i.Path)
}

// validateLogicalPath rejects relative segments; the path codec re-checks
// the full grammar when the path is parsed at startup.
func validateLogicalPath(field, p string) []error {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return []error{fmt.Errorf("%s: relative segment %q not allowed in %q", field, seg, p)}
		}
	}

	return nil
}

func validateSecurity(s *SecurityConfig) []error {
	var errs []error

	if len(s.AppSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("security.app_secret: must be at least %d bytes (or set %s)",
			minSecretBytes, EnvSecret))
	}

	for i, k := range s.AdminKeys {
		if len(k) < minAdminKeyBytes {
			errs = append(errs, fmt.Errorf("security.admin_keys[%d]: must be at least %d bytes", i, minAdminKeyBytes))
		}
	}

	return errs
}

var validCacheBackends = map[string]bool{
	"memory": true,
	"sqlite": true,
	"badger": true,
}

func validateCache(c *CacheConfig) []error {
	var errs []error

	if !validCacheBackends[c.Backend] {
		errs = append(errs, fmt.Errorf("cache.backend: must be one of memory, sqlite, badger; got %q", c.Backend))
	}

	if c.Backend != "memory" && c.Dir == "" {
		errs = append(errs, fmt.Errorf("cache.dir: required for the %s backend", c.Backend))
	}

	errs = append(errs, validateDurationMin("cache.ttl", c.TTL, minCacheTTL)...)

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: invalid address %q: %w", s.Listen, err))
	}

	if s.PublicURL != "" {
		if u, err := url.Parse(s.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.public_url: must be an absolute URL, got %q", s.PublicURL))
		}
	}

	n, err := ParseSize(s.MaxUploadSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.max_upload_size: %w", err))
	case n <= 0 || n > maxUploadSizeBytes:
		errs = append(errs, fmt.Errorf("server.max_upload_size: must be between 1 byte and 4MiB, got %q",
			s.MaxUploadSize))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
