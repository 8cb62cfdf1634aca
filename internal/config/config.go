// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for onedrive-index. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Graph        GraphConfig        `toml:"graph" json:"graph"`
	ImageHosting ImageHostingConfig `toml:"image_hosting" json:"image_hosting"`
	Security     SecurityConfig     `toml:"security" json:"security"`
	Cache        CacheConfig        `toml:"cache" json:"cache"`
	Server       ServerConfig       `toml:"server" json:"server"`
	Logging      LoggingConfig      `toml:"logging" json:"logging"`
	Network      NetworkConfig      `toml:"network" json:"network"`
}

// GraphConfig selects the drive and the folder inside it the index exposes.
// An empty drive_id means the signed-in user's default drive; an empty
// root_path exposes the whole drive.
type GraphConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url"`
	DriveID   string `toml:"drive_id" json:"drive_id"`
	RootPath  string `toml:"root_path" json:"root_path"`
	TokenPath string `toml:"token_path" json:"token_path"`
}

// ImageHostingConfig controls anonymous image uploads.
type ImageHostingConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// SecurityConfig holds the capability-token secret and the bearer keys that
// unlock privileged endpoints.
type SecurityConfig struct {
	AppSecret string   `toml:"app_secret" json:"app_secret"`
	AdminKeys []string `toml:"admin_keys" json:"admin_keys"`
}

// CacheConfig selects the listing cache backend.
type CacheConfig struct {
	Backend string `toml:"backend" json:"backend"`
	TTL     string `toml:"ttl" json:"ttl"`
	Dir     string `toml:"dir" json:"dir"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen        string `toml:"listen" json:"listen"`
	PublicURL     string `toml:"public_url" json:"public_url"`
	MaxUploadSize string `toml:"max_upload_size" json:"max_upload_size"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior toward the Graph API.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout" json:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout" json:"data_timeout"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Listen     string // --listen
	LogLevel   string // derived from --verbose / --debug / --quiet
}

// CacheTTL returns the parsed cache TTL. Call only on a validated Config.
func (c *Config) CacheTTL() time.Duration {
	return mustDuration(c.Cache.TTL)
}

// ConnectTimeout returns the parsed dial timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return mustDuration(c.Network.ConnectTimeout)
}

// DataTimeout returns the parsed per-request timeout for metadata calls.
func (c *Config) DataTimeout() time.Duration {
	return mustDuration(c.Network.DataTimeout)
}

// MaxUploadBytes returns the parsed upload limit.
func (c *Config) MaxUploadBytes() int64 {
	n, err := ParseSize(c.Server.MaxUploadSize)
	if err != nil {
		return 0
	}

	return n
}

// mustDuration parses a duration already checked by Validate. Invalid input
// yields zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
