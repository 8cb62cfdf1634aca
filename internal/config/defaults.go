package config

import "path/filepath"

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultImagePath      = "/images"
	defaultCacheBackend   = "memory"
	defaultCacheTTL       = "10m"
	defaultListen         = "127.0.0.1:8080"
	defaultMaxUploadSize  = "4MiB"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	tokenFileName         = "token.json"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL:   "https://graph.microsoft.com/v1.0",
			TokenPath: defaultTokenPath(),
		},
		ImageHosting: ImageHostingConfig{
			Enabled: true,
			Path:    defaultImagePath,
		},
		Cache: CacheConfig{
			Backend: defaultCacheBackend,
			TTL:     defaultCacheTTL,
			Dir:     DefaultCacheDir(),
		},
		Server: ServerConfig{
			Listen:        defaultListen,
			MaxUploadSize: defaultMaxUploadSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}

func defaultTokenPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, tokenFileName)
}
