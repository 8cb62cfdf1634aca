package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "ONEDRIVE_INDEX_CONFIG"
	EnvSecret = "ONEDRIVE_INDEX_SECRET"
	EnvListen = "ONEDRIVE_INDEX_LISTEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ONEDRIVE_INDEX_CONFIG: override config file path
	Secret     string // ONEDRIVE_INDEX_SECRET: capability token secret
	Listen     string // ONEDRIVE_INDEX_LISTEN: HTTP listen address
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies them.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Secret:     os.Getenv(EnvSecret),
		Listen:     os.Getenv(EnvListen),
	}
}
