package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullFile(t *testing.T) {
	path := writeTestConfig(t, `
[graph]
drive_id = "b!abc"
root_path = "/Public"
token_path = "/var/lib/onedrive-index/token.json"

[image_hosting]
enabled = false
path = "/pics"

[security]
app_secret = "0123456789abcdef0123"
admin_keys = ["admin-key-0123456789"]

[cache]
backend = "sqlite"
ttl = "30m"
dir = "/var/cache/onedrive-index"

[server]
listen = "0.0.0.0:9000"
public_url = "https://files.example.com"
max_upload_size = "2MiB"

[logging]
log_level = "debug"
log_format = "json"

[network]
connect_timeout = "5s"
data_timeout = "30s"
user_agent = "custom/1.0"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "b!abc", cfg.Graph.DriveID)
	assert.Equal(t, "/Public", cfg.Graph.RootPath)
	assert.False(t, cfg.ImageHosting.Enabled)
	assert.Equal(t, "/pics", cfg.ImageHosting.Path)
	assert.Equal(t, []string{"admin-key-0123456789"}, cfg.Security.AdminKeys)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 30*60, int(cfg.CacheTTL().Seconds()))
	assert.Equal(t, int64(2*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, 5, int(cfg.ConnectTimeout().Seconds()))
	assert.Equal(t, 30, int(cfg.DataTimeout().Seconds()))
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[server]\nlisten = \"127.0.0.1:1234\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.Server.Listen)
	assert.Equal(t, defaultCacheBackend, cfg.Cache.Backend)
	assert.Equal(t, defaultImagePath, cfg.ImageHosting.Path)
	assert.True(t, cfg.ImageHosting.Enabled)
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[server\nlisten ="))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_OverrideChain(t *testing.T) {
	path := writeTestConfig(t, `
[security]
app_secret = "file-secret-0123456789"

[server]
listen = "127.0.0.1:1000"

[logging]
log_level = "warn"
`)

	t.Run("file only", func(t *testing.T) {
		cfg, got, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, "127.0.0.1:1000", cfg.Server.Listen)
		assert.Equal(t, "file-secret-0123456789", cfg.Security.AppSecret)
	})

	t.Run("env beats file", func(t *testing.T) {
		cfg, _, err := Resolve(EnvOverrides{
			ConfigPath: path,
			Secret:     "env-secret-0123456789",
			Listen:     "127.0.0.1:2000",
		}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:2000", cfg.Server.Listen)
		assert.Equal(t, "env-secret-0123456789", cfg.Security.AppSecret)
	})

	t.Run("cli beats env", func(t *testing.T) {
		cfg, _, err := Resolve(
			EnvOverrides{ConfigPath: "/does/not/matter.toml", Listen: "127.0.0.1:2000"},
			CLIOverrides{ConfigPath: path, Listen: "127.0.0.1:3000", LogLevel: "debug"},
		)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:3000", cfg.Server.Listen)
		assert.Equal(t, "debug", cfg.Logging.LogLevel)
	})
}

func TestResolve_ValidatesMergedResult(t *testing.T) {
	path := writeTestConfig(t, "[server]\nlisten = \"127.0.0.1:1000\"\n")

	_, _, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_secret")

	cfg, _, err := Resolve(EnvOverrides{ConfigPath: path, Secret: testSecret}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Security.AppSecret)
}

func TestConfigPath_Precedence(t *testing.T) {
	assert.Equal(t, "/cli.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"}))
	assert.Equal(t, "/env.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{}))
	assert.Equal(t, DefaultConfigPath(), ConfigPath(EnvOverrides{}, CLIOverrides{}))
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/x.toml")
	t.Setenv(EnvSecret, testSecret)
	t.Setenv(EnvListen, "127.0.0.1:9999")

	env := ReadEnvOverrides()
	assert.Equal(t, EnvOverrides{ConfigPath: "/etc/x.toml", Secret: testSecret, Listen: "127.0.0.1:9999"}, env)
}

func TestRenderEffective_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.AppSecret = testSecret
	cfg.Security.AdminKeys = []string{"admin-key-0123456789", "admin-key-abcdefghij"}

	var b strings.Builder
	require.NoError(t, RenderEffective(cfg, &b))

	out := b.String()
	assert.Contains(t, out, "[cache]")
	assert.Contains(t, out, `backend = "memory"`)
	assert.NotContains(t, out, testSecret)
	assert.NotContains(t, out, "admin-key-0123456789")
	assert.Equal(t, 3, strings.Count(out, redacted))
}
