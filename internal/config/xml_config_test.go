package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "http://localhost:8089/upload", cfg.Upload.Endpoint)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Empty(t, cfg.Upload.LocalRoot, "adding by path is off by default")
	assert.False(t, cfg.Advanced.ShowErrorDetails)
}

func TestLoadConfig_ReadsFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<UploadWidget>
  <Server>
    <Port>9000</Port>
    <BindAddress>127.0.0.1</BindAddress>
  </Server>
  <Upload>
    <Endpoint>http://example.test/upload</Endpoint>
    <AcceptedTypes>image/png, application/pdf</AcceptedTypes>
    <MaxUploadSize>10MB</MaxUploadSize>
    <ProgressIntervalMs>250</ProgressIntervalMs>
    <LocalRoot>shared</LocalRoot>
  </Upload>
  <Advanced>
    <LogLevel>debug</LogLevel>
    <ShowErrorDetails>true</ShowErrorDetails>
  </Advanced>
</UploadWidget>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("UPLOAD_ENFORCE_SIZE_LIMIT", "true")
	t.Setenv("PORT", "9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.GetServerAddr())
	assert.Equal(t, "http://example.test/upload", cfg.Upload.Endpoint)
	assert.True(t, cfg.Upload.EnforceSizeLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, filepath.Join(dir, "shared"), cfg.Upload.LocalRoot)
	assert.True(t, cfg.Advanced.ShowErrorDetails)
	// omitted sections keep their defaults
	assert.Equal(t, "local", cfg.Storage.Backend)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png", "application/pdf"}, p.AcceptedTypes())
	assert.Equal(t, int64(10_000_000), p.MaxBytes())
	assert.True(t, p.EnforcesSizeLimit())
}

func TestLoadConfig_DataDirOverride(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "elsewhere")
	t.Setenv("DATA_DIR", data)
	t.Setenv("UPLOAD_ENDPOINT", "http://receiver/upload")

	cfg, err := LoadConfig(filepath.Join(dir, "config.xml"))
	require.NoError(t, err)
	assert.Equal(t, data, cfg.GetDataDir())
	assert.Equal(t, filepath.Join(data, "uploads"), cfg.GetUploadDir())
	assert.Equal(t, "http://receiver/upload", cfg.Upload.Endpoint)

	require.NoError(t, cfg.EnsureDirectories())
	info, err := os.Stat(cfg.GetUploadDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.xml")
	require.NoError(t, os.WriteFile(path, []byte("<UploadWidget><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestPolicy_FromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.yaml"), []byte("acceptedTypes: [video/mp4]\nmaxSize: 1GB\n"), 0644))

	cfg := DefaultConfig()
	cfg.Upload.PolicyFile = "policy.yaml"
	cfg.resolvePaths(dir)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, []string{"video/mp4"}, p.AcceptedTypes())
	assert.Equal(t, "MP4 formats up to 1GB", p.Hint())
}

func TestSizeHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(32_000_000), cfg.FormMemoryBytes())
	assert.Equal(t, int64(2_000_000_000), cfg.BodyLimitBytes())

	cfg.Upload.FormMemoryLimit = "bogus"
	assert.Equal(t, int64(32<<20), cfg.FormMemoryBytes())

	cfg.Upload.ProgressIntervalMs = -5
	assert.Equal(t, time.Duration(0), cfg.ProgressInterval())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("UPLOAD_ENFORCE_SIZE_LIMIT=true\nUPLOAD_ENDPOINT=http://dotenv/upload\n"), 0644))

	unsetEnv(t, "UPLOAD_ENFORCE_SIZE_LIMIT")
	unsetEnv(t, "UPLOAD_LOCAL_ROOT")
	unsetEnv(t, "PORT")
	unsetEnv(t, "DATA_DIR")
	t.Setenv("UPLOAD_ENDPOINT", "http://env/upload")

	cfg := FromEnvironment()

	// the real environment wins over .env
	assert.Equal(t, "http://env/upload", cfg.Upload.Endpoint)
	assert.True(t, cfg.Upload.EnforceSizeLimit)
	assert.True(t, filepath.IsAbs(cfg.GetUploadDir()))
	assert.Equal(t, 8089, cfg.Server.Port)
}
