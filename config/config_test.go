package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-markers/analyzer"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, analyzer.DefaultParams(), cfg.Analysis)
	assert.Equal(t, "full", cfg.Server.DefaultMode)
	assert.Equal(t, "nova-2", cfg.Deepgram.Model)
	assert.False(t, cfg.TranscriptionEnabled())
	assert.False(t, cfg.CacheEnabled())
}

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := writeFile(t, dir, "sonido.toml", `
[server]
addr = ":9000"
default_mode = "fast"

[analysis]
onset_threshold = 0.4
max_beats = 100

[decoder]
timeout = "30s"

[redis]
addr = "redis:6379"
ttl = "1h"
`)

	t.Setenv("SONIDO_ADDR", ":9100")
	t.Setenv("DEEPGRAM_API_KEY", "secret")
	t.Setenv("SONIDO_REDIS_DB", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, "fast", cfg.Server.DefaultMode)
	assert.Equal(t, 0.4, cfg.Analysis.OnsetThreshold)
	assert.Equal(t, 0.03, cfg.Analysis.MergeWindow, "unset keys keep defaults")
	assert.Equal(t, 100, cfg.Analysis.MaxBeats)
	assert.Equal(t, 30*time.Second, cfg.Decoder.Timeout)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.TranscriptionEnabled())
	assert.True(t, cfg.CacheEnabled())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "FFPROBE_PATH=/opt/ffmpeg/bin/ffprobe\n")
	t.Cleanup(func() { os.Unsetenv("FFPROBE_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.Decoder.FFprobePath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	tests := map[string]string{
		"bad threshold": "[analysis]\nonset_threshold = 1.5\n",
		"bad mode":      "[server]\ndefault_mode = \"turbo\"\n",
		"bad format":    "[logging]\nformat = \"xml\"\n",
		"bad toml":      "[server\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.toml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SONIDO_REDIS_DB", "primary")

	_, err := Load("")
	assert.Error(t, err)
}

func TestNewLoggerText(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

// chdir changes the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
