package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Database struct {
		Path string `json:"path"`
	} `json:"database"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestReadConfigMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{
		// checked-in defaults
		database: { path: "terminwatch.db" },
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{
		database: { path: "/tmp/dev.db" },
		telegram: { token: "t0ken" },
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/dev.db", cfg.Database.Path)
	require.Equal(t, "t0ken", cfg.Telegram.Token)
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.local.json5"), `{database: {path: "only.db"}}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "only.db", cfg.Database.Path)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
