package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate_FillsDefaults checks that an empty config receives every default.
func TestValidate_FillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := new(Config)
	require.NoError(t, Validate(cfg))

	require.Equal(t, "packwiz", cfg.PackwizBinary)
	require.Equal(t, "java", cfg.JavaBinary)
	require.Equal(t, DefaultBootstrapURL, cfg.BootstrapURL)
	require.Equal(t, DefaultToolDir, cfg.ToolDir)
	require.Equal(t, DefaultOverridesDir, cfg.OverridesDir)
	require.Equal(t, DefaultMaxPortAttempts, cfg.MaxPortAttempts)
	require.Equal(t, DefaultReadyAttempts, cfg.ReadyAttempts)
	require.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	require.Equal(t, DefaultReadyInterval, cfg.ReadyInterval)
	require.Equal(t, DefaultReadyTimeout, cfg.ReadyTimeout)
}

// TestValidate_RejectsBadValues covers malformed URL, checksum and negative values.
func TestValidate_RejectsBadValues(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))
	require.Error(t, Validate(&Config{BootstrapURL: "not a url"}))
	require.Error(t, Validate(&Config{BootstrapSHA256: "abc"}))
	require.Error(t, Validate(&Config{MaxPortAttempts: -1}))
	require.Error(t, Validate(&Config{ReadyInterval: -time.Second}))
}

// TestBootstrapChecksum decodes a valid digest and returns nil when unset.
func TestBootstrapChecksum(t *testing.T) {
	t.Parallel()

	cfg := Default()

	sum, err := cfg.BootstrapChecksum()
	require.NoError(t, err)
	require.Nil(t, sum)

	cfg.BootstrapSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	sum, err = cfg.BootstrapChecksum()
	require.NoError(t, err)
	require.Len(t, sum, 32)
}

// TestLoad_MissingFileReturnsDefaults ensures the settings file is optional.
func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFilename)

	cfg := &Config{
		PackwizBinary: "/opt/packwiz/packwiz",
		SettleDelay:   500 * time.Millisecond,
		ReadyAttempts: 3,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.PackwizBinary, loaded.PackwizBinary)
	require.Equal(t, 500*time.Millisecond, loaded.SettleDelay)
	require.Equal(t, 3, loaded.ReadyAttempts)
	require.Equal(t, DefaultReadyInterval, loaded.ReadyInterval)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_ParsesDurationStrings reads hand-written YAML with duration strings.
func TestLoad_ParsesDurationStrings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := "java_binary: /usr/lib/jvm/bin/java\nready_interval: 250ms\nsettle_delay: 1s\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/usr/lib/jvm/bin/java", cfg.JavaBinary)
	require.Equal(t, 250*time.Millisecond, cfg.ReadyInterval)
	require.Equal(t, time.Second, cfg.SettleDelay)
}
