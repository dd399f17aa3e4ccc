package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tool locations and timings used by a deployment run.
type Config struct {
	// PackwizBinary is the packwiz executable, resolved through PATH when not absolute.
	PackwizBinary string `yaml:"packwiz_binary"`
	// JavaBinary is the java executable used to run the bootstrap installer.
	JavaBinary string `yaml:"java_binary"`
	// BootstrapURL is where packwiz-installer-bootstrap.jar is downloaded from.
	BootstrapURL string `yaml:"bootstrap_url"`
	// BootstrapSHA256 is an optional hex SHA-256 the downloaded jar must match.
	BootstrapSHA256 string `yaml:"bootstrap_sha256,omitempty"`
	// ToolDir holds downloaded tools and run bookkeeping, relative to the project root.
	ToolDir string `yaml:"tool_dir"`
	// OverridesDir is copied over the install directory after a successful install.
	OverridesDir string `yaml:"overrides_dir"`
	// MaxPortAttempts bounds the random probing done when no port is requested.
	MaxPortAttempts int `yaml:"max_port_attempts"`
	// SettleDelay is how long packwiz serve gets before its liveness is checked.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// ReadyAttempts is the number of pack.toml requests made before giving up.
	ReadyAttempts int `yaml:"ready_attempts"`
	// ReadyInterval is the fixed pause after each failed readiness request.
	ReadyInterval time.Duration `yaml:"ready_interval"`
	// ReadyTimeout bounds a single readiness request.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	// DownloadTimeout bounds the bootstrap download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// ReclaimWait is the pause between killing a port owner and probing the port again.
	ReclaimWait time.Duration `yaml:"reclaim_wait"`
	// StopTimeout bounds how long cleanup waits for packwiz serve to exit.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

const (
	// DefaultConfigFilename is the settings file looked up in the working directory.
	DefaultConfigFilename = "packwiz-deploy.yaml"

	// DefaultBootstrapURL points at the latest packwiz-installer-bootstrap release.
	DefaultBootstrapURL = "https://github.com/packwiz/packwiz-installer-bootstrap/releases/latest/download/packwiz-installer-bootstrap.jar"

	// DefaultToolDir is the tool-artifact directory. It is never cleaned.
	DefaultToolDir = ".bin"

	// DefaultOverridesDir is the operator-managed overlay source.
	DefaultOverridesDir = "server"

	// DefaultMaxPortAttempts bounds random port probing.
	DefaultMaxPortAttempts = 100

	// DefaultSettleDelay is the wait between starting packwiz serve and the liveness check.
	DefaultSettleDelay = 3 * time.Second

	// DefaultReadyAttempts is the number of readiness requests.
	DefaultReadyAttempts = 10

	// DefaultReadyInterval is the fixed readiness backoff.
	DefaultReadyInterval = 2 * time.Second

	// DefaultReadyTimeout bounds one readiness request.
	DefaultReadyTimeout = 5 * time.Second

	// DefaultDownloadTimeout bounds the bootstrap download.
	DefaultDownloadTimeout = 2 * time.Minute

	// DefaultReclaimWait is the pause after killing a port owner.
	DefaultReclaimWait = time.Second

	// DefaultStopTimeout bounds the wait for packwiz serve to exit.
	DefaultStopTimeout = 10 * time.Second

	// DefaultFilePermissions is the permission used for files this tool writes.
	DefaultFilePermissions = 0o644

	// sha256HexLength is the length of a hex-encoded SHA-256 digest.
	sha256HexLength = 64
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeValue is returned for counts or durations below zero.
	errNegativeValue = errors.New("value must not be negative")
	// errBadChecksum is returned when bootstrap_sha256 is not a SHA-256 hex digest.
	errBadChecksum = errors.New("bootstrap_sha256 must be a 64 character hex string")
)

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := new(Config)

	// Validate only fills defaults on an empty config and cannot fail.
	_ = Validate(cfg)

	return cfg
}

// Load reads settings from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults for unset fields and rejects malformed values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setDefault(&cfg.PackwizBinary, "packwiz")
	setDefault(&cfg.JavaBinary, "java")
	setDefault(&cfg.BootstrapURL, DefaultBootstrapURL)
	setDefault(&cfg.ToolDir, DefaultToolDir)
	setDefault(&cfg.OverridesDir, DefaultOverridesDir)

	if _, err := url.ParseRequestURI(cfg.BootstrapURL); err != nil {
		return fmt.Errorf("invalid bootstrap URL: %w", err)
	}

	if cfg.BootstrapSHA256 != "" {
		if _, err := cfg.BootstrapChecksum(); err != nil {
			return err
		}
	}

	counts := []struct {
		name  string
		value *int
		def   int
	}{
		{"max_port_attempts", &cfg.MaxPortAttempts, DefaultMaxPortAttempts},
		{"ready_attempts", &cfg.ReadyAttempts, DefaultReadyAttempts},
	}

	for _, c := range counts {
		if *c.value < 0 {
			return fmt.Errorf("%s: %w", c.name, errNegativeValue)
		}

		if *c.value == 0 {
			*c.value = c.def
		}
	}

	durations := []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"settle_delay", &cfg.SettleDelay, DefaultSettleDelay},
		{"ready_interval", &cfg.ReadyInterval, DefaultReadyInterval},
		{"ready_timeout", &cfg.ReadyTimeout, DefaultReadyTimeout},
		{"download_timeout", &cfg.DownloadTimeout, DefaultDownloadTimeout},
		{"reclaim_wait", &cfg.ReclaimWait, DefaultReclaimWait},
		{"stop_timeout", &cfg.StopTimeout, DefaultStopTimeout},
	}

	for _, d := range durations {
		if *d.value < 0 {
			return fmt.Errorf("%s: %w", d.name, errNegativeValue)
		}

		if *d.value == 0 {
			*d.value = d.def
		}
	}

	return nil
}

// BootstrapChecksum decodes BootstrapSHA256. It returns nil when no checksum is configured.
func (c *Config) BootstrapChecksum() ([]byte, error) {
	if c.BootstrapSHA256 == "" {
		return nil, nil
	}

	if len(c.BootstrapSHA256) != sha256HexLength {
		return nil, errBadChecksum
	}

	sum, err := hex.DecodeString(c.BootstrapSHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadChecksum, err)
	}

	return sum, nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
