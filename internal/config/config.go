// Package config provides TOML configuration file loading for the dashboard
// service. The configuration file lives at ~/.livedash/config.toml by
// default, but can be overridden with the --config flag. CLI flags always
// take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the configuration file structure. Zero values mean
// "use the default"; ApplyDefaults fills them in.
type Config struct {
	// SocketPath is the Unix socket producers connect to.
	// Default: ~/.livedash/livedash.sock
	SocketPath string `toml:"socket_path"`

	// Secret is the shared secret producers present in their hello frame.
	// Default: "secret password"
	Secret string `toml:"secret"`

	// SecretHash is a bcrypt hash of the shared secret. When set it takes
	// precedence over Secret, so the plaintext never has to be stored.
	SecretHash string `toml:"secret_hash"`

	// HandshakeTimeoutMs bounds how long a new connection may take to
	// send its hello frame. Default: 5000
	HandshakeTimeoutMs int `toml:"handshake_timeout_ms"`

	// FrameIntervalMs is the redraw period. Default: 100
	FrameIntervalMs int `toml:"frame_interval_ms"`

	// QueueCapacity bounds the number of queued commands. 0 is unbounded.
	QueueCapacity int `toml:"queue_capacity"`

	// QueueOverflow is drop-oldest or drop-newest. Default: drop-oldest
	QueueOverflow string `toml:"queue_overflow"`

	// OutputDir receives client-<id>.png files. "-" disables them.
	// Default: ~/.livedash/frames
	OutputDir string `toml:"output_dir"`

	// PanelWidth and PanelHeight size one plot panel in pixels.
	// Default: 480x360
	PanelWidth  int `toml:"panel_width"`
	PanelHeight int `toml:"panel_height"`

	// ViewerAddr is the loopback address of the live viewer. "-" disables it.
	// Default: 127.0.0.1:7071
	ViewerAddr string `toml:"viewer_addr"`

	// AuditDB is the SQLite database for the connection audit.
	// Default: ":memory:"
	AuditDB string `toml:"audit_db"`

	// AuditMaxRejections caps stored rejection records. Default: 1000
	AuditMaxRejections int `toml:"audit_max_rejections"`

	// LogLevel is info or debug. Default: info
	LogLevel string `toml:"log_level"`

	// LogFile redirects logs from stderr to a file.
	LogFile string `toml:"log_file"`
}

// DefaultConfigPath returns the default config file location: ~/.livedash/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// DefaultSocketPath returns ~/.livedash/livedash.sock.
func DefaultSocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName, socketFileName), nil
}

// DefaultOutputDir returns ~/.livedash/frames.
func DefaultOutputDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName, outputDirName), nil
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// WriteDefault creates a config file with the default settings at path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`%s
# Created by 'livedash init'

# Producers must present this secret in their hello frame.
# Prefer secret_hash (see 'livedash hash-secret') to keep it out of this file.
secret = %q

# Redraw period in milliseconds
frame_interval_ms = %d

# Live viewer on loopback; "-" disables it
viewer_addr = %q

# Connection audit database; ":memory:" keeps it for the process lifetime
audit_db = %q
`, defaultsHeaderLine, DefaultSecret, DefaultFrameIntervalMs, DefaultViewerAddr, DefaultAuditDB)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.livedash/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks field values. Zero values are valid and mean "use the
// default".
func (c *Config) Validate() error {
	nonNegative := []struct {
		key   string
		value int
	}{
		{"handshake_timeout_ms", c.HandshakeTimeoutMs},
		{"frame_interval_ms", c.FrameIntervalMs},
		{"queue_capacity", c.QueueCapacity},
		{"panel_width", c.PanelWidth},
		{"panel_height", c.PanelHeight},
		{"audit_max_rejections", c.AuditMaxRejections},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.key, f.value)
		}
	}

	switch c.QueueOverflow {
	case "", "drop-oldest", "drop-newest":
	default:
		return fmt.Errorf("queue_overflow must be drop-oldest or drop-newest, got %q", c.QueueOverflow)
	}

	switch c.LogLevel {
	case "", "info", "debug":
	default:
		return fmt.Errorf("log_level must be info or debug, got %q", c.LogLevel)
	}

	return nil
}

// ApplyDefaults fills unset fields and expands "~/" in paths.
func (c *Config) ApplyDefaults() error {
	var err error

	if c.SocketPath == "" {
		if c.SocketPath, err = DefaultSocketPath(); err != nil {
			return err
		}
	}
	if c.SocketPath, err = ExpandPath(c.SocketPath); err != nil {
		return err
	}

	if c.OutputDir == "" {
		if c.OutputDir, err = DefaultOutputDir(); err != nil {
			return err
		}
	}
	if c.OutputDir != Disabled {
		if c.OutputDir, err = ExpandPath(c.OutputDir); err != nil {
			return err
		}
	}

	if c.AuditDB == "" {
		c.AuditDB = DefaultAuditDB
	}
	if c.AuditDB != ":memory:" {
		if c.AuditDB, err = ExpandPath(c.AuditDB); err != nil {
			return err
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = ExpandPath(c.LogFile); err != nil {
			return err
		}
	}

	if c.Secret == "" && c.SecretHash == "" {
		c.Secret = DefaultSecret
	}
	if c.HandshakeTimeoutMs == 0 {
		c.HandshakeTimeoutMs = DefaultHandshakeTimeoutMs
	}
	if c.FrameIntervalMs == 0 {
		c.FrameIntervalMs = DefaultFrameIntervalMs
	}
	if c.QueueOverflow == "" {
		c.QueueOverflow = DefaultQueueOverflow
	}
	if c.PanelWidth == 0 {
		c.PanelWidth = DefaultPanelWidth
	}
	if c.PanelHeight == 0 {
		c.PanelHeight = DefaultPanelHeight
	}
	if c.ViewerAddr == "" {
		c.ViewerAddr = DefaultViewerAddr
	}
	if c.AuditMaxRejections == 0 {
		c.AuditMaxRejections = DefaultAuditMaxRejections
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return nil
}

// UsesDefaultSecret reports whether producers authenticate with the
// built-in secret.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretHash == "" && (c.Secret == "" || c.Secret == DefaultSecret)
}
