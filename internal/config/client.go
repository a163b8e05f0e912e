package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
)

// Client transports and storage backends.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"

	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// ClientConfig configures the chat client. Sources are layered: defaults,
// then the TOML file, then STREAMCHAT_* variables; command-line flags are
// applied last by the caller.
type ClientConfig struct {
	Endpoint        string        `toml:"endpoint" env:"STREAMCHAT_ENDPOINT"`
	Transport       string        `toml:"transport" env:"STREAMCHAT_TRANSPORT"`
	Storage         string        `toml:"storage" env:"STREAMCHAT_STORAGE"`
	DataDir         string        `toml:"data_dir" env:"STREAMCHAT_DATA_DIR"`
	ScrollThreshold int           `toml:"scroll_threshold" env:"STREAMCHAT_SCROLL_THRESHOLD"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"STREAMCHAT_REQUEST_TIMEOUT"`
	LogLevel        string        `toml:"log_level" env:"STREAMCHAT_LOG_LEVEL"`
	LogFile         string        `toml:"log_file" env:"STREAMCHAT_LOG_FILE"`
}

// DefaultClientConfig returns the built-in defaults. The scroll threshold is
// in terminal lines.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:        "http://127.0.0.1:8000",
		Transport:       TransportHTTP,
		Storage:         StorageFile,
		DataDir:         defaultDataDir(),
		ScrollThreshold: 2,
		RequestTimeout:  30 * time.Second,
		LogLevel:        "info",
	}
}

// DefaultClientConfigPath is $XDG_CONFIG_HOME/streamchat/config.toml.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "streamchat", "config.toml")
}

// LoadClient layers the config file at path and the environment over the
// defaults. An empty path selects the default location, which may be absent;
// an explicit path must exist.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultClientConfigPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return ClientConfig{}, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, errors.Wrap(err, "parse environment")
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated fields.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	switch c.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return errors.Errorf("invalid transport %q (want http or websocket)", c.Transport)
	}
	switch c.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return errors.Errorf("invalid storage %q (want file, sqlite or memory)", c.Storage)
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	return nil
}

// StatePath returns where the chosen storage backend keeps its data.
func (c ClientConfig) StatePath() string {
	switch c.Storage {
	case StorageSQLite:
		return filepath.Join(c.DataDir, "chat.db")
	case StorageFile:
		return filepath.Join(c.DataDir, "chat.json")
	}
	return ""
}

// LogPath returns the log file, defaulting to one inside DataDir.
func (c ClientConfig) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "streamchat.log")
}

func defaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "streamchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".streamchat"
	}
	return filepath.Join(home, ".local", "share", "streamchat")
}
