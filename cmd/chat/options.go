package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/streamchat/internal/client"
	"github.com/zhouzirui/streamchat/internal/client/persist"
	"github.com/zhouzirui/streamchat/internal/client/scroll"
	"github.com/zhouzirui/streamchat/internal/client/transport"
	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/logging"
)

// options holds the command-line overrides shared by every subcommand.
type options struct {
	configPath      string
	endpoint        string
	transport       string
	storage         string
	dataDir         string
	logLevel        string
	logFile         string
	scrollThreshold int
	timeout         time.Duration
	ephemeral       bool
}

func (o *options) bind(cmd *cobra.Command) {
	def := config.DefaultClientConfig()
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/streamchat/config.toml)")
	f.StringVar(&o.endpoint, "endpoint", def.Endpoint, "backend base URL")
	f.StringVar(&o.transport, "transport", def.Transport, "stream transport: http or websocket")
	f.StringVar(&o.storage, "storage", def.Storage, "conversation storage: file, sqlite or memory")
	f.StringVar(&o.dataDir, "data-dir", def.DataDir, "directory for conversation state and logs")
	f.StringVar(&o.logLevel, "log-level", def.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&o.logFile, "log-file", "", "log file (default <data-dir>/streamchat.log)")
	f.IntVar(&o.scrollThreshold, "scroll-threshold", def.ScrollThreshold, "lines from the bottom that still count as following")
	f.DurationVar(&o.timeout, "timeout", def.RequestTimeout, "time to wait for the backend to start answering")
	f.BoolVar(&o.ephemeral, "ephemeral", false, "keep the conversation in memory only")
}

// resolve layers flags the user actually set over file and environment.
func (o *options) resolve(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return config.ClientConfig{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = o.endpoint
	}
	if flags.Changed("transport") {
		cfg.Transport = o.transport
	}
	if flags.Changed("storage") {
		cfg.Storage = o.storage
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("scroll-threshold") {
		cfg.ScrollThreshold = o.scrollThreshold
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = o.timeout
	}
	if o.ephemeral {
		cfg.Storage = config.StorageMemory
	}
	return cfg, cfg.Validate()
}

// app is a configured client plus what has to be released with it.
type app struct {
	cfg     config.ClientConfig
	client  *client.Client
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("release resource")
		}
	}
}

func (o *options) open(cmd *cobra.Command, viewport scroll.Viewport) (*app, error) {
	cfg, err := o.resolve(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logCloser, err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "text", File: cfg.LogPath()})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logCloser.Close)

	kv, err := openKV(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := kv.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	logger := log.With().Str("endpoint", cfg.Endpoint).Logger()
	a.client, err = client.New(client.Options{
		KV:              kv,
		Transport:       newTransport(cfg),
		Viewport:        viewport,
		ScrollThreshold: cfg.ScrollThreshold,
		Logger:          &logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Str("transport", cfg.Transport).
		Str("storage", cfg.Storage).
		Str("session_id", a.client.SessionID()).
		Msg("client started")
	return a, nil
}

func openKV(cfg config.ClientConfig) (persist.KV, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return persist.NewMemoryKV(), nil
	case config.StorageSQLite:
		kv, err := persist.OpenSQLiteKV(cfg.StatePath())
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite storage")
		}
		return kv, nil
	default:
		return persist.NewFileKV(cfg.StatePath()), nil
	}
}

func newTransport(cfg config.ClientConfig) transport.Transport {
	if cfg.Transport == config.TransportWebSocket {
		return transport.NewWebSocketTransport(cfg.Endpoint, cfg.RequestTimeout)
	}
	return transport.NewHTTPTransport(cfg.Endpoint, cfg.RequestTimeout)
}
