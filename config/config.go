// Package config loads the server configuration from the environment.
package config

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"httpws/application/http/actor/server"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const EnvPrefix = "HTTPWS_"

type Config struct {
	Address        string `env:"ADDRESS"         envDefault:":20002"`
	MetricsAddress string `env:"METRICS_ADDRESS" envDefault:":9090"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadBufferSize  int           `env:"READ_BUFFER_SIZE"  envDefault:"1024"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"      envDefault:"60s"`
	MaxFramePayload uint64        `env:"MAX_FRAME_PAYLOAD" envDefault:"16777216"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"5s"`

	ServerName string `env:"SERVER_NAME" envDefault:"httpws"`
}

var ErrInvalidConfig = errors.New("invalid config")

// Load reads the given env files, if any exist, then the environment.
// Variables already set win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		// Missing files are fine; settings may come from the environment.
		slog.Debug("no env file loaded", "error", err)
	}
	return Parse(env.Options{Prefix: EnvPrefix})
}

func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "parsing environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Address == "" {
		return errors.Wrap(ErrInvalidConfig, "empty address")
	}
	if c.ReadBufferSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "read buffer size %d", c.ReadBufferSize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return errors.Wrapf(ErrInvalidConfig, "log format %q", c.LogFormat)
	}
	return nil
}

func (c Config) ServerOptions() server.Options {
	return server.Options{
		Name:           c.ServerName,
		ReadBufferSize: c.ReadBufferSize,
		Timeout: server.TimeoutOptions{
			IdleTimeout: c.IdleTimeout,
		},
		MaxFramePayload: c.MaxFramePayload,
	}
}

// Logger builds the logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(ErrInvalidConfig, "log level %q", s)
	}
	return level, nil
}
