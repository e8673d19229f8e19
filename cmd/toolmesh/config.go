package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Addr           string        `env:"TOOLMESH_ADDR" envDefault:":8700"`
	DiscoveryFile  string        `env:"TOOLMESH_DISCOVERY_FILE,required"`
	HealthInterval time.Duration `env:"TOOLMESH_HEALTH_INTERVAL" envDefault:"5s"`
	CORSOrigins    []string      `env:"TOOLMESH_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel       string        `env:"TOOLMESH_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"TOOLMESH_LOG_FORMAT" envDefault:"text"`
	LogJSONRPC     bool          `env:"TOOLMESH_LOG_JSONRPC"`
	ClientName     string        `env:"TOOLMESH_CLIENT_NAME" envDefault:"mcp-toolmesh"`
	ConnectTimeout time.Duration `env:"TOOLMESH_CONNECT_TIMEOUT" envDefault:"30s"`
	RequestTimeout time.Duration `env:"TOOLMESH_REQUEST_TIMEOUT" envDefault:"5m"`
}

// loadConfig reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func loadConfig(envFile string) (config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
