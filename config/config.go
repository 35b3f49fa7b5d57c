package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DebugMode enables verbose lifecycle logs. It is set by Load from DEBUG.
var DebugMode = false

// Config is the application configuration read from the environment.
type Config struct {
	Debug   bool          `env:"DEBUG" envDefault:"false"`
	Markets []string      `env:"MARKETS" envSeparator:"," envDefault:"btc_usdt,eth_usdt,bnb_usdt,sol_usdt,xrp_usdt"`
	Binance BinanceConfig `envPrefix:"BINANCE_"`
	Book    BookConfig    `envPrefix:"BOOK_"`
	Candle  CandleConfig  `envPrefix:"CANDLE_"`
	Stream  StreamConfig  `envPrefix:"STREAM_"`
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

type BinanceConfig struct {
	RestURL     string        `env:"REST_URL" envDefault:"https://api.binance.com/api/v3"`
	WsURL       string        `env:"WS_URL" envDefault:"wss://stream.binance.com:9443/ws"`
	HttpTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

type BookConfig struct {
	DepthLimit    int           `env:"DEPTH_LIMIT" envDefault:"1000"`
	MergeInterval time.Duration `env:"MERGE_INTERVAL" envDefault:"10s"`
	// StreamSpeed is appended to the diff topic, e.g. btcusdt@depth@100ms.
	StreamSpeed string `env:"STREAM_SPEED" envDefault:"100ms"`
	// StreamLevels switches to the fixed-level partial book stream (5, 10 or 20) when > 0.
	StreamLevels  int  `env:"STREAM_LEVELS" envDefault:"0"`
	SequenceCheck bool `env:"SEQUENCE_CHECK" envDefault:"false"`
}

type CandleConfig struct {
	Interval string `env:"INTERVAL" envDefault:"1m"`
	Window   int    `env:"WINDOW" envDefault:"100"`
}

type StreamConfig struct {
	BackoffStep      time.Duration `env:"BACKOFF_STEP" envDefault:"2s"`
	BackoffMax       time.Duration `env:"BACKOFF_MAX" envDefault:"10s"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"5"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"5s"`
}

type ServerConfig struct {
	GRPCPort int    `env:"GRPC_PORT" envDefault:"8880"`
	HttpAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
	// File enables a rotating JSON log file next to the console output.
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"5"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"10"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"14"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	DebugMode = cfg.Debug
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: at least one market is required")
	}
	if c.Book.DepthLimit <= 0 {
		return fmt.Errorf("config: BOOK_DEPTH_LIMIT must be positive, got %d", c.Book.DepthLimit)
	}
	if c.Book.MergeInterval <= 0 {
		return fmt.Errorf("config: BOOK_MERGE_INTERVAL must be positive, got %s", c.Book.MergeInterval)
	}
	if c.Candle.Window <= 0 {
		return fmt.Errorf("config: CANDLE_WINDOW must be positive, got %d", c.Candle.Window)
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("config: STREAM_MAX_RETRIES must not be negative, got %d", c.Stream.MaxRetries)
	}
	return nil
}
