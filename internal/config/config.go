package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env"

	"github.com/mcoot/skirmish/internal/catalog"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// Config is the server configuration, read from SKIRMISH_* environment variables
type Config struct {
	TCPAddr    string `env:"SKIRMISH_TCP_ADDR" envDefault:":9339"`
	UDPAddr    string `env:"SKIRMISH_UDP_ADDR" envDefault:":9340"`
	PublicHost string `env:"SKIRMISH_PUBLIC_HOST" envDefault:"127.0.0.1"`
	AdminAddr  string `env:"SKIRMISH_ADMIN_ADDR" envDefault:":8080"`

	StorageType   string `env:"SKIRMISH_STORAGE" envDefault:"memory"`
	RedisURL      string `env:"SKIRMISH_REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisPool     int    `env:"SKIRMISH_REDIS_POOL_SIZE" envDefault:"10"`
	CatalogPath   string `env:"SKIRMISH_CATALOG_PATH" envDefault:""`
	EventRotation []int  `env:"SKIRMISH_EVENTS" envSeparator:","`

	// CryptoEnabled selects the NaCl secure channel; otherwise payloads travel in the clear
	CryptoEnabled bool `env:"SKIRMISH_CRYPTO" envDefault:"true"`
	// ServerSecretKey is the hex encoded x25519 private key. Empty generates one at boot.
	ServerSecretKey string `env:"SKIRMISH_SERVER_SECRET_KEY" envDefault:""`

	MinClientMajor int  `env:"SKIRMISH_MIN_CLIENT_MAJOR" envDefault:"1"`
	Maintenance    bool `env:"SKIRMISH_MAINTENANCE" envDefault:"false"`

	TickIntervalMS         int `env:"SKIRMISH_TICK_INTERVAL_MS" envDefault:"250"`
	SearchTimeoutSeconds   int `env:"SKIRMISH_SEARCH_TIMEOUT_SECONDS" envDefault:"3600"`
	StatusIntervalMS       int `env:"SKIRMISH_STATUS_INTERVAL_MS" envDefault:"1000"`
	HeartbeatWindowSeconds int `env:"SKIRMISH_HEARTBEAT_WINDOW_SECONDS" envDefault:"15"`
	ReaperIntervalMS       int `env:"SKIRMISH_REAPER_INTERVAL_MS" envDefault:"1000"`
	FlushIntervalSeconds   int `env:"SKIRMISH_FLUSH_INTERVAL_SECONDS" envDefault:"30"`
	LeaderboardSeconds     int `env:"SKIRMISH_LEADERBOARD_INTERVAL_SECONDS" envDefault:"60"`
	LeaderboardSize        int `env:"SKIRMISH_LEADERBOARD_SIZE" envDefault:"100"`

	// BattleTimeScale multiplies mode timers in the local battle simulator
	BattleTimeScale float64 `env:"SKIRMISH_BATTLE_TIME_SCALE" envDefault:"1"`

	LogLevel string `env:"SKIRMISH_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageTypeMemory, StorageTypeRedis:
	default:
		return fmt.Errorf("invalid storage type %q: must be %q or %q", c.StorageType, StorageTypeMemory, StorageTypeRedis)
	}
	if c.TickIntervalMS <= 0 || c.ReaperIntervalMS <= 0 || c.StatusIntervalMS <= 0 {
		return fmt.Errorf("tick, status and reaper intervals must be positive")
	}
	if c.SearchTimeoutSeconds <= 0 || c.HeartbeatWindowSeconds <= 0 {
		return fmt.Errorf("search timeout and heartbeat window must be positive")
	}
	if c.FlushIntervalSeconds <= 0 || c.LeaderboardSeconds <= 0 {
		return fmt.Errorf("flush and leaderboard intervals must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalMS) * time.Millisecond
}

func (c Config) HeartbeatWindow() time.Duration {
	return time.Duration(c.HeartbeatWindowSeconds) * time.Second
}

func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalMS) * time.Millisecond
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

func (c Config) LeaderboardInterval() time.Duration {
	return time.Duration(c.LeaderboardSeconds) * time.Second
}

// Events turns the configured rotation into event slots numbered from 1.
// An empty rotation returns nil so the catalog's own events are used.
func (c Config) Events() []catalog.Event {
	if len(c.EventRotation) == 0 {
		return nil
	}
	events := make([]catalog.Event, len(c.EventRotation))
	for i, loc := range c.EventRotation {
		events[i] = catalog.Event{Slot: i + 1, LocationID: loc}
	}
	return events
}

// SlogLevel maps LogLevel onto slog
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
}
