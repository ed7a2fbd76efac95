package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BybitMainnetURL   = "https://api.bybit.com"
	BybitTestnetURL   = "https://api-testnet.bybit.com"
	BybitSpotWSURL    = "wss://stream.bybit.com/v5/public/spot"
	BybitTestnetWSURL = "wss://stream-testnet.bybit.com/v5/public/spot"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

type ExchangeConfig struct {
	Name         string        `yaml:"name"`
	APIKey       string        `yaml:"api_key"`
	APISecret    string        `yaml:"api_secret"`
	Testnet      bool          `yaml:"testnet"`
	RESTEndpoint string        `yaml:"rest_endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	Category     string        `yaml:"category"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second
	RecvWindow   int           `yaml:"recv_window"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	ResyncEvery   time.Duration `yaml:"resync_every"`
	StreamEnabled bool          `yaml:"stream_enabled"`
}

// Load reads the YAML file at path, then overlays values from the
// environment (and a .env file when present).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("BYBIT_TESTNET"); v != "" {
		testnet, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BYBIT_TESTNET: %w", err)
		}
		c.Exchange.Testnet = testnet
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = "bybit"
	}
	if c.Exchange.RESTEndpoint == "" {
		c.Exchange.RESTEndpoint = BybitMainnetURL
		if c.Exchange.Testnet {
			c.Exchange.RESTEndpoint = BybitTestnetURL
		}
	}
	if c.Exchange.WSEndpoint == "" {
		c.Exchange.WSEndpoint = BybitSpotWSURL
		if c.Exchange.Testnet {
			c.Exchange.WSEndpoint = BybitTestnetWSURL
		}
	}
	if c.Exchange.Category == "" {
		c.Exchange.Category = "spot"
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = 10 * time.Second
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = 10
	}
	if c.Exchange.RecvWindow == 0 {
		c.Exchange.RecvWindow = 5000
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite3" {
		c.Storage.DSN = "bots.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = 5 * time.Second
	}
	if c.Monitor.ResyncEvery == 0 {
		c.Monitor.ResyncEvery = 30 * time.Second
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Exchange.Name != "bybit" {
		return fmt.Errorf("unsupported exchange %q", c.Exchange.Name)
	}
	if c.Exchange.APIKey == "" {
		return fmt.Errorf("exchange api_key (or BYBIT_API_KEY) is required")
	}
	if c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_secret (or BYBIT_API_SECRET) is required")
	}
	if c.Exchange.Timeout < 0 {
		return fmt.Errorf("exchange timeout must be positive")
	}
	if c.Exchange.RateLimit < 0 {
		return fmt.Errorf("exchange rate_limit must be positive")
	}
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage dsn (or DB_DSN) is required")
	}
	if c.Monitor.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("monitor poll_interval too small: %s", c.Monitor.PollInterval)
	}
	return nil
}
