package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. BRIDGE_BROKER_ADDRESS.
const EnvPrefix = "BRIDGE"

type Config struct {
	Broker  BrokerConfig  `yaml:"broker" envconfig:"BROKER"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	HTTP    HTTPConfig    `yaml:"http" envconfig:"HTTP"`
	Logging LogConfig     `yaml:"logging" envconfig:"LOG"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
}

type BrokerConfig struct {
	Address        string        `yaml:"address" split_words:"true"`
	ClientIDPrefix string        `yaml:"clientIdPrefix" split_words:"true"`
	Username       string        `yaml:"username" split_words:"true"`
	Password       string        `yaml:"password" split_words:"true"`
	KeepAlive      time.Duration `yaml:"keepAlive" split_words:"true"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" split_words:"true"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay" split_words:"true"`
	// ReconnectMaxDelay > ReconnectDelay switches to exponential backoff capped here.
	ReconnectMaxDelay time.Duration `yaml:"reconnectMaxDelay" split_words:"true"`
	SubscribeTimeout  time.Duration `yaml:"subscribeTimeout" split_words:"true"`
	Topics            []string      `yaml:"topics" split_words:"true"`
	TLS               TLSConfig     `yaml:"tls" envconfig:"TLS"`
}

type TLSConfig struct {
	Enable   bool   `yaml:"enable" split_words:"true"`
	CertFile string `yaml:"certFile" split_words:"true"`
	KeyFile  string `yaml:"keyFile" split_words:"true"`
	CAFile   string `yaml:"caFile" split_words:"true"`
}

type StoreConfig struct {
	MaxMessages int `yaml:"maxMessages" split_words:"true"` // 0 keeps every message
}

type HTTPConfig struct {
	Address         string        `yaml:"address" split_words:"true"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" split_words:"true"`
	RateLimit       float64       `yaml:"rateLimit" split_words:"true"` // requests per second, 0 = unlimited
	Burst           int           `yaml:"burst" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type LogConfig struct {
	Level      string `yaml:"level" split_words:"true"`      // debug, info, warn, error
	OutputPath string `yaml:"outputPath" split_words:"true"` // file path, "stdout" or "stderr"
	Encoding   string `yaml:"encoding" split_words:"true"`   // json or console
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled" split_words:"true"`
	Address        string        `yaml:"address" split_words:"true"`
	Path           string        `yaml:"path" split_words:"true"`
	UpdateInterval time.Duration `yaml:"updateInterval" split_words:"true"`
}

// Load reads the configuration file, applies environment overrides and defaults,
// then validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	config.SetDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	// Broker
	if c.Broker.Address == "" {
		c.Broker.Address = "tcp://127.0.0.1:1883"
	}
	if c.Broker.ClientIDPrefix == "" {
		c.Broker.ClientIDPrefix = "client"
	}
	if c.Broker.KeepAlive == 0 {
		c.Broker.KeepAlive = 60 * time.Second
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = 30 * time.Second
	}
	if c.Broker.ReconnectDelay == 0 {
		c.Broker.ReconnectDelay = time.Second
	}
	if c.Broker.SubscribeTimeout == 0 {
		c.Broker.SubscribeTimeout = 10 * time.Second
	}
	if len(c.Broker.Topics) == 0 {
		c.Broker.Topics = []string{"motion"}
	}

	// HTTP
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":5000"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.Burst <= 0 {
		c.HTTP.Burst = int(c.HTTP.RateLimit)
		if c.HTTP.Burst < 1 {
			c.HTTP.Burst = 1
		}
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	// Metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == 0 {
		c.Metrics.UpdateInterval = 15 * time.Second
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if err := validateBrokerConfig(cfg.Broker); err != nil {
		return err
	}

	if cfg.Store.MaxMessages < 0 {
		return fmt.Errorf("store max messages must not be negative")
	}

	if cfg.HTTP.RateLimit < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.UpdateInterval <= 0 {
		return fmt.Errorf("metrics update interval must be positive")
	}

	return nil
}

func validateBrokerConfig(b BrokerConfig) error {
	u, err := url.Parse(b.Address)
	if err != nil {
		return fmt.Errorf("invalid broker address: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("broker address must include host and port: %s", b.Address)
	}
	if _, err := TransportKind(b.Address); err != nil {
		return err
	}

	if b.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if b.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if b.ReconnectMaxDelay != 0 && b.ReconnectMaxDelay < b.ReconnectDelay {
		return fmt.Errorf("reconnect max delay must not be below reconnect delay")
	}

	for _, topic := range b.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topics must not be empty")
		}
	}

	if b.TLS.Enable {
		if b.TLS.CertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if b.TLS.KeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
		if b.TLS.CAFile == "" {
			return fmt.Errorf("tls ca file is required when tls is enabled")
		}
	}

	return nil
}

// TransportKind maps the scheme of a broker address onto "mqtt" or "nats".
func TransportKind(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid broker address: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		return "mqtt", nil
	case "nats":
		return "nats", nil
	default:
		return "", fmt.Errorf("unsupported broker scheme: %q", u.Scheme)
	}
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(brokerAddr string, topics []string, httpAddr, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if brokerAddr != "" {
		c.Broker.Address = brokerAddr
	}
	if len(topics) > 0 {
		c.Broker.Topics = topics
	}
	if httpAddr != "" {
		c.HTTP.Address = httpAddr
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval
	}
}
