package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name:    "Defaults from empty file",
			content: "",
			validate: func(t *testing.T, c *Config) {
				if c.Broker.Address != "tcp://127.0.0.1:1883" {
					t.Errorf("expected default broker address, got %s", c.Broker.Address)
				}
				if c.Broker.ReconnectDelay != time.Second {
					t.Errorf("expected reconnect delay 1s, got %s", c.Broker.ReconnectDelay)
				}
				if c.Broker.ConnectTimeout != 30*time.Second {
					t.Errorf("expected connect timeout 30s, got %s", c.Broker.ConnectTimeout)
				}
				if len(c.Broker.Topics) != 1 || c.Broker.Topics[0] != "motion" {
					t.Errorf("expected default topic motion, got %v", c.Broker.Topics)
				}
				if c.HTTP.Address != ":5000" {
					t.Errorf("expected http address :5000, got %s", c.HTTP.Address)
				}
				if c.Logging.Level != "info" || c.Logging.Encoding != "json" {
					t.Errorf("unexpected logging defaults: %+v", c.Logging)
				}
			},
		},
		{
			name: "YAML file values",
			content: `
broker:
  address: mqtt://broker.local:1884
  clientIdPrefix: bridge-
  reconnectDelay: 250ms
  topics: [motion, temperature]
store:
  maxMessages: 10
http:
  address: ":8080"
  rateLimit: 5
logging:
  level: debug
  encoding: console
`,
			validate: func(t *testing.T, c *Config) {
				if c.Broker.Address != "mqtt://broker.local:1884" {
					t.Errorf("unexpected address %s", c.Broker.Address)
				}
				if c.Broker.ClientIDPrefix != "bridge-" {
					t.Errorf("unexpected client id prefix %s", c.Broker.ClientIDPrefix)
				}
				if c.Broker.ReconnectDelay != 250*time.Millisecond {
					t.Errorf("unexpected reconnect delay %s", c.Broker.ReconnectDelay)
				}
				if len(c.Broker.Topics) != 2 {
					t.Errorf("expected 2 topics, got %d", len(c.Broker.Topics))
				}
				if c.Store.MaxMessages != 10 {
					t.Errorf("expected max messages 10, got %d", c.Store.MaxMessages)
				}
				if c.HTTP.Burst != 5 {
					t.Errorf("expected burst to default to rate, got %d", c.HTTP.Burst)
				}
			},
		},
		{
			name:    "JSON file is valid YAML",
			content: `{"broker": {"address": "nats://127.0.0.1:4222", "topics": ["motion"]}}`,
			validate: func(t *testing.T, c *Config) {
				kind, err := TransportKind(c.Broker.Address)
				if err != nil {
					t.Fatal(err)
				}
				if kind != "nats" {
					t.Errorf("expected nats transport, got %s", kind)
				}
			},
		},
		{
			name:    "Unsupported scheme",
			content: "broker:\n  address: amqp://127.0.0.1:5672\n",
			wantErr: true,
		},
		{
			name:    "Missing host",
			content: "broker:\n  address: tcp://\n",
			wantErr: true,
		},
		{
			name:    "Invalid log level",
			content: "logging:\n  level: verbose\n",
			wantErr: true,
		},
		{
			name:    "TLS without files",
			content: "broker:\n  tls:\n    enable: true\n",
			wantErr: true,
		},
		{
			name:    "Negative retention",
			content: "store:\n  maxMessages: -1\n",
			wantErr: true,
		},
		{
			name:    "Reconnect max delay below delay",
			content: "broker:\n  reconnectDelay: 2s\n  reconnectMaxDelay: 1s\n",
			wantErr: true,
		},
		{
			name:    "Malformed file",
			content: "broker: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil && tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BRIDGE_BROKER_ADDRESS", "tcp://env-broker:1883")
	t.Setenv("BRIDGE_BROKER_TOPICS", "a/b,c/#")
	t.Setenv("BRIDGE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "broker:\n  address: tcp://file-broker:1883\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Broker.Address != "tcp://env-broker:1883" {
		t.Errorf("expected environment to win, got %s", cfg.Broker.Address)
	}
	if len(cfg.Broker.Topics) != 2 || cfg.Broker.Topics[1] != "c/#" {
		t.Errorf("unexpected topics %v", cfg.Broker.Topics)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Broker.Address == "" {
		t.Error("expected defaults without a file")
	}
}

func TestTransportKind(t *testing.T) {
	tests := []struct {
		address string
		want    string
		wantErr bool
	}{
		{"tcp://localhost:1883", "mqtt", false},
		{"mqtt://localhost:1883", "mqtt", false},
		{"ssl://localhost:8883", "mqtt", false},
		{"ws://localhost:9001", "mqtt", false},
		{"nats://localhost:4222", "nats", false},
		{"http://localhost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := TransportKind(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TransportKind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TransportKind() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	base := Config{}
	base.SetDefaults()

	tests := []struct {
		name            string
		brokerAddr      string
		topics          []string
		httpAddr        string
		metricsAddr     string
		metricsPath     string
		metricsInterval time.Duration
		validate        func(*testing.T, *Config)
	}{
		{
			name:            "Override all values",
			brokerAddr:      "tcp://other:1883",
			topics:          []string{"a", "b"},
			httpAddr:        ":9000",
			metricsAddr:     ":3000",
			metricsPath:     "/prometheus",
			metricsInterval: 30 * time.Second,
			validate: func(t *testing.T, c *Config) {
				if c.Broker.Address != "tcp://other:1883" {
					t.Errorf("expected broker override, got %s", c.Broker.Address)
				}
				if len(c.Broker.Topics) != 2 {
					t.Errorf("expected 2 topics, got %v", c.Broker.Topics)
				}
				if c.HTTP.Address != ":9000" {
					t.Errorf("expected Address=:9000, got %s", c.HTTP.Address)
				}
				if c.Metrics.Address != ":3000" {
					t.Errorf("expected Address=:3000, got %s", c.Metrics.Address)
				}
				if c.Metrics.Path != "/prometheus" {
					t.Errorf("expected Path=/prometheus, got %s", c.Metrics.Path)
				}
				if c.Metrics.UpdateInterval != 30*time.Second {
					t.Errorf("expected UpdateInterval=30s, got %s", c.Metrics.UpdateInterval)
				}
			},
		},
		{
			name: "No overrides",
			validate: func(t *testing.T, c *Config) {
				if c.Broker.Address != "tcp://127.0.0.1:1883" {
					t.Errorf("expected default broker, got %s", c.Broker.Address)
				}
				if c.Metrics.Address != ":2112" {
					t.Errorf("expected Address=:2112, got %s", c.Metrics.Address)
				}
				if c.Metrics.UpdateInterval != 15*time.Second {
					t.Errorf("expected UpdateInterval=15s, got %s", c.Metrics.UpdateInterval)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testCfg := base
			testCfg.Broker.Topics = append([]string(nil), base.Broker.Topics...)
			testCfg.ApplyOverrides(
				tt.brokerAddr,
				tt.topics,
				tt.httpAddr,
				tt.metricsAddr,
				tt.metricsPath,
				tt.metricsInterval,
			)
			tt.validate(t, &testCfg)
		})
	}
}
