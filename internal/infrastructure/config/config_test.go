package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
api:
  base_url: "https://fleet.example.com"
  prefix: "/api"
  timeout: 15
realtime:
  path: "/api/ws"
  reconnect_delay: 7
storage:
  path: "/tmp/fleetdesk-test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "fleet"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://fleet.example.com" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://fleet.example.com")
	}
	if cfg.Realtime.Path != "/api/ws" {
		t.Errorf("Realtime.Path = %q, want %q", cfg.Realtime.Path, "/api/ws")
	}
	if cfg.GetReconnectDelay() != 7*time.Second {
		t.Errorf("GetReconnectDelay() = %v, want 7s", cfg.GetReconnectDelay())
	}
	if cfg.GetAPITimeout() != 15*time.Second {
		t.Errorf("GetAPITimeout() = %v, want 15s", cfg.GetAPITimeout())
	}
	if cfg.Storage.Path != "/tmp/fleetdesk-test.db" {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, "/tmp/fleetdesk-test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	// Defaults survive for unspecified sections
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Realtime.Path != "/ws" {
		t.Errorf("Realtime.Path = %q, want /ws", cfg.Realtime.Path)
	}
	if cfg.GetReconnectDelay() != 5*time.Second {
		t.Errorf("GetReconnectDelay() = %v, want 5s", cfg.GetReconnectDelay())
	}
	if cfg.API.Prefix != "/api" {
		t.Errorf("API.Prefix = %q, want /api", cfg.API.Prefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
realtime:
  path: "ws"
  reconnect_delay: 0
storage:
  path: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}

	for _, want := range []string{"realtime.path", "realtime.reconnect_delay", "storage.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FLEETDESK_API_BASE_URL", "https://api.example.com")
	t.Setenv("FLEETDESK_WS_BASE_URL", "https://push.example.com")
	t.Setenv("FLEETDESK_ORIGIN", "http://origin.example.com")
	t.Setenv("FLEETDESK_STORAGE_PATH", "/var/lib/fleetdesk/state.db")
	t.Setenv("FLEETDESK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FLEETDESK_MQTT_USERNAME", "relay")
	t.Setenv("FLEETDESK_MQTT_PASSWORD", "secret")
	t.Setenv("FLEETDESK_INFLUXDB_TOKEN", "influx-token")
	t.Setenv("FLEETDESK_LOG_LEVEL", "debug")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Realtime.BaseURL != "https://push.example.com" {
		t.Errorf("Realtime.BaseURL = %q", cfg.Realtime.BaseURL)
	}
	if cfg.API.Origin != "http://origin.example.com" {
		t.Errorf("API.Origin = %q", cfg.API.Origin)
	}
	if cfg.Storage.Path != "/var/lib/fleetdesk/state.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Auth.Username != "relay" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "influx-token" {
		t.Errorf("InfluxDB.Token = %q", cfg.InfluxDB.Token)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestRealtimeBaseURL_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		realtime string
		api      string
		origin   string
		want     string
	}{
		{
			name:     "realtime base wins",
			realtime: "https://push.example.com",
			api:      "https://api.example.com",
			origin:   "http://localhost:8001",
			want:     "https://push.example.com",
		},
		{
			name:   "api base when realtime empty",
			api:    "https://api.example.com",
			origin: "http://localhost:8001",
			want:   "https://api.example.com",
		},
		{
			name:   "origin when both empty",
			origin: "http://localhost:8001",
			want:   "http://localhost:8001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Realtime.BaseURL = tt.realtime
			cfg.API.BaseURL = tt.api
			cfg.API.Origin = tt.origin

			if got := cfg.RealtimeBaseURL(); got != tt.want {
				t.Errorf("RealtimeBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "relative api base url",
			mutate:  func(c *Config) { c.API.BaseURL = "fleet.example.com" },
			wantErr: "api.base_url",
		},
		{
			name: "no api base and no origin",
			mutate: func(c *Config) {
				c.API.BaseURL = ""
				c.API.Origin = ""
			},
			wantErr: "api.origin",
		},
		{
			name:    "relative realtime base url",
			mutate:  func(c *Config) { c.Realtime.BaseURL = "/ws" },
			wantErr: "realtime.base_url",
		},
		{
			name: "console port out of range",
			mutate: func(c *Config) {
				c.Console.Enabled = true
				c.Console.Port = 70000
			},
			wantErr: "console.port",
		},
		{
			name: "invalid mqtt qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "influxdb without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "fleet"
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
