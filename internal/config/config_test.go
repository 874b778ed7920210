package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Zones) != 7 {
		t.Fatalf("expected 7 zones, got %d", len(cfg.Zones))
	}
	if cfg.Zones[0].Name != "Front Lawn" || cfg.Zones[0].Pin != 5 {
		t.Errorf("zone 1: got %+v", cfg.Zones[0])
	}
	if cfg.Zones[6].Name != "Extra Zone" || cfg.Zones[6].Pin != 16 {
		t.Errorf("zone 7: got %+v", cfg.Zones[6])
	}
	if cfg.Safety.MaxRuntime != 2*time.Hour {
		t.Errorf("max runtime: got %v", cfg.Safety.MaxRuntime)
	}
	if cfg.MQTT.ReconnectInterval != 5*time.Second {
		t.Errorf("reconnect interval: got %v", cfg.MQTT.ReconnectInterval)
	}
	if cfg.MQTT.StatusInterval != time.Minute {
		t.Errorf("status interval: got %v", cfg.MQTT.StatusInterval)
	}
	if cfg.StatusTopic() != "home/sprinkler/status" {
		t.Errorf("status topic: got %q", cfg.StatusTopic())
	}
	if cfg.Device.ClientID != "sprinkler_controller" {
		t.Errorf("client id: got %q", cfg.Device.ClientID)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  client_id: garden_controller
mqtt:
  topic_prefix: garden/
  qos: 1
  status_interval: 30s
safety:
  max_runtime: 45m
zones:
  - name: Beds
    pin: 17
  - name: Lawn
    pin: 27
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.ClientID != "garden_controller" {
		t.Errorf("client id: got %q", cfg.Device.ClientID)
	}
	if cfg.MQTT.TopicPrefix != "garden/" || cfg.StatusTopic() != "garden/status" {
		t.Errorf("prefix: got %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("qos: got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.StatusInterval != 30*time.Second {
		t.Errorf("status interval: got %v", cfg.MQTT.StatusInterval)
	}
	if cfg.MQTT.ReconnectInterval != 5*time.Second {
		t.Errorf("unset field should keep default, got %v", cfg.MQTT.ReconnectInterval)
	}
	if cfg.Safety.MaxRuntime != 45*time.Minute {
		t.Errorf("max runtime: got %v", cfg.Safety.MaxRuntime)
	}
	if got := cfg.ZoneNames(); len(got) != 2 || got[0] != "Beds" || got[1] != "Lawn" {
		t.Errorf("zones: got %v", got)
	}
	if got := cfg.Pins(); got[0] != 17 || got[1] != 27 {
		t.Errorf("pins: got %v", got)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "debug" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPRINKLER_SETTINGS_FILE", "/tmp/settings.json")
	t.Setenv("SPRINKLER_HTTP_ADDR", "")
	t.Setenv("SPRINKLER_INFLUXDB_TOKEN", "tok")
	t.Setenv("SPRINKLER_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MQTT.SettingsFile != "/tmp/settings.json" {
		t.Errorf("settings file: got %q", cfg.MQTT.SettingsFile)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("empty SPRINKLER_HTTP_ADDR should disable http, got %q", cfg.HTTP.Addr)
	}
	if cfg.InfluxDB.Token != "tok" {
		t.Errorf("token: got %q", cfg.InfluxDB.Token)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level: got %q", cfg.Logging.Level)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "zones: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero ceiling", func(c *Config) { c.Safety.MaxRuntime = 0 }, "safety.max_runtime must be positive"},
		{"negative ceiling", func(c *Config) { c.Safety.MaxRuntime = -time.Minute }, "safety.max_runtime must be positive"},
		{"ceiling too long", func(c *Config) { c.Safety.MaxRuntime = 25 * time.Hour }, "must not exceed"},
		{"sweep not shorter than ceiling", func(c *Config) {
			c.Safety.MaxRuntime = time.Minute
			c.Safety.SweepInterval = time.Minute
		}, "sweep_interval must be shorter"},
		{"no zones", func(c *Config) { c.Zones = nil }, "need between 1 and 64"},
		{"too many zones", func(c *Config) {
			c.Zones = make([]ZoneConfig, MaxZones+1)
			for i := range c.Zones {
				c.Zones[i] = ZoneConfig{Name: "z", Pin: i}
			}
		}, "need between 1 and 64"},
		{"duplicate pin", func(c *Config) { c.Zones[1].Pin = c.Zones[0].Pin }, "already used by zone 1"},
		{"long name", func(c *Config) { c.Zones[0].Name = strings.Repeat("n", 49) }, "exceeds 48 bytes"},
		{"empty name", func(c *Config) { c.Zones[2].Name = "" }, "zones[3].name is required"},
		{"negative pin", func(c *Config) { c.Zones[0].Pin = -1 }, "out of range"},
		{"prefix without slash", func(c *Config) { c.MQTT.TopicPrefix = "home/sprinkler" }, "must end with /"},
		{"root prefix", func(c *Config) { c.MQTT.TopicPrefix = "/" }, "must not start with /"},
		{"wildcard prefix", func(c *Config) { c.MQTT.TopicPrefix = "home/+/" }, "wildcards"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"unknown driver", func(c *Config) { c.Output.Driver = "spi" }, "output.driver"},
		{"modbus without address", func(c *Config) { c.Output.Driver = DriverModbus }, "output.modbus.address"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("got %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Safety.MaxRuntime = 0
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"max_runtime", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
