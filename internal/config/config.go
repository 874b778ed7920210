// Package config loads the daemon configuration from YAML.
//
// Load order is defaults, then the YAML file, then environment overrides,
// then Validate. A missing file is not an error: the defaults describe the
// standard seven-zone board.
//
// Broker credentials are not part of this file. They live in the settings
// record written by provisioning (see internal/settings).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sprinkler-controller/internal/gpio"
)

// DefaultPath is the config file location used when --config is not given.
const DefaultPath = "/etc/sprinkler/config.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Limits enforced by Validate.
const (
	MaxZones       = 64
	MaxZoneNameLen = 48
	MaxRuntimeCap  = 24 * time.Hour
)

// Output drivers.
const (
	DriverGPIO   = "gpio"
	DriverModbus = "modbus"
)

// Config is the root configuration structure.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Safety   SafetyConfig   `yaml:"safety"`
	Output   OutputConfig   `yaml:"output"`
	Zones    []ZoneConfig   `yaml:"zones"`
	HTTP     HTTPConfig     `yaml:"http"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies the controller to the broker and the hub.
type DeviceConfig struct {
	ClientID string `yaml:"client_id"`
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
}

// MQTTConfig holds topic layout and timing. Broker address and credentials
// come from the settings record at SettingsFile.
type MQTTConfig struct {
	SettingsFile      string        `yaml:"settings_file"`
	TopicPrefix       string        `yaml:"topic_prefix"`
	DiscoveryPrefix   string        `yaml:"discovery_prefix"`
	QoS               int           `yaml:"qos"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

// SafetyConfig bounds how long any zone may run.
// The ceiling cannot be disabled.
type SafetyConfig struct {
	MaxRuntime    time.Duration `yaml:"max_runtime"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// OutputConfig selects and configures the relay driver.
type OutputConfig struct {
	Driver string       `yaml:"driver"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	Modbus ModbusConfig `yaml:"modbus"`
}

// GPIOConfig configures the Linux GPIO character device driver.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	ActiveLow bool   `yaml:"active_low"`
}

// ModbusConfig configures a Modbus/TCP relay board.
type ModbusConfig struct {
	Address string        `yaml:"address"`
	UnitID  int           `yaml:"unit_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// ZoneConfig describes one zone. Pin is the GPIO line offset for the gpio
// driver and the coil address for the modbus driver.
type ZoneConfig struct {
	Name string `yaml:"name"`
	Pin  int    `yaml:"pin"`
}

// HTTPConfig configures the local status page. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig configures the SQLite run log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from path and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration for the standard seven-zone board.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ClientID: "sprinkler_controller",
			Name:     "Sprinkler Controller",
			Model:    "Sprinkler Controller",
		},
		MQTT: MQTTConfig{
			SettingsFile:      "/var/lib/sprinkler/settings.json",
			TopicPrefix:       "home/sprinkler/",
			DiscoveryPrefix:   "homeassistant",
			QoS:               0,
			ReconnectInterval: 5 * time.Second,
			StatusInterval:    60 * time.Second,
			ConnectTimeout:    10 * time.Second,
			PublishTimeout:    5 * time.Second,
		},
		Safety: SafetyConfig{
			MaxRuntime:    2 * time.Hour,
			SweepInterval: time.Second,
		},
		Output: OutputConfig{
			Driver: DriverGPIO,
			GPIO: GPIOConfig{
				Chip: gpio.DefaultChip,
			},
			Modbus: ModbusConfig{
				UnitID:  1,
				Timeout: 2 * time.Second,
			},
		},
		Zones: defaultZones(),
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "/var/lib/sprinkler/history.db",
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "sprinkler",
			BatchSize:     50,
			FlushInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

var defaultZoneNames = []string{
	"Front Lawn", "Back Lawn", "Garden", "Side Yard",
	"Flower Bed", "Drip System", "Extra Zone",
}

// defaultZones pairs the standard zone names with the board's relay lines.
func defaultZones() []ZoneConfig {
	zones := make([]ZoneConfig, len(gpio.DefaultPins))
	for i, pin := range gpio.DefaultPins {
		zones[i] = ZoneConfig{Name: defaultZoneNames[i], Pin: pin}
	}
	return zones
}

// applyEnvOverrides applies SPRINKLER_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPRINKLER_SETTINGS_FILE"); v != "" {
		cfg.MQTT.SettingsFile = v
	}
	if v, ok := os.LookupEnv("SPRINKLER_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SPRINKLER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("SPRINKLER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// StatusTopic is where availability markers and status snapshots go.
func (c *Config) StatusTopic() string {
	return c.MQTT.TopicPrefix + "status"
}

// ZoneNames returns the configured zone names in index order.
func (c *Config) ZoneNames() []string {
	names := make([]string, len(c.Zones))
	for i, z := range c.Zones {
		names[i] = z.Name
	}
	return names
}

// Pins returns the configured pin or coil of every zone in index order.
func (c *Config) Pins() []int {
	pins := make([]int, len(c.Zones))
	for i, z := range c.Zones {
		pins[i] = z.Pin
	}
	return pins
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ClientID == "" {
		errs = append(errs, "device.client_id is required")
	}

	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateSafety()...)
	errs = append(errs, c.validateOutput()...)
	errs = append(errs, c.validateZones()...)

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateMQTT() []string {
	var errs []string
	m := c.MQTT

	if m.SettingsFile == "" {
		errs = append(errs, "mqtt.settings_file is required")
	}
	switch {
	case m.TopicPrefix == "":
		errs = append(errs, "mqtt.topic_prefix is required")
	case !strings.HasSuffix(m.TopicPrefix, "/"):
		errs = append(errs, "mqtt.topic_prefix must end with /")
	case strings.HasPrefix(m.TopicPrefix, "/"):
		errs = append(errs, "mqtt.topic_prefix must not start with /")
	case strings.ContainsAny(m.TopicPrefix, "+#"):
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}
	if m.DiscoveryPrefix == "" || strings.ContainsAny(m.DiscoveryPrefix, "+#") {
		errs = append(errs, "mqtt.discovery_prefix must be a plain topic segment")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if m.ReconnectInterval <= 0 {
		errs = append(errs, "mqtt.reconnect_interval must be positive")
	}
	if m.StatusInterval <= 0 {
		errs = append(errs, "mqtt.status_interval must be positive")
	}
	if m.ConnectTimeout <= 0 || m.PublishTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout and mqtt.publish_timeout must be positive")
	}
	return errs
}

func (c *Config) validateSafety() []string {
	var errs []string
	s := c.Safety

	if s.MaxRuntime <= 0 {
		errs = append(errs, "safety.max_runtime must be positive")
	} else if s.MaxRuntime > MaxRuntimeCap {
		errs = append(errs, fmt.Sprintf("safety.max_runtime must not exceed %s", MaxRuntimeCap))
	}
	if s.SweepInterval <= 0 {
		errs = append(errs, "safety.sweep_interval must be positive")
	} else if s.MaxRuntime > 0 && s.SweepInterval >= s.MaxRuntime {
		errs = append(errs, "safety.sweep_interval must be shorter than safety.max_runtime")
	}
	return errs
}

func (c *Config) validateOutput() []string {
	var errs []string

	switch c.Output.Driver {
	case DriverGPIO:
		if c.Output.GPIO.Chip == "" {
			errs = append(errs, "output.gpio.chip is required")
		}
	case DriverModbus:
		mb := c.Output.Modbus
		if mb.Address == "" {
			errs = append(errs, "output.modbus.address is required")
		}
		if mb.UnitID < 0 || mb.UnitID > 247 {
			errs = append(errs, "output.modbus.unit_id must be between 0 and 247")
		}
		if mb.Timeout <= 0 {
			errs = append(errs, "output.modbus.timeout must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("output.driver %q must be %q or %q", c.Output.Driver, DriverGPIO, DriverModbus))
	}
	return errs
}

func (c *Config) validateZones() []string {
	var errs []string

	if len(c.Zones) == 0 || len(c.Zones) > MaxZones {
		errs = append(errs, fmt.Sprintf("zones: need between 1 and %d zones, got %d", MaxZones, len(c.Zones)))
	}

	maxPin := 1<<16 - 1
	seen := make(map[int]int)
	for i, z := range c.Zones {
		n := i + 1
		if z.Name == "" {
			errs = append(errs, fmt.Sprintf("zones[%d].name is required", n))
		} else if len(z.Name) > MaxZoneNameLen {
			errs = append(errs, fmt.Sprintf("zones[%d].name exceeds %d bytes", n, MaxZoneNameLen))
		}
		if z.Pin < 0 || z.Pin > maxPin {
			errs = append(errs, fmt.Sprintf("zones[%d].pin %d out of range", n, z.Pin))
		}
		if prev, dup := seen[z.Pin]; dup {
			errs = append(errs, fmt.Sprintf("zones[%d].pin %d already used by zone %d", n, z.Pin, prev))
		} else {
			seen[z.Pin] = n
		}
	}
	return errs
}
