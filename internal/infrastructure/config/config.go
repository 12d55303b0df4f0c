package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the KNX state monitor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	KNX      KNXConfig      `yaml:"knx"`
	Inputs   InputsConfig   `yaml:"inputs"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this controller.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// KNX transport names.
const (
	TransportTPUART = "tpuart"
	TransportKNXD   = "knxd"
)

// KNXConfig contains KNX bus access and synchronisation settings.
type KNXConfig struct {
	// Transport is "tpuart" (serial BCU) or "knxd" (group socket).
	Transport string `yaml:"transport"`

	// SerialPort is the TP-UART device. Default: "/dev/ttyAMA0"
	SerialPort string `yaml:"serial_port"`

	// KNXDConnection is the knxd URL, e.g. "unix:///run/knxd" or "tcp://localhost:6720".
	KNXDConnection string `yaml:"knxd_connection"`

	// IndividualAddress is this device's address on the bus. Default: "1.1.244"
	IndividualAddress string `yaml:"individual_address"`

	// ReadTimeoutMS is how long to wait for a read response. Default: 5000
	ReadTimeoutMS int `yaml:"read_timeout_ms"`

	// StaleAfterMinutes is the state refresh age. Default: 65
	StaleAfterMinutes int `yaml:"stale_after_minutes"`

	// TickIntervalMS is the control loop period. Default: 10
	TickIntervalMS int `yaml:"tick_interval_ms"`
}

// Input source names.
const (
	SourceMCP23017 = "mcp23017"
	SourceGPIO     = "gpio"
	SourceNone     = "none"
)

// InputsConfig selects the input hardware and the startup slot configuration.
type InputsConfig struct {
	// Source is "mcp23017", "gpio" or "none".
	Source string `yaml:"source"`

	// I2CBus is the i2c-dev bus number for mcp23017. Default: 1
	I2CBus int `yaml:"i2c_bus"`

	// GPIOChip is the character device for gpio. Default: "gpiochip0"
	GPIOChip string `yaml:"gpio_chip"`

	// GPIOLines are the line offsets for gpio, one slot each.
	GPIOLines []int `yaml:"gpio_lines"`

	// Slots is used when Source is "none"; otherwise the hardware decides.
	Slots int `yaml:"slots"`

	// PollIntervalMS is the sampling period. Default: 5
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// DefaultType applies to every slot not listed below. Default: "switch"
	DefaultType string `yaml:"default_type"`

	// Slot configures individual slots.
	Slot []SlotConfig `yaml:"slot"`
}

// SlotConfig is the startup configuration of one input slot.
type SlotConfig struct {
	Index          int    `yaml:"index"`
	Type           string `yaml:"type"`
	Invert         bool   `yaml:"invert"`
	Disabled       bool   `yaml:"disabled"`
	CommandAddress string `yaml:"command_address"`
	StateAddress   string `yaml:"state_address"`
	FailoverOnly   bool   `yaml:"failover_only"`
}

// MonitorConfig contains orchestration settings.
type MonitorConfig struct {
	// HealthInterval is seconds between health publications. Default: 30
	HealthInterval int `yaml:"health_interval"`

	// RecordBus enables the bus recorder. Default: true
	RecordBus bool `yaml:"record_bus"`

	// ForceFailover starts with KNX commands always sent.
	ForceFailover bool `yaml:"force_failover"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: STATEMONITOR_SECTION_KEY
// For example: STATEMONITOR_KNX_TRANSPORT, STATEMONITOR_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "knx-statemonitor",
			Name: "KNX State Monitor",
		},
		KNX: KNXConfig{
			Transport:         TransportTPUART,
			SerialPort:        "/dev/ttyAMA0",
			KNXDConnection:    "unix:///run/knxd",
			IndividualAddress: "1.1.244",
			ReadTimeoutMS:     5000,
			StaleAfterMinutes: 65,
			TickIntervalMS:    10,
		},
		Inputs: InputsConfig{
			Source:         SourceMCP23017,
			I2CBus:         1,
			GPIOChip:       "gpiochip0",
			PollIntervalMS: 5,
			DefaultType:    "switch",
		},
		Monitor: MonitorConfig{
			HealthInterval: 30,
			RecordBus:      true,
		},
		Database: DatabaseConfig{
			Path:        "./data/statemonitor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knx-statemonitor",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STATEMONITOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("STATEMONITOR_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// KNX
	if v := os.Getenv("STATEMONITOR_KNX_TRANSPORT"); v != "" {
		cfg.KNX.Transport = v
	}
	if v := os.Getenv("STATEMONITOR_KNX_SERIAL_PORT"); v != "" {
		cfg.KNX.SerialPort = v
	}
	if v := os.Getenv("STATEMONITOR_KNX_KNXD_CONNECTION"); v != "" {
		cfg.KNX.KNXDConnection = v
	}
	if v := os.Getenv("STATEMONITOR_KNX_INDIVIDUAL_ADDRESS"); v != "" {
		cfg.KNX.IndividualAddress = v
	}

	// Inputs
	if v := os.Getenv("STATEMONITOR_INPUTS_SOURCE"); v != "" {
		cfg.Inputs.Source = v
	}
	if v := os.Getenv("STATEMONITOR_INPUTS_I2C_BUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Inputs.I2CBus = n
		}
	}

	// Database
	if v := os.Getenv("STATEMONITOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("STATEMONITOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("STATEMONITOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STATEMONITOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("STATEMONITOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("STATEMONITOR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// KNX validation
	switch c.KNX.Transport {
	case TransportTPUART:
		if c.KNX.SerialPort == "" {
			errs = append(errs, "knx.serial_port is required for tpuart")
		}
	case TransportKNXD:
		if c.KNX.KNXDConnection == "" {
			errs = append(errs, "knx.knxd_connection is required for knxd")
		}
	default:
		errs = append(errs, fmt.Sprintf("knx.transport must be %q or %q", TransportTPUART, TransportKNXD))
	}
	if c.KNX.ReadTimeoutMS <= 0 {
		errs = append(errs, "knx.read_timeout_ms must be positive")
	}
	if c.KNX.StaleAfterMinutes <= 0 {
		errs = append(errs, "knx.stale_after_minutes must be positive")
	}
	if c.KNX.TickIntervalMS <= 0 {
		errs = append(errs, "knx.tick_interval_ms must be positive")
	}

	// Inputs validation
	switch c.Inputs.Source {
	case SourceMCP23017:
	case SourceGPIO:
		if len(c.Inputs.GPIOLines) == 0 {
			errs = append(errs, "inputs.gpio_lines is required for gpio")
		}
	case SourceNone:
		if c.Inputs.Slots <= 0 {
			errs = append(errs, "inputs.slots must be positive when source is none")
		}
	default:
		errs = append(errs, fmt.Sprintf("inputs.source must be %q, %q or %q", SourceMCP23017, SourceGPIO, SourceNone))
	}
	seen := make(map[int]bool, len(c.Inputs.Slot))
	for _, s := range c.Inputs.Slot {
		if s.Index < 1 {
			errs = append(errs, fmt.Sprintf("inputs.slot index %d must be 1 or more", s.Index))
		}
		if seen[s.Index] {
			errs = append(errs, fmt.Sprintf("inputs.slot index %d listed twice", s.Index))
		}
		seen[s.Index] = true
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the KNX read response timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.KNX.ReadTimeoutMS) * time.Millisecond
}

// GetStaleAfter returns the state refresh age.
func (c *Config) GetStaleAfter() time.Duration {
	return time.Duration(c.KNX.StaleAfterMinutes) * time.Minute
}

// GetTickInterval returns the control loop period.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.KNX.TickIntervalMS) * time.Millisecond
}

// GetPollInterval returns the input sampling period.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Inputs.PollIntervalMS) * time.Millisecond
}

// GetHealthInterval returns the health publication period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Monitor.HealthInterval) * time.Second
}
