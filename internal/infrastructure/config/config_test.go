package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  id: "hall-controller"
knx:
  transport: "knxd"
  knxd_connection: "tcp://localhost:6720"
  individual_address: "1.1.200"
  read_timeout_ms: 3000
inputs:
  source: "gpio"
  gpio_lines: [17, 27, 22]
  default_type: "button"
  slot:
    - index: 1
      type: "switch"
      command_address: "1/2/3"
      state_address: "1/2/4"
    - index: 3
      type: "rotary"
      command_address: "2/0/1"
      failover_only: true
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "hall-controller" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "hall-controller")
	}
	if cfg.KNX.Transport != TransportKNXD || cfg.KNX.KNXDConnection != "tcp://localhost:6720" {
		t.Errorf("KNX = %+v", cfg.KNX)
	}
	if cfg.GetReadTimeout() != 3*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 3s", cfg.GetReadTimeout())
	}
	// Not in the file: default kept
	if cfg.GetStaleAfter() != 65*time.Minute {
		t.Errorf("GetStaleAfter() = %v, want 65m", cfg.GetStaleAfter())
	}
	if len(cfg.Inputs.GPIOLines) != 3 || cfg.Inputs.GPIOLines[1] != 27 {
		t.Errorf("Inputs.GPIOLines = %v", cfg.Inputs.GPIOLines)
	}
	if len(cfg.Inputs.Slot) != 2 {
		t.Fatalf("Inputs.Slot has %d entries, want 2", len(cfg.Inputs.Slot))
	}
	if s := cfg.Inputs.Slot[1]; s.Index != 3 || s.Type != "rotary" || !s.FailoverOnly {
		t.Errorf("Inputs.Slot[1] = %+v", s)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
knx:
  transport: "usb"
`
	_, err := Load(writeConfig(t, content))
	if err == nil || !strings.Contains(err.Error(), "knx.transport") {
		t.Errorf("Load() error = %v, want knx.transport validation error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
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
			name:    "missing device ID",
			mutate:  func(c *Config) { c.Device.ID = "" },
			wantErr: "device.id",
		},
		{
			name:    "tpuart without serial port",
			mutate:  func(c *Config) { c.KNX.SerialPort = "" },
			wantErr: "knx.serial_port",
		},
		{
			name: "knxd without connection",
			mutate: func(c *Config) {
				c.KNX.Transport = TransportKNXD
				c.KNX.KNXDConnection = ""
			},
			wantErr: "knx.knxd_connection",
		},
		{
			name:    "zero read timeout",
			mutate:  func(c *Config) { c.KNX.ReadTimeoutMS = 0 },
			wantErr: "knx.read_timeout_ms",
		},
		{
			name:    "gpio without lines",
			mutate:  func(c *Config) { c.Inputs.Source = SourceGPIO },
			wantErr: "inputs.gpio_lines",
		},
		{
			name:    "none without slots",
			mutate:  func(c *Config) { c.Inputs.Source = SourceNone },
			wantErr: "inputs.slots",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Inputs.Source = "spi" },
			wantErr: "inputs.source",
		},
		{
			name: "duplicate slot",
			mutate: func(c *Config) {
				c.Inputs.Slot = []SlotConfig{{Index: 2}, {Index: 2}}
			},
			wantErr: "listed twice",
		},
		{
			name:    "slot index zero",
			mutate:  func(c *Config) { c.Inputs.Slot = []SlotConfig{{Index: 0}} },
			wantErr: "index 0",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
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
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetDurations(t *testing.T) {
	cfg := &Config{
		KNX: KNXConfig{
			ReadTimeoutMS:     2500,
			StaleAfterMinutes: 10,
			TickIntervalMS:    20,
		},
		Inputs:  InputsConfig{PollIntervalMS: 4},
		Monitor: MonitorConfig{HealthInterval: 15},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read timeout", cfg.GetReadTimeout(), 2500 * time.Millisecond},
		{"stale after", cfg.GetStaleAfter(), 10 * time.Minute},
		{"tick interval", cfg.GetTickInterval(), 20 * time.Millisecond},
		{"poll interval", cfg.GetPollInterval(), 4 * time.Millisecond},
		{"health interval", cfg.GetHealthInterval(), 15 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("STATEMONITOR_DEVICE_ID", "garage")
	t.Setenv("STATEMONITOR_KNX_TRANSPORT", "knxd")
	t.Setenv("STATEMONITOR_KNX_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("STATEMONITOR_KNX_KNXD_CONNECTION", "tcp://knxd:6720")
	t.Setenv("STATEMONITOR_KNX_INDIVIDUAL_ADDRESS", "1.1.10")
	t.Setenv("STATEMONITOR_INPUTS_SOURCE", "none")
	t.Setenv("STATEMONITOR_INPUTS_I2C_BUS", "3")
	t.Setenv("STATEMONITOR_DATABASE_PATH", "/custom/path.db")
	t.Setenv("STATEMONITOR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("STATEMONITOR_MQTT_USERNAME", "testuser")
	t.Setenv("STATEMONITOR_MQTT_PASSWORD", "testpass")
	t.Setenv("STATEMONITOR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("STATEMONITOR_LOGGING_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Device.ID", cfg.Device.ID, "garage"},
		{"KNX.Transport", cfg.KNX.Transport, "knxd"},
		{"KNX.SerialPort", cfg.KNX.SerialPort, "/dev/ttyUSB1"},
		{"KNX.KNXDConnection", cfg.KNX.KNXDConnection, "tcp://knxd:6720"},
		{"KNX.IndividualAddress", cfg.KNX.IndividualAddress, "1.1.10"},
		{"Inputs.Source", cfg.Inputs.Source, "none"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.Inputs.I2CBus != 3 {
		t.Errorf("Inputs.I2CBus = %d, want 3", cfg.Inputs.I2CBus)
	}
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("STATEMONITOR_INPUTS_I2C_BUS", "one")

	applyEnvOverrides(cfg)

	if cfg.Inputs.I2CBus != 1 {
		t.Errorf("Inputs.I2CBus = %d, want default 1", cfg.Inputs.I2CBus)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.KNX.Transport != TransportTPUART {
		t.Errorf("default KNX.Transport = %q, want tpuart", cfg.KNX.Transport)
	}
	if cfg.KNX.IndividualAddress != "1.1.244" {
		t.Errorf("default KNX.IndividualAddress = %q, want 1.1.244", cfg.KNX.IndividualAddress)
	}
	if cfg.GetReadTimeout() != 5*time.Second {
		t.Errorf("default read timeout = %v, want 5s", cfg.GetReadTimeout())
	}
	if cfg.Inputs.DefaultType != "switch" {
		t.Errorf("default Inputs.DefaultType = %q, want switch", cfg.Inputs.DefaultType)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
