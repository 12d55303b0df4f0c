// KNX State Monitor
//
// This is the main entry point for the state monitor. It reads wall inputs
// (MCP23017 expanders or GPIO lines), publishes their events to MQTT, falls
// back to direct KNX group writes when MQTT is unavailable, and keeps the
// state of every configured KNX state address synchronised with the bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/knx-statemonitor/migrations"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/config"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/database"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/logging"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/knx-statemonitor/internal/input"
	"github.com/nerrad567/knx-statemonitor/internal/monitor"
	"github.com/nerrad567/knx-statemonitor/internal/statesync"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting KNX state monitor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, logCloser, err := logging.Open(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logCloser.Close() //nolint:errcheck // Nothing to do if the log file fails to close
	log.Info("configuration loaded", "path", configPath, "device", cfg.Device.ID)

	// Validate slot configuration before touching any hardware
	slots, err := slotSettings(cfg.Inputs)
	if err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	defaultType, err := input.ParseInputType(cfg.Inputs.DefaultType)
	if err != nil {
		return fmt.Errorf("inputs.default_type: %w", err)
	}
	individualAddress, err := knx.ParseIndividualAddress(cfg.KNX.IndividualAddress)
	if err != nil {
		return fmt.Errorf("knx.individual_address: %w", err)
	}

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	opts := monitor.Options{
		Slots:        monitor.NewSQLiteSlotRepository(db.DB),
		Logger:       log,
		HealthChecks: map[string]monitor.HealthChecker{"database": db},
	}

	if cfg.Monitor.RecordBus {
		recorder := knx.NewBusRecorder(db.DB)
		recorder.SetLogger(log)
		if startErr := recorder.Start(); startErr != nil {
			log.Warn("bus recorder failed to start", "error", startErr)
		} else {
			defer recorder.Stop()
			opts.Recorder = recorder
		}
	}

	// Connect to MQTT. Without a broker the monitor runs in failover.
	topics := mqtt.Topics{Device: cfg.Device.ID}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		log.Warn("MQTT unavailable, running in permanent failover", "error", err)
	} else {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		opts.MQTT = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		opts.Telemetry = influxClient
		opts.HealthChecks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the bus
	connector, err := openTransport(ctx, cfg.KNX, individualAddress, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing KNX transport")
		if closeErr := connector.Close(); closeErr != nil {
			log.Error("error closing KNX transport", "error", closeErr)
		}
	}()
	opts.Connector = connector

	// Open the input hardware
	src, err := openSource(cfg.Inputs)
	if err != nil {
		return fmt.Errorf("opening inputs: %w", err)
	}
	slotCount := cfg.Inputs.Slots
	if src != nil {
		defer src.Close() //nolint:errcheck // Best-effort during shutdown
		slotCount = src.Pins()
	}
	log.Info("inputs ready", "source", cfg.Inputs.Source, "slots", slotCount)

	opts.Engine = statesync.NewEngine(statesync.EngineConfig{
		Slots:       slotCount,
		ReadTimeout: cfg.GetReadTimeout(),
		StaleAfter:  cfg.GetStaleAfter(),
		Logger:      log,
	})
	opts.Classifier = input.NewClassifier(slotCount, input.ClassifierConfig{DefaultType: defaultType})
	opts.Config = monitor.Config{
		DeviceID:       cfg.Device.ID,
		Version:        version,
		Topics:         topics,
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
		TickInterval:   cfg.GetTickInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		ForceFailover:  cfg.Monitor.ForceFailover,
		DefaultType:    defaultType,
		Slots:          slots,
	}

	mon, err := monitor.New(opts)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer mon.Stop()

	if src != nil {
		go input.Poll(ctx, src, opts.Classifier, cfg.GetPollInterval(), mon.HandleInputEvent, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the configuration file path.
// Uses STATEMONITOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STATEMONITOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openTransport connects the configured bus transport.
func openTransport(ctx context.Context, cfg config.KNXConfig, addr knx.IndividualAddress, log *logging.Logger) (knx.Connector, error) {
	switch cfg.Transport {
	case config.TransportKNXD:
		client, err := knx.Connect(ctx, knx.KNXDConfig{Connection: cfg.KNXDConnection})
		if err != nil {
			return nil, fmt.Errorf("connecting to knxd: %w", err)
		}
		client.SetLogger(log)
		log.Info("connected to knxd", "url", cfg.KNXDConnection)
		return client, nil

	default:
		client, err := knx.OpenTPUART(ctx, knx.TPUARTConfig{Port: cfg.SerialPort, Address: addr})
		if err != nil {
			return nil, fmt.Errorf("opening TP-UART: %w", err)
		}
		client.SetLogger(log)
		log.Info("TP-UART ready", "port", cfg.SerialPort, "address", addr.String())
		return client, nil
	}
}

// openSource opens the configured input hardware. It returns nil for
// source "none".
func openSource(cfg config.InputsConfig) (input.Source, error) {
	switch cfg.Source {
	case config.SourceMCP23017:
		return input.OpenExpander(cfg.I2CBus)
	case config.SourceGPIO:
		return input.OpenGPIO(cfg.GPIOChip, cfg.GPIOLines)
	default:
		return nil, nil
	}
}

// slotSettings converts the configured slots to monitor settings.
func slotSettings(cfg config.InputsConfig) ([]monitor.SlotSettings, error) {
	out := make([]monitor.SlotSettings, 0, len(cfg.Slot))
	for _, sc := range cfg.Slot {
		s := monitor.SlotSettings{
			Slot:         sc.Index,
			Invert:       sc.Invert,
			Disabled:     sc.Disabled,
			FailoverOnly: sc.FailoverOnly,
		}

		if sc.Type != "" {
			t, err := input.ParseInputType(sc.Type)
			if err != nil {
				return nil, fmt.Errorf("slot %d: %w", sc.Index, err)
			}
			s.Type = t
		}
		if sc.CommandAddress != "" {
			ga, err := knx.ParseGroupAddress(sc.CommandAddress)
			if err != nil {
				return nil, fmt.Errorf("slot %d command_address: %w", sc.Index, err)
			}
			s.CommandAddress = ga
		}
		if sc.StateAddress != "" {
			ga, err := knx.ParseGroupAddress(sc.StateAddress)
			if err != nil {
				return nil, fmt.Errorf("slot %d state_address: %w", sc.Index, err)
			}
			s.StateAddress = ga
		}

		out = append(out, s)
	}
	return out, nil
}
