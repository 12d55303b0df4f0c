// Package config handles loading and validating the KNX state monitor
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (STATEMONITOR_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.KNX.Transport)
package config
