// Package config handles loading and validating FleetDesk client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Base URL resolution mirrors what a browser client does: the push channel
// uses realtime.base_url, then api.base_url, then api.origin (the stand-in
// for the current page origin).
//
// Usage:
//
//	cfg, err := config.Load("configs/fleetdesk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.RealtimeBaseURL())
package config
