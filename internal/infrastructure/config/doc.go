// Package config handles loading and validating Slotlink Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SLOTLINK_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling, including the device-facing MQTT topics
//
// Security Considerations:
//   - Broker credentials, the JWT secret and the first-boot admin password
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topics.Data)
package config
