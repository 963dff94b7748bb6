// Package config handles loading and validating WhatsApp gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (API secret, broker passwords, tokens) should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//   - The API secret must be set before the gateway will start
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sessions.AuthDir)
package config
