// Package config handles loading and validating airlink bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with AIRLINK_* environment variables
//   - Validation of global settings
//   - Default value handling
//
// Appliance descriptors are only checked for shape here. Serial numbers and
// credentials are parsed when an appliance is registered, so one malformed
// descriptor excludes that appliance without stopping the bridge.
//
// Security Considerations:
//   - Credentials and tokens should be supplied via environment variables
//     or a config file with 0600 permissions
//   - ApplianceConfig redacts its credential in String and MarshalJSON
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, a := range cfg.Appliances {
//	    fmt.Println(a.DisplayName)
//	}
package config
