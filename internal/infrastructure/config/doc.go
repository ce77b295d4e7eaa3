// Package config handles loading and validating ControlNet Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CONTROLNET_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Mapping the file sections onto network.Config
//
// Seed rules, loops, interlocks and remote sites are declared in the same
// file using the declarative spec types of their packages.
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt, err := network.New(cfg.RuntimeConfig(), clock.System{})
package config
