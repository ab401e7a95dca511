// Package config loads the opsradar configuration.
//
// Precedence, lowest first:
//   - Default() baseline
//   - YAML config file (opsradar.yaml in ., ./config, /etc/opsradar, or --config)
//   - OPSRADAR_* environment variables (nested keys joined with "_",
//     e.g. OPSRADAR_TELEMETRY_PUSHINTERVAL=1s)
//
// The merged result is checked by Validate before use.
package config
