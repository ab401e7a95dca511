//
//
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Validate checks cross-field rules on a merged configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if cfg.Telemetry.Source == SourceModbus {
		if err := validateModbus(&cfg.Modbus); err != nil {
			return fmt.Errorf("modbus validation failed: %w", err)
		}
	}

	if cfg.Dispatch.Enabled {
		if err := validateDispatch(&cfg.Dispatch); err != nil {
			return fmt.Errorf("dispatch validation failed: %w", err)
		}
	}

	if cfg.Notify.Nostr.Enabled {
		if err := validateNostr(&cfg.Notify.Nostr); err != nil {
			return fmt.Errorf("nostr validation failed: %w", err)
		}
	}

	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" && cfg.Auth.PublicKeyFile == "" {
		return fmt.Errorf("auth validation failed: hmacSecret or publicKeyFile required")
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return fmt.Errorf("audit validation failed: path required")
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("addr required")
	}
	for name, d := range map[string]time.Duration{
		"read timeout":     s.ReadTimeout,
		"write timeout":    s.WriteTimeout,
		"shutdown timeout": s.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if len(t.Modules) == 0 {
		return fmt.Errorf("at least one module required")
	}
	seen := make(map[string]struct{}, len(t.Modules))
	for _, m := range t.Modules {
		if m == "" {
			return fmt.Errorf("module names must be non-empty")
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("duplicate module %q", m)
		}
		seen[m] = struct{}{}
	}

	if t.PushInterval <= 0 {
		return fmt.Errorf("push interval must be positive, got %v", t.PushInterval)
	}
	if t.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", t.PollInterval)
	}
	if t.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive, got %v", t.DeliveryTimeout)
	}

	switch t.Source {
	case SourceRandom, SourceModbus:
	default:
		return fmt.Errorf("unknown source %q", t.Source)
	}
	return nil
}

func validateModbus(m *ModbusConfig) error {
	if m.Address == "" {
		return fmt.Errorf("address required")
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", m.Timeout)
	}
	return nil
}

func validateDispatch(d *DispatchConfig) error {
	if d.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d.Interval)
	}
	if d.SeedFile == "" && (d.Orders <= 0 || d.Riders <= 0) {
		return fmt.Errorf("orders and riders must be positive without a seed file, got %d/%d", d.Orders, d.Riders)
	}
	return nil
}

func validateNostr(n *NostrConfig) error {
	if n.SecretKey == "" {
		return fmt.Errorf("secret key required")
	}
	if len(n.Relays) == 0 {
		return fmt.Errorf("at least one relay required")
	}
	for _, r := range n.Relays {
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("relay %q must be a ws:// or wss:// URL", r)
		}
	}
	return nil
}

func validateLog(l *LogConfig) error {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	switch l.Format {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}
