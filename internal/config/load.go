//
//
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OPSRADAR"

// Load reads configuration from path, or searches the default locations when
// path is empty. A missing file is tolerated only in the search case.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("opsradar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/opsradar")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so env overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.idleTimeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowedOrigins", d.Server.AllowedOrigins)

	v.SetDefault("telemetry.modules", d.Telemetry.Modules)
	v.SetDefault("telemetry.pushInterval", d.Telemetry.PushInterval)
	v.SetDefault("telemetry.pollInterval", d.Telemetry.PollInterval)
	v.SetDefault("telemetry.deliveryTimeout", d.Telemetry.DeliveryTimeout)
	v.SetDefault("telemetry.source", d.Telemetry.Source)
	v.SetDefault("telemetry.seed", d.Telemetry.Seed)

	v.SetDefault("modbus.address", d.Modbus.Address)
	v.SetDefault("modbus.unitId", d.Modbus.UnitID)
	v.SetDefault("modbus.baseAddress", d.Modbus.BaseAddress)
	v.SetDefault("modbus.timeout", d.Modbus.Timeout)

	v.SetDefault("dispatch.enabled", d.Dispatch.Enabled)
	v.SetDefault("dispatch.interval", d.Dispatch.Interval)
	v.SetDefault("dispatch.seedFile", d.Dispatch.SeedFile)
	v.SetDefault("dispatch.orders", d.Dispatch.Orders)
	v.SetDefault("dispatch.riders", d.Dispatch.Riders)
	v.SetDefault("dispatch.seed", d.Dispatch.Seed)

	v.SetDefault("ledger.path", d.Ledger.Path)

	v.SetDefault("notify.nostr.enabled", d.Notify.Nostr.Enabled)
	v.SetDefault("notify.nostr.secretKey", d.Notify.Nostr.SecretKey)
	v.SetDefault("notify.nostr.relays", d.Notify.Nostr.Relays)
	v.SetDefault("notify.nostr.timeout", d.Notify.Nostr.Timeout)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.hmacSecret", d.Auth.HMACSecret)
	v.SetDefault("auth.publicKeyFile", d.Auth.PublicKeyFile)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.maxSizeMB", d.Log.MaxSizeMB)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("log.maxAgeDays", d.Log.MaxAgeDays)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.maxSizeMB", d.Audit.MaxSizeMB)
	v.SetDefault("audit.maxBackups", d.Audit.MaxBackups)
	v.SetDefault("audit.maxAgeDays", d.Audit.MaxAgeDays)
}
