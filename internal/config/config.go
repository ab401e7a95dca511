//
//
package config

import "time"

// Telemetry source kinds.
const (
	SourceRandom = "random"
	SourceModbus = "modbus"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Modbus    ModbusConfig    `mapstructure:"modbus"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Audit     AuditConfig     `mapstructure:"audit"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
}

// TelemetryConfig holds snapshot generation and push settings.
type TelemetryConfig struct {
	Modules         []string      `mapstructure:"modules"`
	PushInterval    time.Duration `mapstructure:"pushInterval"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	DeliveryTimeout time.Duration `mapstructure:"deliveryTimeout"`
	Source          string        `mapstructure:"source"`
	Seed            int64         `mapstructure:"seed"`
}

// ModbusConfig describes the Modbus TCP metrics device.
type ModbusConfig struct {
	Address     string        `mapstructure:"address"`
	UnitID      uint8         `mapstructure:"unitId"`
	BaseAddress uint16        `mapstructure:"baseAddress"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DispatchConfig holds dispatch simulator settings.
type DispatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	SeedFile string        `mapstructure:"seedFile"`
	Orders   int           `mapstructure:"orders"`
	Riders   int           `mapstructure:"riders"`
	Seed     int64         `mapstructure:"seed"`
}

// LedgerConfig holds the dispatch ledger settings. An empty path keeps the
// ledger in memory.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// NotifyConfig holds dispatch notification settings.
type NotifyConfig struct {
	Nostr NostrConfig `mapstructure:"nostr"`
}

// NostrConfig holds nostr relay publishing settings.
type NostrConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	SecretKey string        `mapstructure:"secretKey"`
	Relays    []string      `mapstructure:"relays"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	HMACSecret    string `mapstructure:"hmacSecret"`
	PublicKeyFile string `mapstructure:"publicKeyFile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

// AuditConfig holds session audit log settings.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

// DefaultModules is the module list used when none is configured.
var DefaultModules = []string{"radar", "defense", "attack", "dispatch", "anti-phishing", "core"}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Modules:         append([]string(nil), DefaultModules...),
			PushInterval:    2 * time.Second,
			PollInterval:    3 * time.Second,
			DeliveryTimeout: 5 * time.Second,
			Source:          SourceRandom,
		},
		Modbus: ModbusConfig{
			Address: "127.0.0.1:502",
			UnitID:  1,
			Timeout: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			Orders:   10,
			Riders:   5,
		},
		Notify: NotifyConfig{
			Nostr: NostrConfig{Timeout: 5 * time.Second},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     FormatConsole,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			Path:       "audit/sessions.jsonl",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
