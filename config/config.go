// Package config loads the Harbor configuration from a TOML file and
// supplies defaults for everything the file leaves out.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/harbormail/harbor/helpers"
)

// DatabaseEndpointConfig holds the connection settings for a single
// database endpoint. Multiple read hosts spread load over replicas; the
// write endpoint normally names a single host.
type DatabaseEndpointConfig struct {
	Hosts           []string `toml:"hosts"`
	Port            string   `toml:"port"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	Name            string   `toml:"name"`
	TLSMode         bool     `toml:"tls"`
	MaxConns        int      `toml:"max_conns"`
	MinConns        int      `toml:"min_conns"`
	MaxConnLifetime string   `toml:"max_conn_lifetime"`
	MaxConnIdleTime string   `toml:"max_conn_idle_time"`
}

func (e *DatabaseEndpointConfig) GetMaxConnLifetime() (time.Duration, error) {
	if e.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return helpers.ParseDuration(e.MaxConnLifetime)
}

func (e *DatabaseEndpointConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if e.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return helpers.ParseDuration(e.MaxConnIdleTime)
}

// DatabaseConfig holds database configuration with separate read and
// write endpoints. When the read endpoint is absent the write endpoint
// serves both roles.
type DatabaseConfig struct {
	Debug        bool                    `toml:"debug"`
	QueryTimeout string                  `toml:"query_timeout"`
	WriteTimeout string                  `toml:"write_timeout"`
	Write        *DatabaseEndpointConfig `toml:"write"`
	Read         *DatabaseEndpointConfig `toml:"read"`
}

func (d *DatabaseConfig) GetQueryTimeout() (time.Duration, error) {
	if d.QueryTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(d.QueryTimeout)
}

func (d *DatabaseConfig) GetWriteTimeout() (time.Duration, error) {
	if d.WriteTimeout == "" {
		return 10 * time.Second, nil
	}
	return helpers.ParseDuration(d.WriteTimeout)
}

// POP3ServerConfig holds POP3 listener configuration.
type POP3ServerConfig struct {
	Start          bool   `toml:"start"`
	Addr           string `toml:"addr"`
	MaxConnections int    `toml:"max_connections"`
	TLS            bool   `toml:"tls"`
	TLSCertFile    string `toml:"tls_cert_file"`
	TLSKeyFile     string `toml:"tls_key_file"`
	TLSVerify      bool   `toml:"tls_verify"`
	// MaxErrors is how many bad commands a session survives before the
	// server hangs up.
	MaxErrors int `toml:"max_errors"`
	// MaxLineLength is the longest command line accepted in bytes.
	// Anything longer terminates the session.
	MaxLineLength  int    `toml:"max_line_length"`
	CommandTimeout string `toml:"command_timeout"`
	// EnableAPOP advertises an APOP timestamp in the greeting banner.
	// APOP only works for accounts with clear-text stored passwords.
	EnableAPOP bool `toml:"enable_apop"`
}

func (c *POP3ServerConfig) GetCommandTimeout() (time.Duration, error) {
	if c.CommandTimeout == "" {
		return 5 * time.Minute, nil
	}
	return helpers.ParseDuration(c.CommandTimeout)
}

// MetricsConfig holds the Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", "syslog", or a file path
	Format string `toml:"format"` // "json" or "console"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// ServersConfig holds all server configurations.
type ServersConfig struct {
	POP3    POP3ServerConfig `toml:"pop3"`
	Metrics MetricsConfig    `toml:"metrics"`
}

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	Servers  ServersConfig  `toml:"servers"`
}

// NewDefaultConfig returns a Config populated with defaults suitable
// for a local single-node deployment.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Database: DatabaseConfig{
			QueryTimeout: "30s",
			WriteTimeout: "10s",
			Write: &DatabaseEndpointConfig{
				Hosts:           []string{"localhost"},
				Port:            "5432",
				User:            "postgres",
				Name:            "harbor_mail_db",
				MaxConns:        50,
				MinConns:        5,
				MaxConnLifetime: "1h",
				MaxConnIdleTime: "30m",
			},
		},
		Servers: ServersConfig{
			POP3: POP3ServerConfig{
				Start:          true,
				Addr:           ":110",
				MaxConnections: 1000,
				MaxErrors:      3,
				MaxLineLength:  1024,
				CommandTimeout: "5m",
				EnableAPOP:     true,
			},
			Metrics: MetricsConfig{
				Enabled: false,
				Addr:    ":9090",
				Path:    "/metrics",
			},
		},
	}
}

// LoadConfigFromFile decodes the TOML file at configPath over cfg.
// Unknown keys are logged and ignored so a typo does not silently
// change behavior.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	metadata, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", configPath, err)
	}
	for _, key := range metadata.Undecoded() {
		log.Printf("WARNING: unknown configuration key %q ignored", key)
	}
	return nil
}

// Validate checks the parts of the configuration whose errors only
// surface deep inside a running server.
func (c *Config) Validate() error {
	if c.Database.Write == nil || len(c.Database.Write.Hosts) == 0 {
		return fmt.Errorf("database.write.hosts must name at least one host")
	}
	if c.Servers.POP3.Start && c.Servers.POP3.Addr == "" {
		return fmt.Errorf("servers.pop3.addr is required when the POP3 server is enabled")
	}
	if c.Servers.POP3.TLS && (c.Servers.POP3.TLSCertFile == "" || c.Servers.POP3.TLSKeyFile == "") {
		return fmt.Errorf("servers.pop3 TLS requires tls_cert_file and tls_key_file")
	}
	if _, err := c.Database.GetQueryTimeout(); err != nil {
		return fmt.Errorf("database.query_timeout: %w", err)
	}
	if _, err := c.Servers.POP3.GetCommandTimeout(); err != nil {
		return fmt.Errorf("servers.pop3.command_timeout: %w", err)
	}
	return nil
}
