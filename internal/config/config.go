// Package config loads runtime configuration for the registro CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory and REGISTRO_* environment variables.
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   database DSN (SQLite file path or file: URI)
//	-b string   cross-tab bus driver: sqlite, gochannel, redis or memory
//	-r string   Redis URL used by the redis bus driver
//	-n string   cross-tab channel name
//	-l string   log level: debug, info, warn, error
//	-e string   directory for grade-book exports
//	-t string   tab name owning the persisted identity
//
// # Tabs and the bus
//
// Each registro process is one tab. Processes sharing a database file keep
// separate persisted identities when started with different -t values; a
// process restarted with the same -t resumes that tab.
//
// The default sqlite driver relays events through the shared database file,
// so tabs in different processes see each other with no extra service.
// redis does the same through a Redis server. gochannel and memory only reach
// channels opened inside the same process.
//
// # JSON schema
//
//	{
//	  "database_dsn": "registro.db",
//	  "bus_driver": "redis",
//	  "redis_url": "redis://localhost:6379/0",
//	  "channel_name": "registro-sync",
//	  "log_level": "debug",
//	  "log_format": "json",
//	  "export_dir": "exports",
//	  "tab": "registro"
//	}
package config

import "os"

// Bus drivers understood by the CLI wiring.
const (
	BusSQLite    = "sqlite"
	BusGoChannel = "gochannel"
	BusRedis     = "redis"
	BusMemory    = "memory"
)

// Config holds runtime settings for the registro CLI.
type Config struct {
	DatabaseDSN string
	BusDriver   string
	RedisURL    string
	ChannelName string
	LogLevel    string
	LogFormat   string
	ExportDir   string
	Tab         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "registro.db"
	c.BusDriver = BusSQLite
	c.RedisURL = "redis://127.0.0.1:6379/0"
	c.ChannelName = "registro-elettronico-sync"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.ExportDir = "exports"
	c.Tab = "registro"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, ".env")
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
