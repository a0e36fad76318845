package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/registro/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Empty fields
// leave the corresponding Config value untouched.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`
	BusDriver   string `json:"bus_driver"`
	RedisURL    string `json:"redis_url"`
	ChannelName string `json:"channel_name"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`
	ExportDir   string `json:"export_dir"`
	Tab         string `json:"tab"`
}

// parseJson overlays cfg with values loaded from the JSON file named by -c or
// -config in args. Without such a flag nothing happens. Read or unmarshal
// errors panic; the caller should recover if desired.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlay(&cfg.DatabaseDSN, jc.DatabaseDSN)
	overlay(&cfg.BusDriver, jc.BusDriver)
	overlay(&cfg.RedisURL, jc.RedisURL)
	overlay(&cfg.ChannelName, jc.ChannelName)
	overlay(&cfg.LogLevel, jc.LogLevel)
	overlay(&cfg.LogFormat, jc.LogFormat)
	overlay(&cfg.ExportDir, jc.ExportDir)
	overlay(&cfg.Tab, jc.Tab)
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
