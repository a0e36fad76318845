package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// parseEnv loads dotEnvPath (if it exists) into the process environment and
// then copies any REGISTRO_* variables into cfg. Variables already set in the
// environment win over the file, as godotenv.Load never overwrites.
func parseEnv(cfg *Config, dotEnvPath string) {
	if dotEnvPath != "" {
		if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	setFromEnv(&cfg.DatabaseDSN, "REGISTRO_DATABASE_DSN")
	setFromEnv(&cfg.BusDriver, "REGISTRO_BUS_DRIVER")
	setFromEnv(&cfg.RedisURL, "REGISTRO_REDIS_URL")
	setFromEnv(&cfg.ChannelName, "REGISTRO_CHANNEL_NAME")
	setFromEnv(&cfg.LogLevel, "REGISTRO_LOG_LEVEL")
	setFromEnv(&cfg.LogFormat, "REGISTRO_LOG_FORMAT")
	setFromEnv(&cfg.ExportDir, "REGISTRO_EXPORT_DIR")
	setFromEnv(&cfg.Tab, "REGISTRO_TAB")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
