package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only -d, -b, -r, -n, -l, -e and -t are considered; other arguments are filtered out
// with flagx.FilterArgs so they cannot break parsing.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-d", "-b", "-r", "-n", "-l", "-e", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.BusDriver, "b", cfg.BusDriver, "cross-tab bus driver (sqlite, gochannel, redis, memory)")
	fs.StringVar(&cfg.RedisURL, "r", cfg.RedisURL, "redis URL for the redis bus driver")
	fs.StringVar(&cfg.ChannelName, "n", cfg.ChannelName, "cross-tab channel name")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.ExportDir, "e", cfg.ExportDir, "export directory")
	fs.StringVar(&cfg.Tab, "t", cfg.Tab, "tab name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	switch cfg.BusDriver {
	case BusSQLite, BusGoChannel, BusRedis, BusMemory:
	default:
		panic(fmt.Sprintf("unknown bus driver %q", cfg.BusDriver))
	}
}
