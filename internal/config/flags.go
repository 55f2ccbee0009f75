package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/moments/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string     data directory
//	-s string     store kind (sqlite, postgres, memory)
//	-dsn string   database DSN
//	-a string     gRPC listen address (momentsd)
//	-r string     remote momentsd address (CLI)
//	-k string     shared secret key
//	-settle dur   capture settle delay
//	-log string   log level
//
// Only these flags are parsed; everything else in os.Args is left for other
// loaders.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-d", "-s", "-dsn", "-a", "-r", "-k", "-settle", "-log",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.StoreKind, "s", cfg.StoreKind, "store kind: sqlite, postgres or memory")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.GRPCAddr, "a", cfg.GRPCAddr, "gRPC listen address")
	fs.StringVar(&cfg.RemoteAddr, "r", cfg.RemoteAddr, "remote momentsd address")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "shared secret key")
	fs.DurationVar(&cfg.CaptureSettleDelay, "settle", cfg.CaptureSettleDelay, "capture settle delay")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
