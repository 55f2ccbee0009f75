// Package config assembles runtime settings for the moments CLI and daemon.
//
// Sources are applied in order, later ones overriding earlier ones:
// built-in defaults, environment (optionally seeded from a .env file),
// a JSON file given with -c/-config, and finally command-line flags.
package config

import "time"

// Store and cache backend names.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	CacheStore = "store"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config holds runtime settings.
//
// Fields:
//   - DataDir: directory for the SQLite file and exports.
//   - StoreKind: "sqlite", "postgres" or "memory".
//   - DatabaseDSN: SQLite path override or PostgreSQL URL.
//   - MetadataTimeout: hard timeout of one oEmbed request.
//   - MetadataCacheTTL: how long fetched metadata stays cached.
//   - CacheKind: "store", "redis" or "none".
//   - RedisAddr: host:port of Redis when CacheKind is "redis".
//   - CaptureSettleDelay: pause before a capture that creates a video is written.
//   - GRPCAddr: listen address of momentsd.
//   - RemoteAddr: momentsd address the CLI talks to; empty means in-process.
//   - SecretKey: HS256 key shared by client and daemon; empty disables auth.
//   - TokenTTL: lifetime of access tokens minted by the client.
//   - S3*: object storage used by backup/restore.
//   - BackupSchedule: cron spec for momentsd backups; empty disables them.
//   - BackupPassphrase: passphrase sealing scheduled backups.
//   - ExportDir: default directory for export files.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	DataDir            string
	StoreKind          string
	DatabaseDSN        string
	MetadataTimeout    time.Duration
	MetadataCacheTTL   time.Duration
	CacheKind          string
	RedisAddr          string
	CaptureSettleDelay time.Duration
	GRPCAddr           string
	RemoteAddr         string
	SecretKey          string
	TokenTTL           time.Duration
	S3User             string
	S3Password         string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	BackupSchedule     string
	BackupPassphrase   string
	ExportDir          string
	LogLevel           string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = ".moments"
	c.StoreKind = StoreSQLite
	c.DatabaseDSN = ""
	c.MetadataTimeout = 5 * time.Second
	c.MetadataCacheTTL = 24 * time.Hour
	c.CacheKind = CacheStore
	c.RedisAddr = "127.0.0.1:6379"
	c.CaptureSettleDelay = 0
	c.GRPCAddr = ":50061"
	c.RemoteAddr = ""
	c.SecretKey = ""
	c.TokenTTL = 15 * time.Minute
	c.S3Region = "us-east-1"
	c.S3Bucket = "moments"
	c.ExportDir = "."
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
