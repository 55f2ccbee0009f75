package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/moments/internal/flagx"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "MOMENTS_"

// parseEnv overlays MOMENTS_* variables onto cfg. A file passed with -env is
// loaded first; otherwise ./.env is loaded when present. Variables already
// set in the process environment win over the file.
func parseEnv(cfg *Config) {
	if path := flagx.EnvFileFlag(os.Args[1:]); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	envString("DATA_DIR", &cfg.DataDir)
	envString("STORE", &cfg.StoreKind)
	envString("DATABASE_DSN", &cfg.DatabaseDSN)
	envDuration("METADATA_TIMEOUT", &cfg.MetadataTimeout)
	envDuration("METADATA_CACHE_TTL", &cfg.MetadataCacheTTL)
	envString("CACHE", &cfg.CacheKind)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envDuration("CAPTURE_SETTLE_DELAY", &cfg.CaptureSettleDelay)
	envString("GRPC_ADDR", &cfg.GRPCAddr)
	envString("REMOTE_ADDR", &cfg.RemoteAddr)
	envString("SECRET_KEY", &cfg.SecretKey)
	envDuration("TOKEN_TTL", &cfg.TokenTTL)
	envString("S3_USER", &cfg.S3User)
	envString("S3_PASSWORD", &cfg.S3Password)
	envString("S3_BUCKET", &cfg.S3Bucket)
	envString("S3_REGION", &cfg.S3Region)
	envString("S3_ENDPOINT", &cfg.S3Endpoint)
	envString("BACKUP_SCHEDULE", &cfg.BackupSchedule)
	envString("BACKUP_PASSPHRASE", &cfg.BackupPassphrase)
	envString("EXPORT_DIR", &cfg.ExportDir)
	envString("LOG_LEVEL", &cfg.LogLevel)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
