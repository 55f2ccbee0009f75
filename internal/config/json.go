package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/moments/internal/flagx"
	"github.com/dmitrijs2005/moments/internal/timex"
)

// JsonConfig mirrors Config for the JSON file. An empty string or zero
// duration leaves the current value untouched.
type JsonConfig struct {
	DataDir            string         `json:"data_dir"`
	StoreKind          string         `json:"store"`
	DatabaseDSN        string         `json:"database_dsn"`
	MetadataTimeout    timex.Duration `json:"metadata_timeout"`
	MetadataCacheTTL   timex.Duration `json:"metadata_cache_ttl"`
	CacheKind          string         `json:"cache"`
	RedisAddr          string         `json:"redis_addr"`
	CaptureSettleDelay timex.Duration `json:"capture_settle_delay"`
	GRPCAddr           string         `json:"grpc_addr"`
	RemoteAddr         string         `json:"remote_addr"`
	SecretKey          string         `json:"secret_key"`
	TokenTTL           timex.Duration `json:"token_ttl"`
	S3User             string         `json:"s3_user"`
	S3Password         string         `json:"s3_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3Endpoint         string         `json:"s3_endpoint"`
	BackupSchedule     string         `json:"backup_schedule"`
	BackupPassphrase   string         `json:"backup_passphrase"`
	ExportDir          string         `json:"export_dir"`
	LogLevel           string         `json:"log_level"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson reads the file named by -c/-config and overlays its non-empty
// values onto cfg. It panics when the file cannot be read or parsed.
func parseJson(cfg *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
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

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.StoreKind, jc.StoreKind)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.CacheKind, jc.CacheKind)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.GRPCAddr, jc.GRPCAddr)
	setString(&cfg.RemoteAddr, jc.RemoteAddr)
	setString(&cfg.SecretKey, jc.SecretKey)
	setString(&cfg.S3User, jc.S3User)
	setString(&cfg.S3Password, jc.S3Password)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.BackupSchedule, jc.BackupSchedule)
	setString(&cfg.BackupPassphrase, jc.BackupPassphrase)
	setString(&cfg.ExportDir, jc.ExportDir)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.MetadataTimeout.Duration != 0 {
		cfg.MetadataTimeout = jc.MetadataTimeout.Duration
	}
	if jc.MetadataCacheTTL.Duration != 0 {
		cfg.MetadataCacheTTL = jc.MetadataCacheTTL.Duration
	}
	if jc.CaptureSettleDelay.Duration != 0 {
		cfg.CaptureSettleDelay = jc.CaptureSettleDelay.Duration
	}
	if jc.TokenTTL.Duration != 0 {
		cfg.TokenTTL = jc.TokenTTL.Duration
	}
}
