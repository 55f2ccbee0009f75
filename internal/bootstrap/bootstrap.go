// Package bootstrap turns a config.Config into running components. The CLI
// and the daemon share it so both build the store, history, facade and
// optional backup service the same way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"

	"github.com/dmitrijs2005/moments/internal/backup"
	"github.com/dmitrijs2005/moments/internal/config"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/folders"
	"github.com/dmitrijs2005/moments/internal/history"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/metadata"
	"github.com/dmitrijs2005/moments/internal/moments"
	"github.com/dmitrijs2005/moments/internal/storage"
)

// Local is the in-process stack: store, history, broker, facade and folders.
type Local struct {
	Store   storage.Store
	History *history.Manager
	Broker  *moments.Broker
	Facade  *moments.Facade
	Folders *folders.Manager
	Fetcher *metadata.Fetcher

	redis       *redis.Client
	unsubscribe func()
}

// OpenLocal opens the configured store, loads history and wires the
// facade. Folder pruning is subscribed to the broker.
func OpenLocal(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Local, error) {
	logger = logging.OrNop(logger)

	store, err := storage.Open(ctx, storage.Options{
		Kind:    storage.Kind(cfg.StoreKind),
		DataDir: cfg.DataDir,
		DSN:     cfg.DatabaseDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	h := history.NewManager(store, logger)
	h.Load(ctx)

	l := &Local{Store: store, History: h}

	cache, err := l.metadataCache(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fopts := []metadata.Option{
		metadata.WithTimeout(cfg.MetadataTimeout),
		metadata.WithTTL(cfg.MetadataCacheTTL),
	}
	if cache != nil {
		fopts = append(fopts, metadata.WithCache(cache))
	}
	l.Fetcher = metadata.NewFetcher(logger, fopts...)

	l.Broker = moments.NewBroker(logger)
	l.Facade = moments.New(h, l.Broker, logger,
		moments.WithFetcher(l.Fetcher),
		moments.WithSettleDelay(cfg.CaptureSettleDelay),
	)
	l.Folders = folders.New(store, logger, folders.WithVideoLookup(func(id string) bool {
		_, ok := h.VideoByID(id)
		return ok
	}))
	l.unsubscribe = l.Broker.Subscribe(l.Folders.Listener())

	logger.Info(ctx, "history loaded",
		"store", cfg.StoreKind, "cache", cfg.CacheKind,
		"videos", len(h.Videos()), "moments", h.TotalMoments())
	return l, nil
}

func (l *Local) metadataCache(cfg *config.Config) (metadata.Cache, error) {
	switch cfg.CacheKind {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		l.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return metadata.NewRedisCache(l.redis), nil
	case config.CacheStore, "":
		return metadata.NewStoreCache(l.Store), nil
	}
	return nil, fmt.Errorf("unknown metadata cache %q", cfg.CacheKind)
}

// Close tears the stack down in reverse order.
func (l *Local) Close() error {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	if l.Broker != nil {
		l.Broker.Close()
	}
	var errs []error
	if l.redis != nil {
		errs = append(errs, l.redis.Close())
	}
	errs = append(errs, l.Store.Close())
	return errors.Join(errs...)
}

// BackupsConfigured reports whether enough S3 settings are present.
func BackupsConfigured(cfg *config.Config) bool {
	return cfg.S3Bucket != "" && (cfg.S3Endpoint != "" || cfg.S3User != "")
}

// NewBackups returns the S3 backup service, or nil when S3 is not
// configured.
func NewBackups(ctx context.Context, cfg *config.Config, source backup.Source, target export.Target, logger logging.Logger) (*backup.Service, error) {
	if !BackupsConfigured(cfg) {
		return nil, nil
	}
	objects, err := backup.NewS3Store(ctx, backup.S3Options{
		Region:   cfg.S3Region,
		User:     cfg.S3User,
		Password: cfg.S3Password,
		Endpoint: cfg.S3Endpoint,
		Bucket:   cfg.S3Bucket,
	})
	if err != nil {
		return nil, err
	}
	return backup.New(objects, source, target, logger), nil
}

// NewLogger builds the process logger: JSON for the daemon, text for the CLI.
func NewLogger(cfg *config.Config, w io.Writer, json bool) logging.Logger {
	if json {
		return logging.NewJSON(w, cfg.LogLevel)
	}
	return logging.NewText(w, cfg.LogLevel)
}
