package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/moments/internal/logging"
)

// backupper is the part of backup.Service the scheduler drives.
type backupper interface {
	Backup(ctx context.Context, passphrase []byte) (string, error)
}

var errNoPassphrase = errors.New("backup schedule requires a passphrase")

// scheduleBackups registers a cron job that uploads a sealed snapshot on
// every tick of spec. The returned stop func waits for a running job.
func scheduleBackups(ctx context.Context, spec string, passphrase string, b backupper, logger logging.Logger) (func(), error) {
	if passphrase == "" {
		return nil, errNoPassphrase
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		key, err := b.Backup(ctx, []byte(passphrase))
		if err != nil {
			logger.Error(ctx, "scheduled backup failed", "error", err)
			return
		}
		logger.Info(ctx, "scheduled backup uploaded", "key", key)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
