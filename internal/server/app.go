// Package server wires the local moments stack behind the gRPC surface and
// runs it until the process is signalled.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/moments/internal/bootstrap"
	"github.com/dmitrijs2005/moments/internal/config"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/rpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	local   *bootstrap.Local
	backups backupper
}

var errBackupsUnavailable = errors.New("backup schedule set but S3 is not configured")

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := bootstrap.NewLogger(c, os.Stdout, true)

	local, err := bootstrap.OpenLocal(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("init error: %w", err)
	}

	app := &App{config: c, logger: logger, local: local}

	if c.BackupSchedule != "" {
		b, err := bootstrap.NewBackups(ctx, c, local.Facade, local.Facade, logger)
		if err == nil && b == nil {
			err = errBackupsUnavailable
		}
		if err != nil {
			_ = local.Close()
			return nil, fmt.Errorf("init error: %w", err)
		}
		app.backups = b
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rpc.NewServer(app.config.GRPCAddr, app.logger, app.local.Facade, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is done or a termination signal arrives, then
// closes the store.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreKind, "address", app.config.GRPCAddr)

	app.initSignalHandler(cancelFunc)

	stopBackups := func() {}
	if app.backups != nil {
		stop, err := scheduleBackups(ctx, app.config.BackupSchedule, app.config.BackupPassphrase, app.backups, app.logger)
		if err != nil {
			app.logger.Error(ctx, err.Error())
			app.close(ctx)
			return
		}
		stopBackups = stop
		app.logger.Info(ctx, "Backups scheduled", "schedule", app.config.BackupSchedule)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	stopBackups()
	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	if err := app.local.Close(); err != nil {
		app.logger.Error(ctx, "failed to close store", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
