package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/moments/internal/bootstrap"
	"github.com/dmitrijs2005/moments/internal/cli"
	"github.com/dmitrijs2005/moments/internal/config"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/moments"
	"github.com/dmitrijs2005/moments/internal/rpc"
)

func main() {
	if err := run(context.Background(), config.LoadConfig()); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := bootstrap.NewLogger(cfg, os.Stderr, false)

	var (
		svc    moments.Service
		target export.Target
		opts   []cli.Option
	)

	if cfg.RemoteAddr != "" {
		host, _ := os.Hostname()
		c, err := rpc.NewClient(cfg.RemoteAddr, rpc.ClientOptions{
			ClientID:  host,
			SecretKey: cfg.SecretKey,
			TokenTTL:  cfg.TokenTTL,
		})
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Ping(ctx); err != nil {
			logger.Warn(ctx, "momentsd is not reachable yet", "address", cfg.RemoteAddr, "error", err)
		}
		svc, target = c, c
		opts = append(opts, cli.WithMode("remote"))
	} else {
		local, err := bootstrap.OpenLocal(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer local.Close()
		svc, target = local.Facade, local.Facade
		opts = append(opts, cli.WithFolders(local.Folders))
	}

	backups, err := bootstrap.NewBackups(ctx, cfg, svc, target, logger)
	if err != nil {
		return err
	}
	if backups != nil {
		opts = append(opts, cli.WithBackups(backups))
	}

	opts = append(opts,
		cli.WithTarget(target),
		cli.WithExportDir(cfg.ExportDir),
		cli.WithLogger(logger),
	)
	cli.NewApp(svc, opts...).Run(ctx)
	return nil
}
