package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/server"
	"github.com/mohammad-safakhou/meetflow/internal/store"
	"github.com/mohammad-safakhou/meetflow/internal/worker"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var migrateOnStart bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and the sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if migrateOnStart && a.store != nil {
				if err := store.Migrate("file://migrations", a.cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return err
				}
			}

			var registry *aggregation.Registry
			if ctrl, err := a.aggregationController(); err == nil {
				registry = aggregation.NewRegistry(ctrl, a.logger.WithPrefix("aggregation"))
				defer registry.Shutdown()
			} else {
				a.logger.Warn("aggregation disabled", "err", err)
			}

			if len(a.cfg.Ingestion.Domains) > 0 {
				sched := worker.NewScheduler(worker.Config{
					Domains:  a.cfg.Ingestion.Domains,
					Schedule: a.cfg.Ingestion.Schedule,
					LockTTL:  a.cfg.Ingestion.LockTTL,
				}, a.service, a.cache, a.logger.WithPrefix("sync"))
				sched.Start(ctx)
				defer sched.Wait()
			}

			e := server.New(server.Deps{
				Service:  a.service,
				Registry: registry,
				Metrics:  a.telemetry.Handler(),
				Health:   a.healthChecks(),
				Logger:   a.logger,
			})
			addr := serveAddr
			if addr == "" {
				addr = getenv("MEETFLOW_HTTP_ADDR", a.cfg.Server.Address)
			}
			err = server.Run(ctx, e, addr, a.logger.WithPrefix("http"))
			stop()
			return err
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply migrations before serving")
	return serve
}
