package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/format"
	"github.com/spf13/cobra"
)

func aggregateCMD(cfgPath *string) *cobra.Command {
	var domain string
	var out string
	var merge bool
	var aggregate = &cobra.Command{
		Use:   "aggregate",
		Short: "Run an aggregation job in the foreground (Ctrl-C cancels)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if domain == "" {
				return fmt.Errorf("--domain required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctrl, err := a.aggregationController()
			if err != nil {
				return err
			}
			job := ctrl.Run(ctx, domain)
			if err := format.WriteJob(cmd.OutOrStdout(), job, out); err != nil {
				return err
			}

			if merge && job.State == aggregation.StateComplete {
				records := aggregation.InsightRecords(job, a.pipeline)
				if _, err := a.service.IngestRecords(context.Background(), domain, records); err != nil {
					return err
				}
				a.logger.Info("insights merged", "domain", domain, "count", len(records))
			}
			if job.State != aggregation.StateComplete {
				return fmt.Errorf("aggregation ended %s", job.State)
			}
			return nil
		},
	}
	aggregate.Flags().StringVarP(&domain, "domain", "d", "", "domain to aggregate")
	aggregate.Flags().StringVarP(&out, "format", "f", format.Auto, "output format: auto|table|json")
	aggregate.Flags().BoolVar(&merge, "merge", true, "merge goals and challenges into the domain's collection")
	return aggregate
}
