package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/meetflow/internal/format"
	"github.com/spf13/cobra"
)

func syncCMD(cfgPath *string) *cobra.Command {
	var domain string
	var out string
	var sync = &cobra.Command{
		Use:   "sync",
		Short: "Fetch every configured source and merge into a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			domains := a.cfg.Ingestion.Domains
			if domain != "" {
				domains = []string{domain}
			}
			if len(domains) == 0 {
				return fmt.Errorf("no domain given and ingestion.domains is empty")
			}
			for _, d := range domains {
				res, err := a.service.Sync(ctx, d)
				if err != nil {
					return fmt.Errorf("sync %s: %w", d, err)
				}
				a.logger.Info("synced", "domain", d, "before", res.Before, "after", res.After, "failed", res.Failed)
				ms, err := a.service.Load(ctx, d)
				if err != nil {
					return err
				}
				if err := format.WriteMeetings(cmd.OutOrStdout(), ms, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
	sync.Flags().StringVarP(&domain, "domain", "d", "", "domain to sync (default ingestion.domains)")
	sync.Flags().StringVarP(&out, "format", "f", format.Auto, "output format: auto|table|plain|json")
	return sync
}
