package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mohammad-safakhou/meetflow/internal/format"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/mohammad-safakhou/meetflow/internal/telemetry"
	"github.com/spf13/cobra"
)

func normalizeCMD(cfgPath *string) *cobra.Command {
	var source string
	var out string
	var transcript bool
	var from, to string
	var normalize = &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a raw payload (file or stdin) and print the meetings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			p := meeting.New(
				meeting.WithObserver(telemetry.NewLogObserver(logger.WithPrefix("pipeline"))),
				meeting.WithStableFallbackIDs(cfg.Ingestion.StableFallbackIDs),
			)
			var ms []meeting.Meeting
			if transcript {
				ms, _ = p.NormalizeTranscript(string(payload), source, time.Now())
			} else {
				ms, _ = p.NormalizeBatch(payload, source)
			}
			ms = p.SafeMerge([]meeting.Meeting{}, ms)
			if from != "" || to != "" {
				if from == "" {
					from = "1970-01-01T00:00:00Z"
				}
				if to == "" {
					to = "9999-12-31T23:59:59Z"
				}
				ms = p.FilterByDateRange(ms, from, to)
			}
			return format.WriteMeetings(cmd.OutOrStdout(), ms, out)
		},
	}
	normalize.Flags().StringVarP(&source, "source", "s", "", "source tag for the records")
	normalize.Flags().StringVarP(&out, "format", "f", format.Auto, "output format: auto|table|plain|json")
	normalize.Flags().BoolVar(&transcript, "transcript", false, "treat input as pasted transcript text")
	normalize.Flags().StringVar(&from, "from", "", "keep meetings starting at or after this time")
	normalize.Flags().StringVar(&to, "to", "", "keep meetings starting at or before this time")
	return normalize
}
