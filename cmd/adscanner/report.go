package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/internal/digest"
	"github.com/Rorqualx/adscanner-go/internal/store"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		output string
		latest int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a Markdown digest of collected ads",
		Long: `Report reads the collector database (COLLECTOR_DB_PATH) and writes a
Markdown digest: totals, ads per registrable domain and the latest ads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.cfg.CollectorDBPath); err != nil {
				return fmt.Errorf("no collector database at %s: %w", a.cfg.CollectorDBPath, err)
			}
			s, err := store.Open(a.cfg.CollectorDBPath)
			if err != nil {
				return err
			}
			defer s.Close()

			sum, err := digest.Collect(cmd.Context(), s, latest)
			if err != nil {
				return err
			}
			sum.Database = s.Path()
			sum.GeneratedAt = time.Now()

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create report file: %w", err)
				}
				defer f.Close()
				out = f
			}

			if err := digest.Write(out, sum); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			if output != "" && output != "-" {
				log.Info().Str("path", output).Int64("ads", sum.Total).Msg("Report written")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().IntVarP(&latest, "latest", "n", 20, "Number of recent ads to list")
	return cmd
}
