package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/internal/filterlist"
	"github.com/Rorqualx/adscanner-go/internal/security"
)

func newInitCmd(a *app) *cobra.Command {
	var listURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Download and store the filter list",
		Long: `Init downloads the filter list (EasyList by default, or FILTER_LIST_URL)
and stores it at FILTER_LIST_PATH. Scans do nothing until a list is stored.
Running init again replaces the stored list with a fresh copy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listURL == "" {
				listURL = a.cfg.FilterListURL
			}
			if err := security.ValidateTargetURL(listURL); err != nil {
				return err
			}

			store := filterlist.NewStore(a.cfg.FilterListPath)
			n, err := filterlist.Install(cmd.Context(), filterlist.NewFetcher(nil), store, listURL)
			if err != nil {
				return fmt.Errorf("failed to install filter list: %w", err)
			}

			log.Info().
				Str("url", security.RedactURL(listURL)).
				Str("path", store.Path()).
				Int("selectors", n).
				Msg("Filter list installed")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d cosmetic selectors stored in %s\n",
				okStyle.Render("✓"), n, store.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&listURL, "url", "", "Filter list URL (default FILTER_LIST_URL)")
	return cmd
}
