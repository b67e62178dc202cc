package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

// app carries the configuration shared by all subcommands.
type app struct {
	cfg      *config.Config
	logLevel string
}

// NewRootCmd creates the root command for adscanner.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "adscanner",
		Short: "Find, screenshot and collect display ads on web pages",
		Long: `adscanner loads pages in a headless browser, finds ad elements with
EasyList cosmetic filters, screenshots each one and reports it to a collector.

The collector side (adscanner serve) stores reports in SQLite and keeps the
screenshots on disk. Configuration comes from environment variables; backend
settings live in a YAML file managed with "adscanner config".`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = config.Load()
			if a.logLevel != "" {
				a.cfg.LogLevel = a.logLevel
			}
			setupLogging(cmd.ErrOrStderr(), a.cfg.LogLevel)
			a.cfg.Validate()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newInitCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newReportCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs a console logger on out at the given level.
func setupLogging(out io.Writer, level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	})

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
