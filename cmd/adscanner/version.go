package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config or logging needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adscanner version %s\n", version.Full())
			fmt.Fprintf(cmd.OutOrStdout(), "  go:       %s\n", version.GoVersion())
			fmt.Fprintf(cmd.OutOrStdout(), "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
