package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/adscanner-go/internal/settings"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the backend that scans report to",
	}
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigSetCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved backend settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := settings.NewManager(a.cfg.SettingsPath, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			b := mgr.Backend()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backendUrl:  %s\n", b.URL)
			fmt.Fprintf(out, "backendPort: %d\n", b.Port)
			fmt.Fprintf(out, "upload:      %s\n", b.UploadURL())
			fmt.Fprintf(out, "file:        %s\n", dimStyle.Render(mgr.Path()))
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	var (
		backendURL  string
		backendPort int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Persist backend settings",
		Long: `Set writes the backend URL and/or port to the settings file. Flags that
are not given keep their current value.

Example:
  adscanner config set --url http://collector.internal --port 5500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			urlChanged := cmd.Flags().Changed("url")
			portChanged := cmd.Flags().Changed("port")
			if !urlChanged && !portChanged {
				return fmt.Errorf("nothing to set: pass --url and/or --port")
			}

			mgr, err := settings.NewManager(a.cfg.SettingsPath, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			b := mgr.Backend()
			if urlChanged {
				u := strings.TrimRight(strings.TrimSpace(backendURL), "/")
				if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
					return fmt.Errorf("backend URL must start with http:// or https://")
				}
				b.URL = u
			}
			if portChanged {
				if backendPort < 1 || backendPort > 65535 {
					return fmt.Errorf("backend port must be between 1 and 65535")
				}
				b.Port = backendPort
			}

			if err := mgr.Save(b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reporting to %s\n", okStyle.Render("✓"), b.UploadURL())
			return nil
		},
	}

	cmd.Flags().StringVar(&backendURL, "url", "", "Backend base URL, without port")
	cmd.Flags().IntVar(&backendPort, "port", settings.DefaultBackendPort, "Backend port")
	return cmd
}
