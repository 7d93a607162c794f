package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"inquest/internal/adapter/backend"
	"inquest/internal/infra/config"
)

var endpointsFlags struct {
	config string
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the backend endpoints registered in config",
	RunE:  runEndpoints,
}

func init() {
	endpointsCmd.Flags().StringVarP(&endpointsFlags.config, "config", "c", defaultConfigPath(), "Path to config file")
}

func runEndpoints(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(endpointsFlags.config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	registry, err := backend.NewRegistry(cfg.Backends.Endpoints, cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("endpoint registry: %w", err)
	}

	endpoints := registry.List()
	if len(endpoints) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no endpoints configured")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRANSPORT\tADDRESS\tPRIORITY\tTIMEOUT\tENABLED")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\n",
			ep.Name, ep.Transport, ep.Address, ep.Priority, ep.Timeout, ep.Enabled)
	}
	return w.Flush()
}
