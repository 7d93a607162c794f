// inquest coordinates multi-agent fraud investigations: specialist agents
// call registered analysis backends through a resilient client and their
// findings are consolidated into one risk verdict.
//
// Usage:
//
//	inquest serve [--config=<path>]
//	inquest investigate --entity-type=<type> --entity-id=<id> [--domains=<a,b>] [--context k=v]
//	inquest endpoints [--config=<path>]
//	inquest encrypt <value>
//	inquest service install|uninstall|status
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "inquest",
	Short: "Multi-agent fraud investigation coordinator",
	Long: "Inquest plans and executes specialist analysis agents against registered\n" +
		"backend services, consolidates their findings into a single verdict, and\n" +
		"exposes the result surface over a WebSocket gateway.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.Version = version
}

// defaultConfigPath returns $HOME/.inquest/config.yaml, falling back to the
// working directory when $HOME cannot be determined.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".inquest", "config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
