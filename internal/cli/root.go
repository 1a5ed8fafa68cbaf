// Package cli implements the carbond command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cct-network/carbond/internal/api"
)

var (
	configPath string
	daemonURL  string
)

var rootCmd = &cobra.Command{
	Use:   "carbond",
	Short: "Carbon credit settlement daemon",
	Long: `carbond runs the carbon credit core: a debt-first credit ledger,
the settlement oracle that reconciles offset projects and annual
emissions against the external registries, and the HTTP API the
dashboard talks to.

Management commands (settle, status) are thin HTTP clients against a
running daemon.`,
	Version: api.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.carbond/config.toml)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "http://127.0.0.1:8090", "address of the running daemon")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
