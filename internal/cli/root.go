// Package cli implements the fancoind command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fancoind",
	Short: "FanCoin ledger and incentive engine",
	Long: `fancoind runs the FanCoin economy for the platform: the coin ledger,
bonus vesting, affiliate commissions, guild treasuries and fan commitments.
All state lives in a local SQLite database; the HTTP API under /api/v1 is
the integration surface for the rest of the platform.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default ~/.fancoin/config.toml)")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fancoind version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("fancoind %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
