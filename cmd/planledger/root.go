package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "planledger",
	Short: "Pay-as-you-go plan ledger for chat assistant usage billing",
	Long: `Planledger tracks pay-as-you-go balances for chat assistant accounts.

It records credits and priced usage expenses against user and guild
accounts, and builds usage reports for display surfaces.

Quick start:
  planledger serve     # Start the admin API server

Management:
  planledger plan      # Inspect and manage plan balances
  planledger token     # Generate admin token hashes
  planledger validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "planledger.yaml", "config file path")
}
