package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatforge/planledger/config"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the planledger configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Pricing and ledger bounds are sane

Examples:
  planledger validate
  planledger validate --config /etc/planledger/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	fmt.Printf("  %s Server: %s:%d\n", checkMark, cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Printf("  %s Expense history cap: %d\n", checkMark, cfg.Ledger.MaxExpenseHistory)
	fmt.Printf("  %s Recent window: %d\n", checkMark, cfg.Ledger.RecentWindow)
	if cfg.Admin.TokenHash == "" {
		fmt.Printf("  %s Admin auth disabled (no token hash)\n", crossMark)
	} else {
		fmt.Printf("  %s Admin auth enabled\n", checkMark)
	}

	fmt.Println("\nConfiguration valid.")
	fmt.Println("\nReloadable without restart (SIGHUP or file change):")
	for _, f := range config.ReloadableFields() {
		fmt.Printf("  - %s\n", f)
	}
	return nil
}
