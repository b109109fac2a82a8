package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatforge/planledger/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plan ledger server",
	Long: `Start the planledger admin API server.

The server will:
  - Load configuration from planledger.yaml (or --config)
  - Or load configuration from PLANLEDGER_* environment variables
  - Open the entry store
  - Serve the plan, credit, expense and usage endpoints

Environment variables (for Docker deployments):
  PLANLEDGER_DATABASE_DRIVER  - sqlite or memory (default: sqlite)
  PLANLEDGER_DATABASE_DSN     - Database path (default: planledger.db)
  PLANLEDGER_SERVER_PORT      - Server port (default: 8080)
  PLANLEDGER_ADMIN_TOKEN_HASH - bcrypt hash of the admin token
  PLANLEDGER_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  planledger serve
  planledger serve --config /etc/planledger/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Blocks until shutdown
	return app.Run(ctx)
}
