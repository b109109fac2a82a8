package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatforge/planledger/adapters/hasher"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage admin API tokens",
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash <token>",
	Short: "Print the bcrypt hash of an admin token",
	Long: `Print the bcrypt hash of an admin token.

Put the hash in admin.token_hash (or PLANLEDGER_ADMIN_TOKEN_HASH) and
send the plaintext token as a bearer token to the API.

Example:
  planledger token hash s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenHash,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenHashCmd)
}

func runTokenHash(cmd *cobra.Command, args []string) error {
	h := hasher.NewBcrypt(0)
	hash, err := h.Hash(args[0])
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
