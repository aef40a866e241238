package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an argon2id hash for a demo identity password",
	Long: `Generate an argon2id hash of a password for use in config.

The output is a self-describing argon2id hash string ("$argon2id$v=...")
that can be pasted directly into an auth.identities[].password_hash field.

Example:
  xrpcd hash-password "correct horse battery staple"

Security note: the password will appear in shell history. Consider
clearing history after use, or pass it via an environment variable:
  xrpcd hash-password "$DEMO_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
