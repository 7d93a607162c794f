package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inquest/internal/infra/config"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <value>",
	Short: "Encrypt a secret for use in the config file",
	Long: `Encrypts a value with the passphrase in INQUEST_CONFIG_KEY and prints it in
the enc: form accepted by api_keys, gateway auth tokens and alert tokens.
The same passphrase must be set when the coordinator loads the config.`,
	Args: cobra.ExactArgs(1),
	RunE: runEncrypt,
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	passphrase := os.Getenv("INQUEST_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("INQUEST_CONFIG_KEY is not set")
	}

	encrypted, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "enc:%s\n", encrypted)
	return nil
}
