package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpshield/mcpshield/internal/crypto"
	"github.com/mcpshield/mcpshield/internal/mcperr"
)

const (
	defaultPrivateKeyPath = "private.key"
	defaultPublicKeyPath  = "public.key"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 keypair for signing export bundles",
	Long: `Keygen writes a new Ed25519 private/public keypair to disk. The
private key signs export bundles (see "mcpshield export"); the public
key verifies them (see "mcpshield import-verify").`,
	RunE: runKeygen,
}

var (
	keygenPrivateFlag string
	keygenPublicFlag  string
)

func init() {
	keygenCmd.Flags().StringVar(&keygenPrivateFlag, "private", defaultPrivateKeyPath, "Path for the private key file")
	keygenCmd.Flags().StringVar(&keygenPublicFlag, "public", defaultPublicKeyPath, "Path for the public key file")
}

// GetKeygenCmd returns the keygen command.
func GetKeygenCmd() *cobra.Command {
	return keygenCmd
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(keygenPrivateFlag); err == nil {
		return mcperr.User("private key already exists at %s (use --private to choose a different path)", keygenPrivateFlag)
	}
	if _, err := os.Stat(keygenPublicFlag); err == nil {
		return mcperr.User("public key already exists at %s (use --public to choose a different path)", keygenPublicFlag)
	}

	if err := crypto.GenerateKeys(keygenPrivateFlag, keygenPublicFlag); err != nil {
		return mcperr.Unexpected(err, "generate keypair")
	}

	fmt.Printf("private key: %s\n", keygenPrivateFlag)
	fmt.Printf("public key:  %s\n", keygenPublicFlag)
	fmt.Println("keep the private key secret")
	return nil
}
