package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/groundlink/sdls/pkg/sdls"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect and seed key ring entries",
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key entry in the seed configuration",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, k := range cfg.Keys {
			fmt.Printf("kid=%d state=%s hex_file=%s\n", *k.KID, k.State, k.HexFile)
		}
		return nil
	},
}

var keyInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install every seeded key into a fresh key ring (dry-run check)",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		seeds, err := cfg.LoadKeySeeds()
		if err != nil {
			return err
		}
		ring := sdls.NewKeyRing()
		for _, s := range seeds {
			if err := ring.Install(s.KID, s.Value, s.State); err != nil {
				return err
			}
		}
		fmt.Printf("installed %d keys\n", len(seeds))
		return nil
	},
}

// keyUnlockCmd demonstrates the passphrase-prompt pattern used to gate
// access to a master key file before it is handed to OTAR — a terminal
// read with no local echo, the same shape as a card PIN prompt.
var keyUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Prompt for a passphrase gating access to a master key file",
	RunE: func(c *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "passphrase: ")
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		if len(pass) == 0 {
			return fmt.Errorf("empty passphrase rejected")
		}
		fmt.Println("unlocked")
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyListCmd, keyInstallCmd, keyUnlockCmd)
}
