package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundlink/sdls/pkg/sdls"
)

var saCmd = &cobra.Command{
	Use:   "sa",
	Short: "Inspect and seed Security Association entries",
}

var saListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every SA entry in the seed configuration",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, sa := range cfg.SAs {
			fmt.Printf("spi=%d ekid=%d akid=%d est=%v ast=%v\n", *sa.SPI, deref(sa.EKID), deref(sa.AKID), deref(sa.EST), deref(sa.AST))
		}
		return nil
	},
}

var saCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create every seeded SA against a fresh SA table (dry-run check)",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db := sdls.NewSADB()
		for _, e := range cfg.SAs {
			sac := sdls.SAConfig{
				EKID: deref(e.EKID),
				AKID: deref(e.AKID),
				EST:  deref(e.EST),
				AST:  deref(e.AST),
			}
			if err := db.Create(*e.SPI, sac, 0); err != nil {
				return fmt.Errorf("spi %d: %w", *e.SPI, err)
			}
		}
		fmt.Printf("created %d security associations\n", len(cfg.SAs))
		return nil
	},
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func init() {
	saCmd.AddCommand(saListCmd, saCreateCmd)
}
