package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/stealth"
)

var scriptSeed int64

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Synthesize the patch script for a profile and print it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []fingerprint.Option
		if scriptSeed > 0 {
			opts = append(opts, fingerprint.WithSeed(scriptSeed))
		}

		p, err := fingerprint.NewGenerator(opts...).Generate()
		if err != nil {
			return fmt.Errorf("generating profile: %w", err)
		}

		script, err := stealth.Synthesize(p)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, script)
		return nil
	},
}

func init() {
	scriptCmd.Flags().Int64Var(&scriptSeed, "seed", 0, "fixed seed (0 draws a fresh one)")
}
