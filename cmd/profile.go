package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/netconfig"
)

var (
	profileSeed    int64
	profileHeaders bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Generate a fingerprint profile and print it as JSON.",
	Long: `Generates a fingerprint profile, optionally from a fixed seed so a
previous session's identity can be reproduced exactly. With --headers the
derived header bundle is included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []fingerprint.Option
		if profileSeed > 0 {
			opts = append(opts, fingerprint.WithSeed(profileSeed))
		}

		p, err := fingerprint.NewGenerator(opts...).Generate()
		if err != nil {
			return fmt.Errorf("generating profile: %w", err)
		}

		out := map[string]any{"profile": p}
		if profileHeaders {
			cfg, err := netconfig.Build(p, nil)
			if err != nil {
				return err
			}
			out["headers"] = cfg.Headers
			out["userAgent"] = cfg.UserAgent
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	profileCmd.Flags().Int64Var(&profileSeed, "seed", 0, "fixed seed (0 draws a fresh one)")
	profileCmd.Flags().BoolVar(&profileHeaders, "headers", false, "include the derived header bundle")
}
