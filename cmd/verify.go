package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/jsexec"
	"github.com/xkilldash9x/stealthctx/internal/browser/stealth"
	"github.com/xkilldash9x/stealthctx/internal/observability"
)

var verifySeed int64

// verifyReport pairs the profile with what the sandboxed script actually
// reports, plus any disagreements between the two.
type verifyReport struct {
	Seed        int64               `json:"seed"`
	Profile     fingerprint.Profile `json:"profile"`
	Observables jsexec.Observables  `json:"observables"`
	Mismatches  []string            `json:"mismatches"`
	Consistent  bool                `json:"consistent"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Evaluate the patch script in an offline sandbox and check it against its profile.",
	Long: `Synthesizes the patch script for a profile and evaluates it in an
in-process JS sandbox, no browser involved. The values the patched runtime
reports are compared against the profile they were derived from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []fingerprint.Option
		if verifySeed > 0 {
			opts = append(opts, fingerprint.WithSeed(verifySeed))
		}

		p, err := fingerprint.NewGenerator(opts...).Generate()
		if err != nil {
			return fmt.Errorf("generating profile: %w", err)
		}

		script, err := stealth.Synthesize(p)
		if err != nil {
			return fmt.Errorf("synthesizing patch script: %w", err)
		}

		rt, err := jsexec.NewRuntime(observability.GetLogger())
		if err != nil {
			return fmt.Errorf("creating sandbox: %w", err)
		}
		if err := rt.Evaluate(cmd.Context(), script); err != nil {
			return fmt.Errorf("evaluating patch script: %w", err)
		}
		obs, err := rt.Observe()
		if err != nil {
			return err
		}

		report := verifyReport{
			Seed:        p.Seed,
			Profile:     p,
			Observables: obs,
			Mismatches:  compareObservables(p, obs),
		}
		report.Consistent = len(report.Mismatches) == 0

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.Consistent {
			return fmt.Errorf("patched runtime disagrees with its profile on %d values", len(report.Mismatches))
		}
		return nil
	},
}

func compareObservables(p fingerprint.Profile, obs jsexec.Observables) []string {
	var mismatches []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf(format, args...))
		}
	}

	check(obs.Applied, "patch marker not set")
	check(!obs.Webdriver, "navigator.webdriver still truthy")
	check(obs.HardwareConcurrency == p.Cores, "hardwareConcurrency %d != %d", obs.HardwareConcurrency, p.Cores)
	check(obs.DeviceMemory == p.MemoryGB, "deviceMemory %d != %d", obs.DeviceMemory, p.MemoryGB)
	check(obs.Platform == p.Platform, "platform %q != %q", obs.Platform, p.Platform)
	check(obs.Vendor == fingerprint.Vendor, "vendor %q != %q", obs.Vendor, fingerprint.Vendor)
	check(obs.UAPlatform == p.OSPlatform, "userAgentData platform %q != %q", obs.UAPlatform, p.OSPlatform)
	check(obs.ScreenWidth == p.ScreenW, "screen width %d != %d", obs.ScreenWidth, p.ScreenW)
	check(obs.ScreenHeight == p.ScreenH, "screen height %d != %d", obs.ScreenHeight, p.ScreenH)
	return mismatches
}

func init() {
	verifyCmd.Flags().Int64Var(&verifySeed, "seed", 0, "fixed seed (0 draws a fresh one)")
}
