package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stealthctx/internal/analysis/consistency"
	"github.com/xkilldash9x/stealthctx/internal/browser"
	"github.com/xkilldash9x/stealthctx/internal/browser/netconfig"
	"github.com/xkilldash9x/stealthctx/internal/config"
	"github.com/xkilldash9x/stealthctx/internal/observability"
)

var (
	openURL     string
	openTimeout time.Duration
)

// openReport is the JSON document the open command prints: the generated
// identity, what the live runtime actually reports, and any cross-surface
// disagreements.
type openReport struct {
	ContextID string                `json:"contextId"`
	Profile   any                   `json:"profile"`
	Runtime   browser.RuntimeReport `json:"runtime"`
	Findings  []consistency.Finding `json:"findings"`
	Headers   map[string]string     `json:"headers"`
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a stealth context, navigate, and report the observable surface.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		cfg := config.Get()

		ctx, cancel := context.WithTimeout(cmd.Context(), openTimeout)
		defer cancel()

		mgr, err := browser.NewManager(ctx, logger, cfg)
		if err != nil {
			return fmt.Errorf("starting browser manager: %w", err)
		}
		defer mgr.Shutdown(ctx)

		var proxy *netconfig.Proxy
		if cfg.Network.Proxy.Enabled {
			proxy = &netconfig.Proxy{
				Server:   cfg.Network.Proxy.Address,
				Username: cfg.Network.Proxy.Username,
				Password: cfg.Network.Proxy.Password,
			}
		}

		sc, err := mgr.NewStealthContext(ctx, proxy)
		if err != nil {
			return err
		}
		defer sc.Close(ctx)

		if err := sc.Navigate(ctx, openURL); err != nil {
			return err
		}

		runtime, err := sc.Inspect(ctx)
		if err != nil {
			return err
		}

		findings := consistency.NewAnalyzer(logger).Analyze(sc.Profile(), sc.Config(), sc.PatchScript())

		report := openReport{
			ContextID: sc.ID(),
			Profile:   sc.Profile(),
			Runtime:   runtime,
			Findings:  findings,
			Headers:   sc.Config().Headers,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}

		if len(findings) > 0 {
			logger.Warn("Surfaces disagree", zap.Int("findings", len(findings)))
		}
		return nil
	},
}

func init() {
	openCmd.Flags().StringVar(&openURL, "url", "about:blank", "URL to navigate the fresh context to")
	openCmd.Flags().DurationVar(&openTimeout, "timeout", 60*time.Second, "overall deadline for the run")
}
