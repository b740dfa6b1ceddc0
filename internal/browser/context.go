package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/netconfig"
)

// StealthContext is a ready-to-use browsing context: the patch script is
// registered and the emulation overrides are applied before the caller ever
// sees it.
type StealthContext struct {
	id      string
	profile fingerprint.Profile
	config  netconfig.ContextConfig
	script  string

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	manager   *Manager
	closeOnce sync.Once
}

// ID returns the context's unique identifier.
func (sc *StealthContext) ID() string { return sc.id }

// Profile returns the immutable fingerprint profile this context presents.
func (sc *StealthContext) Profile() fingerprint.Profile { return sc.profile }

// Config returns the derived network configuration.
func (sc *StealthContext) Config() netconfig.ContextConfig { return sc.config }

// PatchScript returns the synthesized init script registered on the context.
func (sc *StealthContext) PatchScript() string { return sc.script }

// Context exposes the underlying chromedp context for callers that drive
// navigation and scripting themselves.
func (sc *StealthContext) Context() context.Context { return sc.ctx }

// Navigate loads the URL and waits for the document body.
func (sc *StealthContext) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := bindContext(sc.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// RuntimeReport is what the patched runtime actually reports, read back from
// the live page.
type RuntimeReport struct {
	Webdriver           bool     `json:"webdriver"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        float64  `json:"deviceMemory"`
	Platform            string   `json:"platform"`
	Vendor              string   `json:"vendor"`
	UserAgent           string   `json:"userAgent"`
	Languages           []string `json:"languages"`
	TimeZone            string   `json:"timeZone"`
	ScreenWidth         int      `json:"screenWidth"`
	ScreenHeight        int      `json:"screenHeight"`
	DarkMode            bool     `json:"darkMode"`
}

const inspectExpression = `({
	webdriver: !!navigator.webdriver,
	hardwareConcurrency: navigator.hardwareConcurrency,
	deviceMemory: navigator.deviceMemory || 0,
	platform: navigator.platform,
	vendor: navigator.vendor,
	userAgent: navigator.userAgent,
	languages: navigator.languages || [],
	timeZone: Intl.DateTimeFormat().resolvedOptions().timeZone,
	screenWidth: screen.width,
	screenHeight: screen.height,
	darkMode: window.matchMedia('(prefers-color-scheme: dark)').matches
})`

// Inspect evaluates the introspection expression in the current document and
// returns the values a detection script would observe.
func (sc *StealthContext) Inspect(ctx context.Context) (RuntimeReport, error) {
	var report RuntimeReport
	runCtx, cancel := bindContext(sc.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(inspectExpression, &report)); err != nil {
		return RuntimeReport{}, fmt.Errorf("inspecting runtime surface: %w", err)
	}
	return report, nil
}

// Close tears the context down. Safe to call more than once.
func (sc *StealthContext) Close(ctx context.Context) error {
	sc.closeOnce.Do(func() {
		sc.cancel()
		if sc.allocCancel != nil {
			sc.allocCancel()
		}
		if sc.manager != nil {
			sc.manager.unregister(sc.id)
		}
	})

	select {
	case <-sc.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bindContext derives a chromedp-runnable context that also respects the
// caller's deadline.
func bindContext(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callerCtx.Deadline(); ok {
		return context.WithDeadline(tabCtx, deadline)
	}
	return context.WithCancel(tabCtx)
}
