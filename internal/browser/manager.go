// Package browser owns the browser process lifecycle and the creation of
// stealth contexts: generate profile, derive network config and patch script
// from it, open a CDP context, apply the config and register the script
// before the context ever navigates.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/netconfig"
	"github.com/xkilldash9x/stealthctx/internal/browser/stealth"
	"github.com/xkilldash9x/stealthctx/internal/config"
)

// Manager manages the browser process and the stealth contexts opened on it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config
	gen    *fingerprint.Generator

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.Mutex
	contexts map[string]*StealthContext
}

// NewManager starts the shared exec allocator and returns the manager. The
// allocator carries the non-negotiable launch flags; contexts requested with
// a proxy get their own allocator later.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config, genOpts ...fingerprint.Option) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		gen:      fingerprint.NewGenerator(genOpts...),
		contexts: make(map[string]*StealthContext),
	}

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(cfg.Browser, nil)...)

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Browser.Headless),
	)
	return m, nil
}

// allocatorOptions configures the flags for the browser executable. The first
// four stealth flags are an engine contract: the automation feature flag off,
// the Blink automation marker off, the desktop GL backend forced and the
// sandbox disabled. Everything else is stability configuration.
func allocatorOptions(browserCfg config.BrowserConfig, proxy *netconfig.Proxy) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("use-gl", "desktop"),
		chromedp.NoSandbox,

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),

		chromedp.Flag("ignore-certificate-errors", browserCfg.IgnoreTLSErrors),
	)

	if browserCfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if browserCfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(browserCfg.ExecPath))
	}
	if proxy != nil && proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(proxy.Server))
	}

	return opts
}

// NewStealthContext creates one fully configured context: fresh profile,
// derived network config and patch script, with the script registered before
// the caller can trigger the first navigation. On any failure the partially
// created context is torn down; a context is never handed out without its
// patch script installed.
func (m *Manager) NewStealthContext(sessionCtx context.Context, proxy *netconfig.Proxy) (*StealthContext, error) {
	profile, err := m.gen.Generate()
	if err != nil {
		return nil, fmt.Errorf("generating fingerprint profile: %w", err)
	}

	contextCfg, err := netconfig.Build(profile, proxy)
	if err != nil {
		return nil, fmt.Errorf("building context config: %w", err)
	}

	script, err := stealth.Synthesize(profile)
	if err != nil {
		return nil, fmt.Errorf("synthesizing patch script: %w", err)
	}

	// A proxied context cannot share the default allocator: the proxy is a
	// launch flag, so it gets a dedicated browser process.
	parent := m.allocatorCtx
	var allocCancel context.CancelFunc
	if proxy != nil && proxy.Server != "" {
		parent, allocCancel = chromedp.NewExecAllocator(sessionCtx, allocatorOptions(m.cfg.Browser, proxy)...)
	}

	ctx, cancel := chromedp.NewContext(parent,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)
	teardown := func() {
		cancel()
		if allocCancel != nil {
			allocCancel()
		}
	}

	go func() {
		select {
		case <-sessionCtx.Done():
			teardown()
		case <-ctx.Done():
		}
	}()

	// Apply the emulation overrides and register the init script in one run.
	// No navigation happens here: the first chromedp.Run attaches the target,
	// and AddScriptToEvaluateOnNewDocument covers every future document.
	if err := chromedp.Run(ctx, append(applyConfig(profile, contextCfg), registerInitScript(script))...); err != nil {
		teardown()
		return nil, fmt.Errorf("configuring stealth context: %w", err)
	}

	sc := &StealthContext{
		id:          uuid.New().String(),
		profile:     profile,
		config:      contextCfg,
		script:      script,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		manager:     m,
	}

	m.mu.Lock()
	m.contexts[sc.id] = sc
	m.mu.Unlock()

	m.logger.Debug("Stealth context ready",
		zap.String("context_id", sc.id),
		zap.Int64("seed", profile.Seed),
		zap.String("chrome_version", profile.ChromeVersion),
	)
	return sc, nil
}

// applyConfig translates the engine-neutral ContextConfig into CDP emulation
// and network actions.
func applyConfig(p fingerprint.Profile, cfg netconfig.ContextConfig) chromedp.Tasks {
	headers := make(network.Headers, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		uaOverride(p, cfg),
		emulation.SetTimezoneOverride(cfg.TimeZoneID),
		emulation.SetLocaleOverride().WithLocale(cfg.Locale),
		emulation.SetGeolocationOverride().
			WithLatitude(cfg.Geolocation.Latitude).
			WithLongitude(cfg.Geolocation.Longitude).
			WithAccuracy(cfg.Geolocation.Accuracy),
		emulation.SetDeviceMetricsOverride(int64(cfg.ViewportW), int64(cfg.ViewportH), cfg.DeviceScaleFactor, false),
		emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: cfg.ColorScheme},
		}),
	}
}

// uaOverride builds the SetUserAgentOverride action with full
// UserAgentMetadata. The metadata mirrors the Sec-CH-UA headers exactly
// because both come from the profile's one brand derivation.
func uaOverride(p fingerprint.Profile, cfg netconfig.ContextConfig) *emulation.SetUserAgentOverrideParams {
	brands := p.Brands()
	brandVersions := make([]*emulation.UserAgentBrandVersion, 0, len(brands))
	fullVersions := make([]*emulation.UserAgentBrandVersion, 0, len(brands))
	for _, b := range brands {
		brandVersions = append(brandVersions, &emulation.UserAgentBrandVersion{Brand: b.Name, Version: b.Version})
		fullVersions = append(fullVersions, &emulation.UserAgentBrandVersion{Brand: b.Name, Version: b.FullVersion})
	}

	return emulation.SetUserAgentOverride(cfg.UserAgent).
		WithAcceptLanguage(cfg.Headers["Accept-Language"]).
		WithPlatform(p.Platform).
		WithUserAgentMetadata(&emulation.UserAgentMetadata{
			Platform:        p.OSPlatform,
			PlatformVersion: p.OSPlatformVersion,
			Architecture:    p.Arch,
			Bitness:         p.Bitness,
			Mobile:          false,
			Model:           "",
			Brands:          brandVersions,
			FullVersionList: fullVersions,
		})
}

// registerInitScript guarantees the patch runs as the first evaluated code in
// every new document of the context.
func registerInitScript(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).
			WithRunImmediately(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("registering init script: %w", err)
		}
		return nil
	})
}

// unregister removes a closed context from tracking.
func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, id)
}

// Shutdown closes all open contexts concurrently, then stops the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager")

	m.mu.Lock()
	open := make([]*StealthContext, 0, len(m.contexts))
	for _, sc := range m.contexts {
		open = append(open, sc)
	}
	m.contexts = make(map[string]*StealthContext)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sc := range open {
		wg.Add(1)
		go func(sc *StealthContext) {
			defer wg.Done()
			closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := sc.Close(closeCtx); err != nil {
				m.logger.Warn("Error closing stealth context during shutdown",
					zap.String("context_id", sc.id), zap.Error(err))
			}
		}(sc)
	}
	wg.Wait()

	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.logger.Info("Browser manager shutdown complete")
	return nil
}
