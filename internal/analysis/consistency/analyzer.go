// Package consistency cross-checks the three observation surfaces derived
// from one fingerprint profile: the HTTP header bundle, the patch script, and
// the profile itself. Any disagreement a server could detect by comparing
// surfaces is reported as a finding.
package consistency

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
	"github.com/xkilldash9x/stealthctx/internal/browser/netconfig"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Finding is one detected cross-surface disagreement.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

var regexUAChromeMajor = regexp.MustCompile(`Chrome/(\d+)\.`)

// Analyzer verifies that every surface reports the same device identity.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates the analyzer. A nil logger is replaced with a no-op.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger.Named("consistency")}
}

// Analyze runs every cross-surface check and returns the findings. An empty
// slice means the surfaces agree.
func (a *Analyzer) Analyze(p fingerprint.Profile, cfg netconfig.ContextConfig, script string) []Finding {
	var findings []Finding
	report := func(check string, sev Severity, format string, args ...any) {
		findings = append(findings, Finding{Check: check, Severity: sev, Detail: fmt.Sprintf(format, args...)})
	}

	a.checkVersions(p, cfg, script, report)
	a.checkPlatform(p, cfg, script, report)
	a.checkTimezone(p, cfg, script, report)
	a.checkHardware(p, script, report)
	a.checkColorScheme(p, cfg, report)
	a.checkGeolocation(p, cfg, script, report)

	if len(findings) > 0 {
		a.logger.Warn("Cross-surface inconsistencies detected", zap.Int("count", len(findings)))
	}
	return findings
}

type reportFn func(check string, sev Severity, format string, args ...any)

// checkVersions asserts the major version agrees between the user-agent
// header, the Sec-CH-UA brand list, and the script's brand data, and that all
// full versions equal the profile's.
func (a *Analyzer) checkVersions(p fingerprint.Profile, cfg netconfig.ContextConfig, script string, report reportFn) {
	major := strconv.Itoa(p.ChromeMajor)

	m := regexUAChromeMajor.FindStringSubmatch(cfg.UserAgent)
	if len(m) < 2 || m[1] != major {
		report("ua-major", SeverityHigh, "user-agent %q does not carry major version %s", cfg.UserAgent, major)
	}
	if !strings.Contains(cfg.UserAgent, "Chrome/"+p.ChromeVersion) {
		report("ua-full-version", SeverityHigh, "user-agent does not embed full version %s", p.ChromeVersion)
	}

	secCHUA := cfg.Headers["Sec-CH-UA"]
	if !strings.Contains(secCHUA, fmt.Sprintf(`"Google Chrome";v="%s"`, major)) {
		report("sec-ch-ua-major", SeverityHigh, "Sec-CH-UA %q disagrees with major version %s", secCHUA, major)
	}
	if full := cfg.Headers["Sec-CH-UA-Full-Version"]; full != `"`+p.ChromeVersion+`"` {
		report("sec-ch-ua-full", SeverityHigh, "Sec-CH-UA-Full-Version %s disagrees with %s", full, p.ChromeVersion)
	}

	if !strings.Contains(script, fmt.Sprintf(`"version":%q`, major)) {
		report("script-brand-major", SeverityHigh, "patch script brand list does not carry major version %s", major)
	}
	if !strings.Contains(script, p.ChromeVersion) {
		report("script-full-version", SeverityHigh, "patch script does not embed full version %s", p.ChromeVersion)
	}
}

// checkPlatform asserts the header platform token and the script's platform
// strings describe the same OS family.
func (a *Analyzer) checkPlatform(p fingerprint.Profile, cfg netconfig.ContextConfig, script string, report reportFn) {
	if hdr := cfg.Headers["Sec-CH-UA-Platform"]; hdr != `"`+p.OSPlatform+`"` {
		report("header-platform", SeverityHigh, "Sec-CH-UA-Platform %s disagrees with profile OS %q", hdr, p.OSPlatform)
	}
	for _, literal := range []string{p.Platform, p.OSPlatform} {
		if !strings.Contains(script, fmt.Sprintf("%q", literal)) {
			report("script-platform", SeverityHigh, "patch script does not report platform token %q", literal)
		}
	}
	if p.OSPlatform == "Windows" && !strings.Contains(cfg.UserAgent, "Windows NT") {
		report("ua-platform", SeverityHigh, "user-agent OS token disagrees with platform family %q", p.OSPlatform)
	}
}

// checkTimezone asserts the config's timezone id and the script's coercion
// literal are the same profile field.
func (a *Analyzer) checkTimezone(p fingerprint.Profile, cfg netconfig.ContextConfig, script string, report reportFn) {
	if cfg.TimeZoneID != p.TimeZone {
		report("config-timezone", SeverityHigh, "context config timezone %q disagrees with profile %q", cfg.TimeZoneID, p.TimeZone)
	}
	if !strings.Contains(script, fmt.Sprintf("opts.timeZone = %q", p.TimeZone)) {
		report("script-timezone", SeverityHigh, "patch script timezone coercion does not use profile zone %q", p.TimeZone)
	}
}

// checkHardware asserts the script embeds the profile's exact core and memory
// numerals.
func (a *Analyzer) checkHardware(p fingerprint.Profile, script string, report reportFn) {
	if !strings.Contains(script, fmt.Sprintf("return %d;", p.Cores)) {
		report("script-cores", SeverityMedium, "patch script does not embed hardwareConcurrency %d", p.Cores)
	}
	if !strings.Contains(script, fmt.Sprintf("return %d;", p.MemoryGB)) {
		report("script-memory", SeverityMedium, "patch script does not embed deviceMemory %d", p.MemoryGB)
	}
}

// checkColorScheme asserts the dark-mode preference agrees between the client
// hint and the emulated media feature.
func (a *Analyzer) checkColorScheme(p fingerprint.Profile, cfg netconfig.ContextConfig, report reportFn) {
	want := "light"
	if p.PrefersDarkMode {
		want = "dark"
	}
	if cfg.ColorScheme != want {
		report("config-color-scheme", SeverityMedium, "config color scheme %q disagrees with profile preference %q", cfg.ColorScheme, want)
	}
	if hdr := cfg.Headers["Sec-CH-Prefers-Color-Scheme"]; hdr != want {
		report("header-color-scheme", SeverityMedium, "Sec-CH-Prefers-Color-Scheme %q disagrees with profile preference %q", hdr, want)
	}
}

// checkGeolocation asserts spoofed coordinates are enabled consistently in
// both representations, never partially.
func (a *Analyzer) checkGeolocation(p fingerprint.Profile, cfg netconfig.ContextConfig, script string, report reportFn) {
	if cfg.Geolocation.Latitude != p.Latitude || cfg.Geolocation.Longitude != p.Longitude {
		report("config-geolocation", SeverityHigh, "context config coordinates (%v,%v) disagree with profile (%v,%v)",
			cfg.Geolocation.Latitude, cfg.Geolocation.Longitude, p.Latitude, p.Longitude)
	}
	lat := strconv.FormatFloat(p.Latitude, 'f', -1, 64)
	lon := strconv.FormatFloat(p.Longitude, 'f', -1, 64)
	if !strings.Contains(script, "latitude: "+lat) || !strings.Contains(script, "longitude: "+lon) {
		report("script-geolocation", SeverityHigh, "patch script does not embed profile coordinates (%s,%s)", lat, lon)
	}
}
