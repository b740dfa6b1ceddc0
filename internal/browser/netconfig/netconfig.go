// Package netconfig maps a fingerprint profile to the network-facing context
// configuration: user agent, client-hint headers, locale, timezone, viewport,
// geolocation and proxy. It is a pure derivation over the immutable profile;
// applying the result to a live browser belongs to the browser manager.
package netconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
)

// ErrProfileIntegrity wraps profile invariant violations detected before any
// string assembly happens.
var ErrProfileIntegrity = errors.New("profile failed integrity check")

// userAgentTemplate is fixed; only the Chrome version varies per profile.
const userAgentTemplate = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36"

// Proxy is the caller-supplied proxy passed through to the engine unmodified.
type Proxy struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Geolocation is the coordinate the engine emulates for the context. Always
// derived from the profile so the network layer and the patched
// navigator.geolocation agree.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// ContextConfig is the configuration object handed to the automation engine
// when the context is opened.
type ContextConfig struct {
	UserAgent         string            `json:"userAgent"`
	Locale            string            `json:"locale"`
	TimeZoneID        string            `json:"timeZoneId"`
	ViewportW         int               `json:"viewportWidth"`
	ViewportH         int               `json:"viewportHeight"`
	DeviceScaleFactor float64           `json:"deviceScaleFactor"`
	ColorScheme       string            `json:"colorScheme"`
	Headers           map[string]string `json:"headers"`
	Geolocation       Geolocation       `json:"geolocation"`
	Proxy             *Proxy            `json:"proxy,omitempty"`
}

// Build derives the context configuration from the profile. The profile is
// re-validated first: a version or resolution mismatch here would leak a
// cross-surface inconsistency into every request, so it fails fast instead.
func Build(p fingerprint.Profile, proxy *Proxy) (ContextConfig, error) {
	if err := p.Validate(); err != nil {
		return ContextConfig{}, fmt.Errorf("%w: %v", ErrProfileIntegrity, err)
	}

	scheme := "light"
	if p.PrefersDarkMode {
		scheme = "dark"
	}

	return ContextConfig{
		UserAgent:         fmt.Sprintf(userAgentTemplate, p.ChromeVersion),
		Locale:            p.Locale,
		TimeZoneID:        p.TimeZone,
		ViewportW:         p.ScreenW,
		ViewportH:         p.ScreenH,
		DeviceScaleFactor: 1,
		ColorScheme:       scheme,
		Headers:           buildHeaders(p, scheme),
		Geolocation: Geolocation{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Accuracy:  fingerprint.GeolocationAccuracyM,
		},
		Proxy: proxy,
	}, nil
}

func buildHeaders(p fingerprint.Profile, scheme string) map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"Accept-Language": acceptLanguage(p.Locale),
		"Accept-Encoding": "gzip, deflate, br, zstd",

		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-User":            "?1",
		"Sec-Fetch-Dest":            "document",

		"Sec-CH-UA":                   brandList(p, false),
		"Sec-CH-UA-Full-Version":      quote(p.ChromeVersion),
		"Sec-CH-UA-Full-Version-List": brandList(p, true),
		"Sec-CH-UA-Mobile":            "?0",
		"Sec-CH-UA-Platform":          quote(p.OSPlatform),
		"Sec-CH-UA-Platform-Version":  quote(p.OSPlatformVersion),
		"Sec-CH-UA-Arch":              quote(p.Arch),
		"Sec-CH-UA-Bitness":           quote(p.Bitness),
		"Sec-CH-UA-WoW64":             "?0",
		"Sec-CH-UA-Model":             quote(""),
		"Sec-CH-Prefers-Color-Scheme": scheme,
	}
}

// acceptLanguage renders the locale plus its bare language tag with the usual
// Chrome quality weighting, e.g. "en-US,en;q=0.9".
func acceptLanguage(locale string) string {
	lang, _, found := strings.Cut(locale, "-")
	if !found {
		return locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", locale, lang)
}

// brandList renders the structured-header brand list from the profile's one
// brand derivation. full selects the Full-Version-List form.
func brandList(p fingerprint.Profile, full bool) string {
	brands := p.Brands()
	parts := make([]string, 0, len(brands))
	for _, b := range brands {
		v := b.Version
		if full {
			v = b.FullVersion
		}
		parts = append(parts, fmt.Sprintf("%s;v=%s", quote(b.Name), quote(v)))
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string {
	return `"` + s + `"`
}
