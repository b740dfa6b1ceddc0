package netconfig

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
)

func TestBuild(t *testing.T) {
	p := fingerprint.FromSeed(4242)

	cfg, err := Build(p, nil)
	require.NoError(t, err)

	t.Run("UserAgentTemplate", func(t *testing.T) {
		want := fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", p.ChromeVersion)
		assert.Equal(t, want, cfg.UserAgent)
	})

	t.Run("ViewportIsResolutionPair", func(t *testing.T) {
		assert.Equal(t, p.ScreenW, cfg.ViewportW)
		assert.Equal(t, p.ScreenH, cfg.ViewportH)
		assert.Equal(t, 1.0, cfg.DeviceScaleFactor)
	})

	t.Run("LocaleAndTimezone", func(t *testing.T) {
		assert.Equal(t, p.Locale, cfg.Locale)
		assert.Equal(t, p.TimeZone, cfg.TimeZoneID)
	})

	t.Run("ClientHintHeaders", func(t *testing.T) {
		major := strconv.Itoa(p.ChromeMajor)
		h := cfg.Headers

		assert.Equal(t, `"Windows"`, h["Sec-CH-UA-Platform"])
		assert.Equal(t, `"15.0.0"`, h["Sec-CH-UA-Platform-Version"])
		assert.Equal(t, `"x86"`, h["Sec-CH-UA-Arch"])
		assert.Equal(t, `"64"`, h["Sec-CH-UA-Bitness"])
		assert.Equal(t, "?0", h["Sec-CH-UA-Mobile"])
		assert.Equal(t, "?0", h["Sec-CH-UA-WoW64"])
		assert.Equal(t, `""`, h["Sec-CH-UA-Model"])
		assert.Equal(t, `"`+p.ChromeVersion+`"`, h["Sec-CH-UA-Full-Version"])

		assert.Contains(t, h["Sec-CH-UA"], fmt.Sprintf(`"Google Chrome";v="%s"`, major))
		assert.Contains(t, h["Sec-CH-UA"], fmt.Sprintf(`"Chromium";v="%s"`, major))
		assert.Contains(t, h["Sec-CH-UA-Full-Version-List"], fmt.Sprintf(`"Google Chrome";v="%s"`, p.ChromeVersion))
	})

	t.Run("ContentNegotiationHeaders", func(t *testing.T) {
		h := cfg.Headers
		assert.Equal(t, "en-US,en;q=0.9", h["Accept-Language"])
		assert.Equal(t, "gzip, deflate, br, zstd", h["Accept-Encoding"])
		assert.True(t, strings.HasPrefix(h["Accept"], "text/html,"))
		assert.Equal(t, "1", h["Upgrade-Insecure-Requests"])
		assert.Equal(t, "none", h["Sec-Fetch-Site"])
		assert.Equal(t, "navigate", h["Sec-Fetch-Mode"])
		assert.Equal(t, "?1", h["Sec-Fetch-User"])
		assert.Equal(t, "document", h["Sec-Fetch-Dest"])
	})

	t.Run("ColorSchemeMatchesProfile", func(t *testing.T) {
		want := "light"
		if p.PrefersDarkMode {
			want = "dark"
		}
		assert.Equal(t, want, cfg.ColorScheme)
		assert.Equal(t, want, cfg.Headers["Sec-CH-Prefers-Color-Scheme"])
	})

	t.Run("GeolocationFromProfile", func(t *testing.T) {
		assert.Equal(t, p.Latitude, cfg.Geolocation.Latitude)
		assert.Equal(t, p.Longitude, cfg.Geolocation.Longitude)
		assert.Equal(t, float64(fingerprint.GeolocationAccuracyM), cfg.Geolocation.Accuracy)
	})
}

func TestBuildProxyPassthrough(t *testing.T) {
	p := fingerprint.FromSeed(99)
	proxy := &Proxy{Server: "http://198.51.100.7:3128", Username: "u", Password: "s3cr3t"}

	cfg, err := Build(p, proxy)
	require.NoError(t, err)
	assert.Same(t, proxy, cfg.Proxy, "proxy must pass through unmodified")
}

func TestBuildFailsFastOnBrokenProfile(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fingerprint.Profile)
	}{
		{"VersionMismatch", func(p *fingerprint.Profile) { p.ChromeMajor = 7 }},
		{"SplitResolution", func(p *fingerprint.Profile) { p.ScreenH = 123 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := fingerprint.FromSeed(5)
			tc.mutate(&p)
			_, err := Build(p, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProfileIntegrity)
		})
	}
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "en-US,en;q=0.9", acceptLanguage("en-US"))
	assert.Equal(t, "de", acceptLanguage("de"))
}
