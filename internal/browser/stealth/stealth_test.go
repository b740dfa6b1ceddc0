package stealth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
)

func TestSynthesize(t *testing.T) {
	p := fingerprint.FromSeed(31337)

	script, err := Synthesize(p)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	t.Run("EmbedsProfileLiterals", func(t *testing.T) {
		assert.Contains(t, script,
			fmt.Sprintf("def(navigator, 'hardwareConcurrency', function () { return %d; });", p.Cores))
		assert.Contains(t, script,
			fmt.Sprintf("def(navigator, 'deviceMemory', function () { return %d; });", p.MemoryGB))
		assert.Contains(t, script, fmt.Sprintf("opts.timeZone = %q;", p.TimeZone))
		assert.Contains(t, script, fmt.Sprintf("%q", p.Platform))
		assert.Contains(t, script, fmt.Sprintf("%q", p.ChromeVersion))
		assert.Contains(t, script, fmt.Sprintf("var __seed = %d;", p.Seed))
	})

	t.Run("ContainsEveryCatalogPatch", func(t *testing.T) {
		for _, patch := range Catalog() {
			assert.Contains(t, script, "// "+patch.Name, "patch %q missing from script", patch.Name)
		}
	})

	t.Run("CarriesIdempotenceMarker", func(t *testing.T) {
		assert.Contains(t, script, AppliedMarker)
	})

	t.Run("SelfContained", func(t *testing.T) {
		// No external loads of any kind.
		assert.NotContains(t, script, "import ")
		assert.NotContains(t, script, "require(")
		assert.NotContains(t, script, "fetch(")
	})
}

func TestSynthesizeCompilesForManySeeds(t *testing.T) {
	// Synthesize compile-checks internally; any syntax-breaking embedding
	// shows up as an error here.
	for seed := int64(1); seed <= 50; seed++ {
		_, err := Synthesize(fingerprint.FromSeed(seed))
		require.NoError(t, err, "seed %d", seed)
	}
}

func TestSynthesizeRejectsUnsafeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fingerprint.Profile)
	}{
		{"QuoteInTimezone", func(p *fingerprint.Profile) { p.TimeZone = `America/New_York");alert(1//` }},
		{"ControlCharInPlatform", func(p *fingerprint.Profile) { p.Platform = "Win32\x00" }},
		{"BacktickInTimezone", func(p *fingerprint.Profile) { p.TimeZone = "Europe/`Paris`" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := fingerprint.FromSeed(12)
			tc.mutate(&p)
			_, err := Synthesize(p)
			require.Error(t, err)
			// The platform mutation also violates the OS-family invariant, so
			// either rejection path is acceptable as long as nothing renders.
			if tc.name == "QuoteInTimezone" || tc.name == "BacktickInTimezone" {
				assert.ErrorIs(t, err, ErrUnsafeValue)
			}
		})
	}
}

func TestSynthesizeRejectsBrokenProfile(t *testing.T) {
	p := fingerprint.FromSeed(12)
	p.ChromeVersion = "7.0.0.1"
	_, err := Synthesize(p)
	require.Error(t, err)
}

func TestJSStringEscaping(t *testing.T) {
	out, err := jsString("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, `"America/New_York"`, out)

	_, err = jsString("bad\nvalue")
	assert.ErrorIs(t, err, ErrUnsafeValue)

	_, err = jsString(`has"quote`)
	assert.ErrorIs(t, err, ErrUnsafeValue)
}

func TestJSNumber(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{8, "8"},
		{int64(12345), "12345"},
		{40.71278, "40.71278"},
	} {
		out, err := jsNumber(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, out)
	}

	_, err := jsNumber("8")
	assert.ErrorIs(t, err, ErrUnsafeValue)
}
