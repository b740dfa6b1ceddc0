package stealth

// In-VM checks for the synthesized patch script. goja gives us a plain ES
// runtime with no DOM, which doubles as the degradation environment: patches
// whose guard APIs are missing must skip cleanly. A small prelude stubs the
// handful of host objects the asserted patches need. setTimeout is replaced
// with a recorder that fires immediately, so jitter delays become observable
// without waiting.

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
)

const vmPrelude = `
var __delays = [];
function setTimeout(fn, ms) { __delays.push(ms); fn(); return __delays.length; }
var navigator = {
	userAgent: 'HeadlessStub/1.0',
	permissions: {
		query: function (desc) {
			return { then: function (resolve) { resolve({ state: 'prompt' }); return this; } };
		}
	},
	geolocation: {},
	mediaDevices: {}
};
var screen = {};
var document = { fonts: { check: function () { return false; } } };
`

func newStubVM(t *testing.T) *goja.Runtime {
	t.Helper()
	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	_, err := vm.RunString(vmPrelude)
	require.NoError(t, err)
	return vm
}

func evalString(t *testing.T, vm *goja.Runtime, expr string) string {
	t.Helper()
	v, err := vm.RunString(expr)
	require.NoError(t, err, "evaluating %q", expr)
	return v.String()
}

func evalFloat(t *testing.T, vm *goja.Runtime, expr string) float64 {
	t.Helper()
	v, err := vm.RunString(expr)
	require.NoError(t, err, "evaluating %q", expr)
	return v.ToFloat()
}

func evalInt(t *testing.T, vm *goja.Runtime, expr string) int64 {
	t.Helper()
	v, err := vm.RunString(expr)
	require.NoError(t, err, "evaluating %q", expr)
	return v.ToInteger()
}

func TestScriptDegradesInBareEnvironment(t *testing.T) {
	script, err := Synthesize(fingerprint.FromSeed(2001))
	require.NoError(t, err)

	// Only the global object aliased as window, nothing else. Every patch
	// guard must evaluate false or the body must be caught; the script itself
	// must not throw.
	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	_, err = vm.RunString(script)
	require.NoError(t, err)

	assert.Equal(t, "true", evalString(t, vm, "String(window."+AppliedMarker+")"))
}

func TestScriptObservables(t *testing.T) {
	p := fingerprint.FromSeed(60221)
	script, err := Synthesize(p)
	require.NoError(t, err)

	vm := newStubVM(t)
	_, err = vm.RunString(script)
	require.NoError(t, err)

	t.Run("Webdriver", func(t *testing.T) {
		assert.Equal(t, "undefined", evalString(t, vm, "typeof navigator.webdriver"))
	})

	t.Run("Hardware", func(t *testing.T) {
		assert.Equal(t, int64(p.Cores), evalInt(t, vm, "navigator.hardwareConcurrency"))
		assert.Equal(t, int64(p.MemoryGB), evalInt(t, vm, "navigator.deviceMemory"))
	})

	t.Run("PlatformAndVendor", func(t *testing.T) {
		assert.Equal(t, p.Platform, evalString(t, vm, "navigator.platform"))
		assert.Equal(t, fingerprint.Vendor, evalString(t, vm, "navigator.vendor"))
	})

	t.Run("Screen", func(t *testing.T) {
		assert.Equal(t, int64(p.ScreenW), evalInt(t, vm, "screen.width"))
		assert.Equal(t, int64(p.ScreenH), evalInt(t, vm, "screen.height"))
		assert.Equal(t, int64(p.ScreenH-40), evalInt(t, vm, "screen.availHeight"))
		assert.Equal(t, int64(p.ScreenW), evalInt(t, vm, "window.outerWidth"))
	})

	t.Run("UserAgentData", func(t *testing.T) {
		type jsBrand struct {
			Brand   string `json:"brand"`
			Version string `json:"version"`
		}
		var want []jsBrand
		for _, b := range p.Brands() {
			want = append(want, jsBrand{Brand: b.Name, Version: b.Version})
		}
		wantJSON, err := json.Marshal(want)
		require.NoError(t, err)

		assert.Equal(t, string(wantJSON), evalString(t, vm, "JSON.stringify(navigator.userAgentData.brands)"))
		assert.Equal(t, p.OSPlatform, evalString(t, vm, "navigator.userAgentData.platform"))
		assert.Equal(t, "false", evalString(t, vm, "String(navigator.userAgentData.mobile)"))
	})

	t.Run("ChromeRuntime", func(t *testing.T) {
		assert.Equal(t, "object", evalString(t, vm, "typeof window.chrome"))
		assert.Equal(t, "function", evalString(t, vm, "typeof window.chrome.loadTimes"))
		assert.Equal(t, "false", evalString(t, vm, "String(window.chrome.app.isInstalled)"))
	})

	t.Run("Fonts", func(t *testing.T) {
		assert.Equal(t, "true", evalString(t, vm, `String(document.fonts.check('12px "Segoe UI"'))`))
		assert.Equal(t, "false", evalString(t, vm, `String(document.fonts.check('12px Wingdings'))`))
	})
}

func TestSeededJitterMatchesSequence(t *testing.T) {
	p := fingerprint.FromSeed(777)
	script, err := Synthesize(p)
	require.NoError(t, err)

	vm := newStubVM(t)
	_, err = vm.RunString(script)
	require.NoError(t, err)

	// Replay the draw order on the Go side. Draws #1 and #2 happen at script
	// evaluation (downlink, rtt); subsequent draws are consumed lazily per
	// call. Math.round rounds half away from zero for positive values, so the
	// mirror is floor(x+0.5).
	seq := fingerprint.NewSequence(p.Seed)
	wantDownlink := math.Floor((4.5+seq.Float()*5.5)*20+0.5) / 20
	wantRTT := 25 * (1 + int(math.Floor(seq.Float()*4)))

	assert.Equal(t, wantDownlink, evalFloat(t, vm, "navigator.connection.downlink"))
	assert.Equal(t, int64(wantRTT), evalInt(t, vm, "navigator.connection.rtt"))
	assert.Equal(t, "4g", evalString(t, vm, "navigator.connection.effectiveType"))

	// Draw #3: geolocation delivery delay.
	wantGeoDelay := 180 + int(math.Floor(seq.Float()*240))
	_, err = vm.RunString("var __pos; navigator.geolocation.getCurrentPosition(function (p) { __pos = p; });")
	require.NoError(t, err)

	assert.Equal(t, int64(1), evalInt(t, vm, "__delays.length"))
	assert.Equal(t, int64(wantGeoDelay), evalInt(t, vm, "__delays[0]"))
	assert.Equal(t, p.Latitude, evalFloat(t, vm, "__pos.coords.latitude"))
	assert.Equal(t, p.Longitude, evalFloat(t, vm, "__pos.coords.longitude"))
	assert.Equal(t, int64(fingerprint.GeolocationAccuracyM), evalInt(t, vm, "__pos.coords.accuracy"))

	// Draw #4: permissions query delay. The executor runs synchronously, so
	// the delay is recorded even though the promise resolves later.
	wantPermDelay := 12 + int(math.Floor(seq.Float()*24))
	_, err = vm.RunString("navigator.permissions.query({ name: 'notifications' });")
	require.NoError(t, err)

	assert.Equal(t, int64(2), evalInt(t, vm, "__delays.length"))
	assert.Equal(t, int64(wantPermDelay), evalInt(t, vm, "__delays[1]"))
}

func TestScriptDeterministicAcrossRuntimes(t *testing.T) {
	p := fingerprint.FromSeed(3141)
	script, err := Synthesize(p)
	require.NoError(t, err)

	observe := func() (float64, int64, int64) {
		vm := newStubVM(t)
		_, err := vm.RunString(script)
		require.NoError(t, err)
		_, err = vm.RunString("navigator.geolocation.getCurrentPosition(function () {});")
		require.NoError(t, err)
		return evalFloat(t, vm, "navigator.connection.downlink"),
			evalInt(t, vm, "navigator.connection.rtt"),
			evalInt(t, vm, "__delays[0]")
	}

	d1, r1, g1 := observe()
	d2, r2, g2 := observe()
	assert.Equal(t, d1, d2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, g1, g2)
}

func TestScriptIdempotentPerDocument(t *testing.T) {
	p := fingerprint.FromSeed(55)
	script, err := Synthesize(p)
	require.NoError(t, err)

	vm := newStubVM(t)
	_, err = vm.RunString(script)
	require.NoError(t, err)

	downlink := evalFloat(t, vm, "navigator.connection.downlink")
	rtt := evalInt(t, vm, "navigator.connection.rtt")

	// Second evaluation hits the applied marker and returns before touching
	// anything, including the generator state.
	_, err = vm.RunString(script)
	require.NoError(t, err)

	assert.Equal(t, downlink, evalFloat(t, vm, "navigator.connection.downlink"))
	assert.Equal(t, rtt, evalInt(t, vm, "navigator.connection.rtt"))
	assert.Equal(t, int64(p.Cores), evalInt(t, vm, "navigator.hardwareConcurrency"))
	assert.Equal(t, int64(0), evalInt(t, vm, "__delays.length"))
}

func TestPRNGAgreesBetweenGoAndJS(t *testing.T) {
	// The script inlines the same generator fingerprint.Next implements. goja
	// backs Math.sin with Go's math.Sin, so the sequences must agree bit for
	// bit over a long run.
	vm := goja.New()
	_, err := vm.RunString(`
var __seed = 424242;
var srand = function () { var x = Math.sin(__seed++) * 43758.5453123; return x - Math.floor(x); };`)
	require.NoError(t, err)

	seq := fingerprint.NewSequence(424242)
	for i := 0; i < 256; i++ {
		got := evalFloat(t, vm, "srand()")
		require.Equal(t, seq.Float(), got, "draw %d diverged", i)
	}
}

func TestEveryGuardIsTypeSafe(t *testing.T) {
	// Each guard must be evaluable in an empty runtime without throwing a
	// ReferenceError, otherwise a missing API would kill the whole patch
	// block instead of skipping one surface.
	for _, patch := range Catalog() {
		t.Run(patch.Name, func(t *testing.T) {
			vm := goja.New()
			require.NoError(t, vm.Set("window", vm.GlobalObject()))
			_, err := vm.RunString(fmt.Sprintf("Boolean(%s);", patch.Guard))
			require.NoError(t, err)
		})
	}
}
