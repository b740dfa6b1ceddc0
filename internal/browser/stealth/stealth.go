// Package stealth synthesizes the runtime patch script for a fingerprint
// profile. The script is a single self-contained unit: it is evaluated as the
// first code in every new document of the context and overrides the
// JS-observable surface to agree with the same profile the network config was
// derived from.
package stealth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/stealthctx/internal/browser/fingerprint"
)

// ErrUnsafeValue marks a profile field that cannot be embedded into script
// source even after escaping. Such values are rejected, never inserted raw.
var ErrUnsafeValue = errors.New("profile value unsafe for script embedding")

// Fixed GPU identity reported through the WebGL parameter patch.
const (
	webglVendor   = "Google Inc. (Intel)"
	webglRenderer = "ANGLE (Intel, Intel(R) UHD Graphics 770 (0x00004680) Direct3D11 vs_5_0 ps_5_0, D3D11)"
)

// AppliedMarker is the window property that makes re-evaluation a no-op.
const AppliedMarker = "__sctxApplied"

// scriptView is the single data set the templates render from. Numeric fields
// pass through num, strings through js; BrandsJSON/FullVersionsJSON are
// pre-marshaled JSON and therefore already escaped.
type scriptView struct {
	Seed              int64
	Cores             int
	MemoryGB          int
	ScreenW           int
	ScreenH           int
	Latitude          float64
	Longitude         float64
	GeoAccuracy       int
	Platform          string
	Vendor            string
	OSPlatform        string
	OSPlatformVersion string
	Arch              string
	Bitness           string
	ChromeVersion     string
	TimeZone          string
	WebGLVendor       string
	WebGLRenderer     string
	BrandsJSON        string
	FullVersionsJSON  string
}

var scriptTemplates = compileTemplates()

func compileTemplates() []*template.Template {
	funcs := template.FuncMap{
		"js":  jsString,
		"num": jsNumber,
	}
	out := make([]*template.Template, len(catalog))
	for i, p := range catalog {
		out[i] = template.Must(template.New(p.Name).Funcs(funcs).Parse(p.Body))
	}
	return out
}

// jsString renders a Go string as a JS string literal. JSON string encoding
// is valid JS and escapes quotes, backslashes, control characters and the
// U+2028/U+2029 separators.
func jsString(s string) (string, error) {
	if err := checkEmbeddable(s); err != nil {
		return "", err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeValue, err)
	}
	return string(b), nil
}

func jsNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: non-numeric value %T", ErrUnsafeValue, v)
	}
}

// checkEmbeddable rejects values no realistic profile field ever contains.
// Escaping would render them harmless, but a control character or quote in a
// timezone or locale means the value is corrupt, not merely awkward.
func checkEmbeddable(s string) error {
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character %q", ErrUnsafeValue, r)
		}
	}
	if strings.ContainsAny(s, `"'`+"`") {
		return fmt.Errorf("%w: quote character in %q", ErrUnsafeValue, s)
	}
	return nil
}

// Synthesize renders the full patch script for the profile. The result is
// idempotent-safe per document and degrades per-patch: a missing API skips
// that patch only. Every rendered script is compile-checked with goja before
// it is returned, so a value that survives escaping but breaks syntax can
// never reach the browser.
func Synthesize(p fingerprint.Profile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	view, err := newScriptView(p)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("(function () {\n  'use strict';\n")
	fmt.Fprintf(&b, "  if (window.%s) { return; }\n", AppliedMarker)
	fmt.Fprintf(&b, "  try { Object.defineProperty(window, %q, { value: true, enumerable: false, configurable: false }); } catch (e) { window.%s = true; }\n",
		AppliedMarker, AppliedMarker)

	// The in-page half of the shared generator. Same formula, same seed, same
	// sequence as fingerprint.Next on the Go side.
	fmt.Fprintf(&b, "  var __seed = %d;\n", view.Seed)
	b.WriteString("  var srand = function () { var x = Math.sin(__seed++) * 43758.5453123; return x - Math.floor(x); };\n")
	b.WriteString("  var def = function (obj, prop, getter) { try { Object.defineProperty(obj, prop, { get: getter, configurable: true }); } catch (e) {} };\n")

	for i, patch := range catalog {
		var body strings.Builder
		if err := scriptTemplates[i].Execute(&body, view); err != nil {
			return "", fmt.Errorf("rendering patch %q: %w", patch.Name, err)
		}
		fmt.Fprintf(&b, "\n  // %s\n", patch.Name)
		fmt.Fprintf(&b, "  try { if (%s) {%s\n  } } catch (e) {}\n", patch.Guard, indent(body.String()))
	}

	b.WriteString("})();\n")
	script := b.String()

	if _, err := goja.Compile("patch.js", script, true); err != nil {
		return "", fmt.Errorf("synthesized patch script failed to compile: %w", err)
	}
	return script, nil
}

func newScriptView(p fingerprint.Profile) (*scriptView, error) {
	type jsBrand struct {
		Brand   string `json:"brand"`
		Version string `json:"version"`
	}
	var brands, fullVersions []jsBrand
	for _, br := range p.Brands() {
		if err := checkEmbeddable(br.Name); err != nil {
			return nil, err
		}
		brands = append(brands, jsBrand{Brand: br.Name, Version: br.Version})
		fullVersions = append(fullVersions, jsBrand{Brand: br.Name, Version: br.FullVersion})
	}
	brandsJSON, err := json.Marshal(brands)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeValue, err)
	}
	fullJSON, err := json.Marshal(fullVersions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeValue, err)
	}

	return &scriptView{
		Seed:              p.Seed,
		Cores:             p.Cores,
		MemoryGB:          p.MemoryGB,
		ScreenW:           p.ScreenW,
		ScreenH:           p.ScreenH,
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		GeoAccuracy:       fingerprint.GeolocationAccuracyM,
		Platform:          p.Platform,
		Vendor:            fingerprint.Vendor,
		OSPlatform:        p.OSPlatform,
		OSPlatformVersion: p.OSPlatformVersion,
		Arch:              p.Arch,
		Bitness:           p.Bitness,
		ChromeVersion:     p.ChromeVersion,
		TimeZone:          p.TimeZone,
		WebGLVendor:       webglVendor,
		WebGLRenderer:     webglRenderer,
		BrandsJSON:        string(brandsJSON),
		FullVersionsJSON:  string(fullJSON),
	}, nil
}

// indent shifts a rendered body under the guard block.
func indent(body string) string {
	return strings.ReplaceAll(body, "\n", "\n    ")
}
