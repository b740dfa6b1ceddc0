// Package fingerprint generates the per-context device identity every other
// surface (HTTP headers, CDP emulation, injected patch script) is derived
// from. A Profile is created once, validated, and never mutated afterwards.
package fingerprint

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// chromeMajor is the pinned browser major version. Every surface that reports
// a version derives from this and the full ChromeVersion string only.
const chromeMajor = 140

// Value pools. Resolutions are atomic pairs: width and height are never
// recombined across entries.
var (
	corePool   = []int{4, 6, 8, 12, 16}
	memoryPool = []int{4, 8, 16, 32}

	resolutionPool = [][2]int{
		{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
		{1280, 720}, {1600, 900}, {2560, 1440},
	}
)

// Geographic bounding box (NYC metro). Sampled coordinates always land inside.
const (
	boundingBoxMinLat = 40.55
	boundingBoxMaxLat = 40.95
	boundingBoxMinLon = -74.05
	boundingBoxMaxLon = -73.70
)

const darkModeBias = 0.7

// coherenceBundle ties together every value that must describe the same OS,
// zone and language. A single entry today; adding an entry means adding a
// complete, internally consistent bundle, never one field.
type coherenceBundle struct {
	Platform          string
	OSPlatform        string
	OSPlatformVersion string
	Arch              string
	Bitness           string
	TimeZone          string
	Locale            string
}

var bundles = []coherenceBundle{
	{
		Platform:          "Win32",
		OSPlatform:        "Windows",
		OSPlatformVersion: "15.0.0",
		Arch:              "x86",
		Bitness:           "64",
		TimeZone:          "America/New_York",
		Locale:            "en-US",
	},
}

// Vendor is the navigator.vendor string reported for every profile.
const Vendor = "Google Inc."

// GeolocationAccuracyM is the accuracy radius (meters) reported for spoofed
// geolocation. The network-layer override and the patched
// navigator.geolocation must report the same value.
const GeolocationAccuracyM = 25

// Profile is the immutable device identity for one browsing context.
type Profile struct {
	Cores             int     `json:"cores" validate:"required,min=1"`
	MemoryGB          int     `json:"memoryGb" validate:"required,min=1"`
	Platform          string  `json:"platform" validate:"required"`
	OSPlatform        string  `json:"osPlatform" validate:"required"`
	OSPlatformVersion string  `json:"osPlatformVersion" validate:"required"`
	Arch              string  `json:"arch" validate:"required"`
	Bitness           string  `json:"bitness" validate:"required"`
	ScreenW           int     `json:"screenW" validate:"required,min=640"`
	ScreenH           int     `json:"screenH" validate:"required,min=480"`
	ChromeVersion     string  `json:"chromeVersion" validate:"required"`
	ChromeMajor       int     `json:"chromeMajorVersion" validate:"required,min=1"`
	Seed              int64   `json:"seed" validate:"required,min=1"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	TimeZone          string  `json:"timeZone" validate:"required"`
	Locale            string  `json:"locale" validate:"required"`
	PrefersDarkMode   bool    `json:"prefersDarkMode"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(profileStructLevel, Profile{})
	return v
}

// profileStructLevel enforces the cross-field invariants that tag-based rules
// cannot express: the version prefix, the atomic resolution pair, the
// bounding box and the OS family coherence.
func profileStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(Profile)

	major, _, ok := strings.Cut(p.ChromeVersion, ".")
	if !ok || major != strconv.Itoa(p.ChromeMajor) {
		sl.ReportError(p.ChromeVersion, "ChromeVersion", "chromeVersion", "versionprefix", "")
	}

	paired := false
	for _, r := range resolutionPool {
		if p.ScreenW == r[0] && p.ScreenH == r[1] {
			paired = true
			break
		}
	}
	if !paired {
		sl.ReportError(p.ScreenW, "ScreenW", "screenW", "resolutionpair", "")
	}

	if p.Latitude < boundingBoxMinLat || p.Latitude > boundingBoxMaxLat {
		sl.ReportError(p.Latitude, "Latitude", "latitude", "boundingbox", "")
	}
	if p.Longitude < boundingBoxMinLon || p.Longitude > boundingBoxMaxLon {
		sl.ReportError(p.Longitude, "Longitude", "longitude", "boundingbox", "")
	}

	coherent := false
	for _, b := range bundles {
		if p.Platform == b.Platform && p.OSPlatform == b.OSPlatform {
			coherent = true
			break
		}
	}
	if !coherent {
		sl.ReportError(p.Platform, "Platform", "platform", "osfamily", "")
	}
}

// Validate checks every profile invariant. Derivations (network config, patch
// script) call this before producing anything; a failure here is a
// configuration-integrity error, never silently patched.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("fingerprint profile failed integrity validation: %w", err)
	}
	return nil
}

// Brand is one entry of the UA client-hints brand list.
type Brand struct {
	Name        string
	Version     string // major only
	FullVersion string
}

// Brands returns the client-hints brand list for the profile. Both the
// Sec-CH-UA headers and the patched navigator.userAgentData are rendered from
// this one derivation, so the two surfaces cannot drift.
func (p Profile) Brands() []Brand {
	major := strconv.Itoa(p.ChromeMajor)
	return []Brand{
		{Name: "Chromium", Version: major, FullVersion: p.ChromeVersion},
		{Name: "Not=A?Brand", Version: "24", FullVersion: "24.0.0.0"},
		{Name: "Google Chrome", Version: major, FullVersion: p.ChromeVersion},
	}
}

// Generator produces profiles. The zero value is not usable; construct with
// NewGenerator.
type Generator struct {
	seedFn func() (int64, error)
}

// Option customizes a Generator.
type Option func(*Generator)

// WithSeed pins the generator to a fixed seed, making Generate fully
// deterministic. Intended for tests and for reproducing a session.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seedFn = func() (int64, error) { return seed, nil }
	}
}

// NewGenerator creates a profile generator seeded from the OS entropy source
// unless WithSeed overrides it.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{seedFn: randomSeed}
	for _, o := range opts {
		o(g)
	}
	return g
}

// randomSeed draws a seed in [1, 2^31). The range keeps the seed exact as a
// JavaScript number once inlined into the patch script.
func randomSeed() (int64, error) {
	var buf [4]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("reading entropy for profile seed: %w", err)
	}
	s := int64(binary.BigEndian.Uint32(buf[:]) % (1<<31 - 1))
	return s + 1, nil
}

// Generate draws a seed and builds the profile from it. Only catastrophic
// entropy-source failure can error.
func (g *Generator) Generate() (Profile, error) {
	seed, err := g.seedFn()
	if err != nil {
		return Profile{}, err
	}
	return FromSeed(seed), nil
}

// FromSeed derives a complete profile from a seed. The draw order below is
// fixed: reordering it changes every profile derived from existing seeds.
func FromSeed(seed int64) Profile {
	seq := NewSequence(seed)
	bundle := bundles[0]

	cores := corePool[seq.IntN(len(corePool))]
	memory := memoryPool[seq.IntN(len(memoryPool))]
	res := resolutionPool[seq.IntN(len(resolutionPool))]
	build := 6500 + seq.IntN(1000)
	patchVer := seq.IntN(250)
	lat := round5(seq.InRange(boundingBoxMinLat, boundingBoxMaxLat))
	lon := round5(seq.InRange(boundingBoxMinLon, boundingBoxMaxLon))
	dark := seq.Bool(darkModeBias)

	return Profile{
		Cores:             cores,
		MemoryGB:          memory,
		Platform:          bundle.Platform,
		OSPlatform:        bundle.OSPlatform,
		OSPlatformVersion: bundle.OSPlatformVersion,
		Arch:              bundle.Arch,
		Bitness:           bundle.Bitness,
		ScreenW:           res[0],
		ScreenH:           res[1],
		ChromeVersion:     fmt.Sprintf("%d.0.%d.%d", chromeMajor, build, patchVer),
		ChromeMajor:       chromeMajor,
		Seed:              seed,
		Latitude:          lat,
		Longitude:         lon,
		TimeZone:          bundle.TimeZone,
		Locale:            bundle.Locale,
		PrefersDarkMode:   dark,
	}
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// BoundingBox reports the configured geographic sampling box, exposed for
// consistency checks and tests.
func BoundingBox() (minLat, maxLat, minLon, maxLon float64) {
	return boundingBoxMinLat, boundingBoxMaxLat, boundingBoxMinLon, boundingBoxMaxLon
}
