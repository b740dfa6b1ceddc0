package fingerprint

import "math"

// prngMultiplier is the classic fractional-sine hash constant. The formula
// frac(sin(seed) * k) is deliberately primitive: the same expression is
// inlined verbatim into the patch script, where only Math.sin and Math.floor
// are available. Changing the constant here without regenerating the script
// template breaks seed reproducibility across the two runtimes.
const prngMultiplier = 43758.5453123

// Next is the single step of the shared pseudo-random formula. It returns a
// value in [0,1) and the successor seed. Pure and allocation-free so both the
// generator and the test harness can replay a jitter sequence from a bare
// seed value.
func Next(seed float64) (value, nextSeed float64) {
	x := math.Sin(seed) * prngMultiplier
	return x - math.Floor(x), seed + 1
}

// Sequence is a stateful wrapper around Next. Two sequences constructed from
// the same seed produce identical draws, in Go and in the injected script.
type Sequence struct {
	state float64
}

// NewSequence starts a sequence at the given seed.
func NewSequence(seed int64) *Sequence {
	return &Sequence{state: float64(seed)}
}

// Float returns the next draw in [0,1).
func (s *Sequence) Float() float64 {
	v, next := Next(s.state)
	s.state = next
	return v
}

// IntN returns a uniform draw in [0,n). n must be positive.
func (s *Sequence) IntN(n int) int {
	return int(s.Float() * float64(n))
}

// InRange returns a uniform draw in [lo,hi).
func (s *Sequence) InRange(lo, hi float64) float64 {
	return lo + s.Float()*(hi-lo)
}

// Bool returns true with probability p.
func (s *Sequence) Bool(p float64) bool {
	return s.Float() < p
}
