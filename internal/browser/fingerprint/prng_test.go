package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	t.Run("ValuesInUnitInterval", func(t *testing.T) {
		seed := float64(12345)
		for i := 0; i < 1000; i++ {
			var v float64
			v, seed = Next(seed)
			require.GreaterOrEqual(t, v, 0.0)
			require.Less(t, v, 1.0)
		}
	})

	t.Run("SeedAdvancesByOne", func(t *testing.T) {
		_, next := Next(42)
		assert.Equal(t, 43.0, next)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a1, _ := Next(987654)
		a2, _ := Next(987654)
		assert.Equal(t, a1, a2)
	})
}

func TestSequence(t *testing.T) {
	t.Run("TwoSequencesSameSeedAgree", func(t *testing.T) {
		s1 := NewSequence(20260824)
		s2 := NewSequence(20260824)
		for i := 0; i < 100; i++ {
			require.Equal(t, s1.Float(), s2.Float(), "draw %d diverged", i)
		}
	})

	t.Run("IntNWithinBounds", func(t *testing.T) {
		s := NewSequence(7)
		for i := 0; i < 500; i++ {
			v := s.IntN(5)
			require.GreaterOrEqual(t, v, 0)
			require.Less(t, v, 5)
		}
	})

	t.Run("InRangeWithinBounds", func(t *testing.T) {
		s := NewSequence(11)
		for i := 0; i < 500; i++ {
			v := s.InRange(-74.05, -73.70)
			require.GreaterOrEqual(t, v, -74.05)
			require.Less(t, v, -73.70)
		}
	})

	t.Run("SequenceMatchesRawFormula", func(t *testing.T) {
		// The Sequence wrapper must replay exactly what bare Next produces,
		// since the injected script replays the bare formula.
		seq := NewSequence(555)
		state := float64(555)
		for i := 0; i < 50; i++ {
			want, next := Next(state)
			state = next
			require.Equal(t, want, seq.Float())
		}
	})
}
