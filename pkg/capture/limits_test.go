package capture

import (
	"testing"

	"github.com/ocupoint/xla/pkg/protocol"
	"pgregory.net/rapid"
)

func TestDeriveLimitsBasic(t *testing.T) {
	l := DeriveLimits(262144, protocol.Mode8)
	if l.TotalSamples != 262144 {
		t.Errorf("TotalSamples = %d, want 262144", l.TotalSamples)
	}
	if l.MinPreSamples != 2 || l.MinPostSamples != 2 {
		t.Errorf("unexpected minimums: %+v", l)
	}
	if l.MaxPreSamples+l.MaxPostSamples > l.TotalSamples {
		t.Errorf("maxPre+maxPost %d exceeds totalSamples %d", l.MaxPreSamples+l.MaxPostSamples, l.TotalSamples)
	}
	if l.MaxTotalSamples > l.TotalSamples {
		t.Errorf("maxTotalSamples %d exceeds totalSamples %d", l.MaxTotalSamples, l.TotalSamples)
	}
}

// TestLimitsMonotonicity verifies property 6: for the same bufferSize,
// maxTotalSamples(M8) >= maxTotalSamples(M16) >= maxTotalSamples(M24).
func TestLimitsMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bufferSize := rapid.Uint32Range(24, 4_000_000).Draw(t, "bufferSize")

		m8 := DeriveLimits(bufferSize, protocol.Mode8)
		m16 := DeriveLimits(bufferSize, protocol.Mode16)
		m24 := DeriveLimits(bufferSize, protocol.Mode24)

		if m8.MaxTotalSamples < m16.MaxTotalSamples {
			t.Fatalf("M8 maxTotalSamples %d < M16 %d", m8.MaxTotalSamples, m16.MaxTotalSamples)
		}
		if m16.MaxTotalSamples < m24.MaxTotalSamples {
			t.Fatalf("M16 maxTotalSamples %d < M24 %d", m16.MaxTotalSamples, m24.MaxTotalSamples)
		}
	})
}

// TestDeriveLimitsBoundSatisfied checks the bound that maxPreSamples +
// maxPostSamples never exceeds totalSamples across a range of buffer sizes
// and modes, regardless of how the implementation-defined margin is chosen.
func TestDeriveLimitsBoundSatisfied(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bufferSize := rapid.Uint32Range(0, 4_000_000).Draw(t, "bufferSize")
		mode := protocol.Mode(rapid.IntRange(0, 2).Draw(t, "mode"))

		l := DeriveLimits(bufferSize, mode)
		if l.MaxPreSamples+l.MaxPostSamples > l.TotalSamples {
			t.Fatalf("bound violated: maxPre=%d maxPost=%d totalSamples=%d", l.MaxPreSamples, l.MaxPostSamples, l.TotalSamples)
		}
	})
}
