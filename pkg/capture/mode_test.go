package capture

import (
	"testing"

	"github.com/ocupoint/xla/pkg/protocol"
	"pgregory.net/rapid"
)

func TestSelectMode(t *testing.T) {
	cases := []struct {
		channels []int
		want     protocol.Mode
	}{
		{nil, protocol.Mode8},
		{[]int{0, 1}, protocol.Mode8},
		{[]int{7}, protocol.Mode8},
		{[]int{8}, protocol.Mode16},
		{[]int{15}, protocol.Mode16},
		{[]int{16}, protocol.Mode24},
		{[]int{23}, protocol.Mode24},
	}
	for _, c := range cases {
		if got := SelectMode(c.channels); got != c.want {
			t.Errorf("SelectMode(%v) = %v, want %v", c.channels, got, c.want)
		}
	}
}

// TestSelectModeNeverTruncates verifies property 1: the chosen mode never
// truncates the maximum requested channel index.
func TestSelectModeNeverTruncates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		channels := make([]int, n)
		max := 0
		for i := range channels {
			c := rapid.IntRange(0, 23).Draw(t, "channel")
			channels[i] = c
			if c > max {
				max = c
			}
		}

		mode := SelectMode(channels)

		width := 8 * (1 << uint(mode))
		if n > 0 && max >= width {
			t.Fatalf("mode %v (width %d) truncates max channel %d", mode, width, max)
		}
	})
}
