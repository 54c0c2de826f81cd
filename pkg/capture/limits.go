package capture

import "github.com/ocupoint/xla/pkg/protocol"

const (
	minPreSamples  = 2
	minPostSamples = 2
)

// Limits is the set of bounds a CaptureSession must satisfy for a given
// device buffer size and packing mode, derived once per capture plan.
type Limits struct {
	TotalSamples   uint32
	MinPreSamples  uint32
	MinPostSamples uint32
	MaxPreSamples  uint32
	MaxPostSamples uint32
	MaxTotalSamples uint32
}

// DeriveLimits computes Limits from a device's buffer size and the chosen
// packing mode.
//
// margin is the implementation-defined slack between maxPreSamples and
// maxPostSamples mentioned by the bound maxPreSamples + maxPostSamples <=
// totalSamples. We pick the loosest margin that still satisfies the bound,
// margin = max(0, maxPreSamples - minPreSamples), which makes the bound an
// equality whenever totalSamples is large enough for maxPreSamples to
// exceed minPreSamples.
func DeriveLimits(bufferSizeBytes uint32, mode protocol.Mode) Limits {
	totalSamples := bufferSizeBytes / uint32(mode.Divisor())

	maxPre := totalSamples / 10

	margin := int64(maxPre) - int64(minPreSamples)
	if margin < 0 {
		margin = 0
	}

	maxPost := int64(totalSamples) - int64(minPreSamples) - margin
	if maxPost < 0 {
		maxPost = 0
	}

	return Limits{
		TotalSamples:    totalSamples,
		MinPreSamples:   minPreSamples,
		MinPostSamples:  minPostSamples,
		MaxPreSamples:   maxPre,
		MaxPostSamples:  uint32(maxPost),
		MaxTotalSamples: minPreSamples + uint32(maxPost),
	}
}
