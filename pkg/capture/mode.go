package capture

import "github.com/ocupoint/xla/pkg/protocol"

// SelectMode picks the sample-packing mode wide enough to address every
// channel number in channelNumbers without truncation. An empty set
// selects the narrowest mode, M8.
func SelectMode(channelNumbers []int) protocol.Mode {
	max := 0
	for _, c := range channelNumbers {
		if c > max {
			max = c
		}
	}
	switch {
	case max < 8:
		return protocol.Mode8
	case max < 16:
		return protocol.Mode16
	default:
		return protocol.Mode24
	}
}
