package capture

import (
	"encoding/binary"
	"fmt"

	"github.com/ocupoint/xla/pkg/protocol"
)

// ParseResult is the decoded form of one capture payload: a dense 0/1
// sample array per requested channel (in request order) plus, when burst
// timestamps were present, the reconstructed burst list.
type ParseResult struct {
	Channels [][]byte // indexed by request order, not channel number
	Bursts   []BurstInfo
}

// Parse decodes one binary capture payload (everything after the 4-byte
// length header that the transport has already stripped) into per-channel
// sample arrays and, where present, burst timing.
//
// channelCount is the number of requested channels (request order);
// sampleCount is the number of packed sample words; frequency, pre, and
// post describe the originating request and are needed to reconstruct
// burst boundaries; measureBursts and loopCount determine how many
// trailing timestamp words follow the sample block.
func Parse(body []byte, mode protocol.Mode, channelCount int, sampleCount uint32, frequency, pre, post uint32, measureBursts bool, loopCount int) (ParseResult, error) {
	divisor := mode.Divisor()
	sampleBytes := int(sampleCount) * divisor
	if len(body) < sampleBytes+1 {
		return ParseResult{}, fmt.Errorf("capture: payload too short for %d samples at divisor %d: have %d bytes", sampleCount, divisor, len(body))
	}

	packed := make([]uint32, sampleCount)
	for i := 0; i < int(sampleCount); i++ {
		off := i * divisor
		word := body[off : off+divisor]
		switch mode {
		case protocol.Mode8:
			packed[i] = uint32(word[0])
		case protocol.Mode16:
			packed[i] = uint32(binary.LittleEndian.Uint16(word))
		default:
			packed[i] = binary.LittleEndian.Uint32(word) & 0x00FFFFFF
		}
	}

	channels := make([][]byte, channelCount)
	for k := range channels {
		samples := make([]byte, sampleCount)
		for i, word := range packed {
			samples[i] = byte((word >> uint(k)) & 1)
		}
		channels[k] = samples
	}

	// body[sampleBytes] is the timestamp-length indicator byte; its value
	// is not otherwise consulted, per the fixed timestampCount formula.
	rest := body[sampleBytes+1:]

	timestampCount := 0
	if measureBursts && loopCount > 0 {
		timestampCount = loopCount + 2
	}
	if len(rest) < timestampCount*4 {
		return ParseResult{}, fmt.Errorf("capture: payload too short for %d timestamps: have %d bytes", timestampCount, len(rest))
	}

	var bursts []BurstInfo
	if timestampCount >= 3 {
		bursts = reconstructBursts(rest, timestampCount, frequency, pre, post)
	}

	return ParseResult{Channels: channels, Bursts: bursts}, nil
}

// normalizeTimestamp keeps the high wrap-tag byte and inverts the
// decrementing low 24 bits of a raw SysTick sample into an increasing
// counter.
func normalizeTimestamp(t uint32) uint32 {
	return (t & 0xFF000000) | (0x00FFFFFF - (t & 0x00FFFFFF))
}

func reconstructBursts(rest []byte, timestampCount int, frequency, pre, post uint32) []BurstInfo {
	raw := make([]uint32, timestampCount)
	for i := 0; i < timestampCount; i++ {
		raw[i] = binary.LittleEndian.Uint32(rest[i*4 : i*4+4])
	}

	ts := make([]uint64, timestampCount)
	for i, t := range raw {
		ts[i] = uint64(normalizeTimestamp(t))
	}

	nsPerSample := 1e9 / float64(frequency)
	ticksPerSample := nsPerSample / 5
	nsPerBurst := nsPerSample * float64(post)
	ticksPerBurst := nsPerBurst / 5

	delays := make([]int64, timestampCount-1)
	for i := 1; i < timestampCount; i++ {
		if ts[i] < ts[i-1] {
			ts[i] += 1 << 32
		}
		top := ts[i]

		delta := top - ts[i-1]
		if float64(delta) <= ticksPerBurst {
			diff := uint64(ticksPerBurst - float64(delta) + 2*ticksPerSample)
			for j := i; j < timestampCount; j++ {
				ts[j] += diff
			}
		}

		delays[i-1] = (int64(top) - int64(ts[i-1]) - int64(ticksPerBurst)) * 5
	}

	bursts := make([]BurstInfo, timestampCount-1)
	for i := 1; i <= timestampCount-1; i++ {
		b := BurstInfo{
			SampleEnd: uint64(pre) + uint64(post)*uint64(i),
		}
		if i == 1 {
			b.SampleStart = uint64(pre)
			b.TimeGapNanos = 0
			b.SampleGap = 0
		} else {
			b.SampleStart = uint64(pre) + uint64(post)*uint64(i-1)
			b.TimeGapNanos = delays[i-1]
			gap := b.TimeGapNanos
			if gap < 0 {
				gap = 0
			}
			b.SampleGap = uint64(float64(gap) / nsPerSample)
		}
		bursts[i-1] = b
	}

	return bursts
}
