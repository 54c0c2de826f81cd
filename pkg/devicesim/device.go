// Package devicesim is a simulated acquisition device: it speaks the exact
// wire protocol a real device's firmware speaks (handshake, out-of-band
// commands, capture sequence) over any io.ReadWriter, so the rest of this
// module can be exercised end to end without real hardware. Waveform
// generation is adapted from this product line's existing signal
// simulator, which synthesizes deterministic sine-derived sample streams
// for the same purpose on the raw DMA path.
package devicesim

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ocupoint/xla/pkg/device"
	"github.com/ocupoint/xla/pkg/protocol"
)

// Config describes the identity a simulated device reports during the
// handshake.
type Config struct {
	VersionString   string
	MaxFrequency    uint32
	BlastFrequency  uint32
	BufferSizeBytes uint32
	ChannelCount    int
}

// DefaultConfig matches the identity used throughout this module's tests:
// a 24-channel device with a 256Ki-sample buffer.
func DefaultConfig() Config {
	return Config{
		VersionString:   "V1_0",
		MaxFrequency:    100_000_000,
		BlastFrequency:  200_000_000,
		BufferSizeBytes: 262144,
		ChannelCount:    24,
	}
}

// Device is a simulated acquisition device. It is stateless between Serve
// calls beyond its reported Config, mirroring real hardware that forgets
// everything but its identity across reconnects.
type Device struct {
	cfg Config
}

// New builds a Device reporting cfg during the handshake.
func New(cfg Config) *Device {
	return &Device{cfg: cfg}
}

// Serve drives one connection to completion: identity queries, out-of-band
// commands, and capture sequences, until conn is closed or the bootloader
// command is received. It blocks for the lifetime of the connection, the
// same way the existing raw-DMA simulator blocks streaming data forever.
func (d *Device) Serve(conn io.ReadWriter) error {
	fr := protocol.NewFrameReader(conn)
	w := bufio.NewWriter(conn)

	for {
		body, err := fr.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("devicesim: read command frame: %w", err)
		}
		if len(body) == 0 {
			continue
		}

		switch body[0] {
		case device.CmdQueryIdentity:
			if err := d.writeIdentity(w); err != nil {
				return err
			}
		case device.CmdStartCapture:
			req, err := protocol.ParseCaptureRequest(body[1:])
			if err != nil {
				return fmt.Errorf("devicesim: malformed capture request: %w", err)
			}
			if err := d.runCapture(w, req); err != nil {
				return err
			}
		case device.CmdSetNetworkConfig:
			if err := writeLine(w, "SETTINGS_SAVED"); err != nil {
				return err
			}
		case device.CmdQueryVoltage:
			if err := writeLine(w, "3.3V"); err != nil {
				return err
			}
		case device.CmdEnterBootloader:
			return writeLine(w, "RESTARTING_BOOTLOADER")
		default:
			return fmt.Errorf("devicesim: unknown command 0x%02x", body[0])
		}
	}
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (d *Device) writeIdentity(w *bufio.Writer) error {
	lines := []string{
		d.cfg.VersionString,
		fmt.Sprintf("FREQ:%d", d.cfg.MaxFrequency),
		fmt.Sprintf("BLASTFREQ:%d", d.cfg.BlastFrequency),
		fmt.Sprintf("BUFFER:%d", d.cfg.BufferSizeBytes),
		fmt.Sprintf("CHANNELS:%d", d.cfg.ChannelCount),
	}
	for _, l := range lines {
		if err := writeLine(w, l); err != nil {
			return err
		}
	}
	return nil
}

// runCapture plays out the capture protocol sequence from the device's
// side: CAPTURE_STARTED, then the binary payload built from a synthesized
// waveform. Burst timestamps, when requested, are evenly spaced with no
// injected jitter (see synthesizeBurstTimestamps). At any frequency up to
// 200 MHz that spacing is shorter than one burst in device ticks, so the
// parser's jitter-correction branch runs for every timestamp pair.
func (d *Device) runCapture(w *bufio.Writer, req *protocol.CaptureRequest) error {
	if err := writeLine(w, "CAPTURE_STARTED"); err != nil {
		return err
	}

	totalSamples := req.PreSamples + req.PostSamples
	mode := req.CaptureMode
	channelNumbers := make([]int, int(req.ChannelCount))
	for i := range channelNumbers {
		channelNumbers[i] = int(req.Channels[i])
	}

	packed := synthesizeWaveform(totalSamples, channelNumbers)

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, totalSamples)
	if _, err := w.Write(header); err != nil {
		return err
	}

	wordBuf := make([]byte, mode.Divisor())
	for _, word := range packed {
		switch mode {
		case protocol.Mode8:
			wordBuf[0] = byte(word)
		case protocol.Mode16:
			binary.LittleEndian.PutUint16(wordBuf, uint16(word))
		default:
			binary.LittleEndian.PutUint32(wordBuf, word)
		}
		if _, err := w.Write(wordBuf); err != nil {
			return err
		}
	}

	// Timestamp-length indicator byte: always present, value unused by the
	// parser but required to keep the payload framing in sync.
	if err := w.WriteByte(0x01); err != nil {
		return err
	}

	if req.Measure == 1 && req.LoopCount > 0 {
		timestamps := synthesizeBurstTimestamps(int(req.LoopCount)+2, req.PostSamples)
		tsBuf := make([]byte, 4)
		for _, t := range timestamps {
			binary.LittleEndian.PutUint32(tsBuf, t)
			if _, err := w.Write(tsBuf); err != nil {
				return err
			}
		}
	}

	return w.Flush()
}

// synthesizeWaveform produces one packed word per sample, each channel
// carrying an independent phase-shifted square wave derived from a cosine,
// the same deterministic-signal approach the DMA-path simulator uses.
func synthesizeWaveform(sampleCount uint32, channelNumbers []int) []uint32 {
	packed := make([]uint32, sampleCount)
	const cyclesOverCapture = 3.0

	for i := uint32(0); i < sampleCount; i++ {
		var word uint32
		phase := 2 * math.Pi * cyclesOverCapture * float64(i) / float64(sampleCount)
		for bit, ch := range channelNumbers {
			chPhase := phase + float64(ch)*(math.Pi/8)
			if math.Cos(chPhase) >= 0 {
				word |= 1 << uint(bit)
			}
		}
		packed[i] = word
	}
	return packed
}

// synthesizeBurstTimestamps produces a monotonically decrementing raw
// SysTick-style counter sequence (before normalization) so the parser's
// wrap/jitter correction has well-formed, evenly spaced input to work
// from: consecutive timestamps are exactly postSamples device ticks apart,
// with no injected jitter.
func synthesizeBurstTimestamps(count int, postSamples uint32) []uint32 {
	const ticksPerSample = 1 // arbitrary fixed device-tick scale for the simulator
	ticksPerBurst := uint32(postSamples) * ticksPerSample

	out := make([]uint32, count)
	var tick uint32
	for i := range out {
		raw := 0x00FFFFFF - (tick & 0x00FFFFFF)
		out[i] = raw
		tick += ticksPerBurst
	}
	return out
}
