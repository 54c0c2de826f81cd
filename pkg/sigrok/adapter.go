// Package sigrok implements capture.Provider over an external sigrok-family
// command-line tool instead of the native wire protocol, for third-party
// hardware this product line doesn't speak to directly. It shells out the
// same way the teacher's main.go invokes its PCIe reset script: build an
// argument list, run the subprocess to completion, then pick up whatever
// file it left behind.
package sigrok

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ocupoint/xla/pkg/capture"
	"github.com/ocupoint/xla/pkg/protocol"
)

// Config names the external tool and the identifiers it needs to address
// the third-party device. BinaryPath defaults to "sigrok-cli" when empty.
type Config struct {
	BinaryPath string
	Driver     string
	Conn       string
}

func (c Config) binaryPath() string {
	if c.BinaryPath == "" {
		return "sigrok-cli"
	}
	return c.BinaryPath
}

// Adapter drives one third-party device through the external CLI. It
// implements capture.Provider so callers can swap it in for capture.Engine
// transparently.
type Adapter struct {
	cfg Config

	mu        sync.Mutex
	capturing bool
	cancel    context.CancelFunc
}

// New builds an Adapter over cfg.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

var _ capture.Provider = (*Adapter)(nil)

// Start runs one capture by shelling out to the configured CLI and
// importing its output container into session. It blocks for the duration
// of the subprocess, the same way capture.Engine.Start blocks for the
// duration of the wire sequence.
func (a *Adapter) Start(ctx context.Context, session *capture.CaptureSession) capture.ErrorCode {
	if len(session.CaptureChannels) == 0 {
		return capture.ErrorBadParams
	}
	if a.cfg.Driver == "" || a.cfg.Conn == "" {
		return capture.ErrorBadParams
	}

	a.mu.Lock()
	if a.capturing {
		a.mu.Unlock()
		return capture.ErrorBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.capturing = true
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.capturing = false
		a.cancel = nil
		a.mu.Unlock()
	}()

	outFile, err := os.CreateTemp("", "sigrok-capture-*.csv")
	if err != nil {
		return capture.ErrorUnexpectedError
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	args := a.buildArgs(session, outPath)
	cmd := exec.CommandContext(runCtx, a.cfg.binaryPath(), args...)
	if err := cmd.Run(); err != nil {
		return capture.ErrorHardwareError
	}

	if err := importContainer(outPath, session); err != nil {
		return capture.ErrorUnexpectedError
	}

	return capture.ErrorNone
}

// Stop cancels the subprocess in flight, if any. It is idempotent: calling
// it while no capture is running is a no-op returning success.
func (a *Adapter) Stop(ctx context.Context) bool {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// buildArgs constructs the fixed argument list per the external-CLI
// contract: driver, connection, sample rate, sample count, output file,
// output format, channel list, and an optional trigger spec.
func (a *Adapter) buildArgs(session *capture.CaptureSession, outPath string) []string {
	channels := session.ChannelNumbers()
	csvChannels := ""
	for i, c := range channels {
		if i > 0 {
			csvChannels += ","
		}
		csvChannels += strconv.Itoa(c)
	}

	args := []string{
		"--driver", a.cfg.Driver,
		"--conn", a.cfg.Conn,
		"--config", fmt.Sprintf("samplerate=%d", session.Frequency),
		"--samples", strconv.Itoa(int(session.TotalSamples())),
		"--output-file", outPath,
		"--output-format", "srzip",
		"--channels", csvChannels,
	}

	if spec := triggerSpec(session); spec != "" {
		args = append(args, "--triggers", spec)
	}

	return args
}

// triggerSpec renders session's trigger condition per the CLI contract:
// "c=r"/"c=f" for an Edge trigger, or a comma-separated "i=0|1" list for
// each bit of a Complex/Fast pattern trigger. Blast has no CLI equivalent
// and renders no spec, matching sigrok-family tools which have no burst
// concept.
func triggerSpec(session *capture.CaptureSession) string {
	switch session.TriggerType {
	case protocol.TriggerEdge:
		dir := "r"
		if session.TriggerInverted {
			dir = "f"
		}
		return fmt.Sprintf("%d=%s", session.TriggerChannel, dir)
	case protocol.TriggerComplex, protocol.TriggerFast:
		spec := ""
		for bit := 0; bit < session.TriggerBitCount; bit++ {
			if bit > 0 {
				spec += ","
			}
			value := (session.TriggerPattern >> uint(bit)) & 1
			spec += fmt.Sprintf("%d=%d", session.TriggerChannel+bit, value)
		}
		return spec
	default:
		return ""
	}
}

// importContainer reads the CLI's CSV-like output container -- a header
// row of channel numbers followed by one row per sample, each a 0/1 value
// per channel in header order -- and populates
// session.CaptureChannels[*].Samples by matching header entries back to
// the channel that requested them.
func importContainer(path string, session *capture.CaptureSession) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sigrok: open output container: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("sigrok: read container header: %w", err)
	}

	columnForChannel := make(map[int]int, len(header))
	for col, h := range header {
		n, err := strconv.Atoi(h)
		if err != nil {
			return fmt.Errorf("sigrok: malformed channel header %q: %w", h, err)
		}
		columnForChannel[n] = col
	}

	samples := make([][]byte, len(header))
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		for col, v := range row {
			if col >= len(samples) {
				break
			}
			b := byte(0)
			if v == "1" {
				b = 1
			}
			samples[col] = append(samples[col], b)
		}
	}

	for _, ch := range session.CaptureChannels {
		col, ok := columnForChannel[ch.Number]
		if !ok {
			return fmt.Errorf("sigrok: channel %d missing from container", ch.Number)
		}
		ch.Samples = samples[col]
	}

	return nil
}
