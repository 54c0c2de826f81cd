package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ocupoint/xla/pkg/device"
	"github.com/ocupoint/xla/pkg/protocol"
)

const (
	captureStartedTimeout = 10 * time.Second
	binaryReadTimeout     = 60 * time.Second
)

const captureStartedLine = "CAPTURE_STARTED"

// Notifier receives the externally observable capture events. An Engine
// works fine with a nil Notifier; every call is nil-checked so tests and
// callers that don't care about the event surface can skip wiring one.
type Notifier interface {
	CaptureCompleted(sessionID string, success bool)
	StatusChanged(connected, capturing bool, voltage string)
}

// Engine drives the single-device capture protocol sequence (plan, start
// command, await CAPTURE_STARTED, read and parse the binary payload) over
// one device.Session. It owns that session exclusively for the duration of
// a capture.
type Engine struct {
	session  *device.Session
	notifier Notifier
}

// NewEngine builds an Engine over session. notifier may be nil.
func NewEngine(session *device.Session, notifier Notifier) *Engine {
	return &Engine{session: session, notifier: notifier}
}

func (e *Engine) notifyCompleted(sessionID string, success bool) {
	if e.notifier != nil {
		e.notifier.CaptureCompleted(sessionID, success)
	}
}

// Start validates and runs one capture to completion, populating
// session.CaptureChannels[*].Samples and session.Bursts on success. It
// blocks for the duration of the capture: by the time it returns, the
// caller owns the populated CaptureSession (or, on failure, a session with
// no samples beyond whatever ClearSamples left behind).
//
// The synchronous validation/state-precondition failures (ErrorBadParams,
// ErrorBusy, ErrorHardwareError) are returned directly. Failures during the
// wire sequence itself (ErrorUnexpectedError) are both returned and
// reported through the notifier as captureCompleted{success:false}, since
// an external event subscriber (a UI, an eventbus client) may have already
// been told the capture was accepted.
//
// Start is a convenience wrapping Arm followed immediately by Collect. The
// multi-device coordinator calls them separately, since it must arm every
// slave before writing the master's command.
func (e *Engine) Start(ctx context.Context, session *CaptureSession) ErrorCode {
	armed, code := e.Arm(ctx, session)
	if code != ErrorNone {
		return code
	}
	return e.Collect(ctx, armed)
}

// Armed is a capture accepted by the device (command written,
// CAPTURE_STARTED acknowledged) but not yet collected. The device may
// still be waiting on a physical or bus trigger at this point.
type Armed struct {
	session *CaptureSession
	mode    protocol.Mode
	req     *protocol.CaptureRequest
}

// Arm validates session, transitions the device session to capturing, and
// blocks only long enough to send the start command and receive
// CAPTURE_STARTED -- it does not wait for the trigger condition or read
// any payload. This is the seam the multi-device coordinator uses to arm
// every slave before writing the master's command.
func (e *Engine) Arm(ctx context.Context, session *CaptureSession) (*Armed, ErrorCode) {
	status := e.session.Status()
	if status.Capturing {
		return nil, ErrorBusy
	}
	if !status.Connected {
		return nil, ErrorHardwareError
	}

	mode, req, err := Plan(session, status.Identity)
	if err != nil {
		return nil, ErrorBadParams
	}

	if err := e.session.BeginCapture(); err != nil {
		if errors.Is(err, device.ErrBusy) {
			return nil, ErrorBusy
		}
		return nil, ErrorHardwareError
	}

	tr := e.session.Transport()
	payload := append([]byte{device.CmdStartCapture}, req.Serialize()...)
	if err := tr.Write(protocol.EncodeFrame(payload)); err != nil {
		e.abort(session)
		return nil, ErrorUnexpectedError
	}

	startedCtx, cancel := context.WithTimeout(ctx, captureStartedTimeout)
	line, err := tr.ReadLine(startedCtx)
	cancel()
	if err != nil {
		e.abort(session)
		return nil, ErrorUnexpectedError
	}
	if line != captureStartedLine {
		e.abort(session)
		return nil, ErrorUnexpectedError
	}

	return &Armed{session: session, mode: mode, req: req}, ErrorNone
}

// abort unwinds a capture that failed after BeginCapture succeeded:
// releases the device session and reports a failed completion.
func (e *Engine) abort(session *CaptureSession) {
	session.ClearSamples()
	e.session.EndCapture()
	e.notifyCompleted(session.ID.String(), false)
}

// Collect reads and parses the binary payload for an armed capture,
// populating its CaptureSession and returning the device session to
// connected. It blocks until the device's trigger condition is satisfied
// and the full payload has arrived.
func (e *Engine) Collect(ctx context.Context, armed *Armed) ErrorCode {
	session := armed.session

	success := false
	defer func() {
		e.session.EndCapture()
		e.notifyCompleted(session.ID.String(), success)
	}()

	body, sampleCount, err := e.readPayload(ctx, session, armed.mode, armed.req)
	if err != nil {
		session.ClearSamples()
		return ErrorUnexpectedError
	}

	result, err := Parse(body, armed.mode, len(session.CaptureChannels), sampleCount,
		session.Frequency, session.PreTriggerSamples, session.PostTriggerSamples,
		session.MeasureBursts, session.LoopCount)
	if err != nil {
		session.ClearSamples()
		return ErrorUnexpectedError
	}

	for i, c := range session.CaptureChannels {
		if i < len(result.Channels) {
			c.Samples = result.Channels[i]
		}
	}
	session.Bursts = result.Bursts

	success = true
	return ErrorNone
}

// readPayload reads the 4-byte length header plus the follow-on sample and
// timestamp bytes. On serial devices the expected sample count is the
// request's own pre+post, and a header that reports a different count
// fails the read instead of being parsed. Network devices put the actual
// sample count in the header and it is used as is.
func (e *Engine) readPayload(ctx context.Context, session *CaptureSession, mode protocol.Mode, req *protocol.CaptureRequest) ([]byte, uint32, error) {
	tr := e.session.Transport()

	readCtx, cancel := context.WithTimeout(ctx, binaryReadTimeout)
	defer cancel()

	header, err := tr.ReadBinary(readCtx, 4)
	if err != nil {
		return nil, 0, fmt.Errorf("capture: read payload header: %w", err)
	}

	var sampleCount uint32
	if e.session.Kind() == device.KindNetwork {
		sampleCount = binary.LittleEndian.Uint32(header)
	} else {
		sampleCount = req.PreSamples + req.PostSamples
		if got := binary.LittleEndian.Uint32(header); got != sampleCount {
			return nil, 0, fmt.Errorf("capture: payload header reports %d samples, request asked for %d", got, sampleCount)
		}
	}

	timestampBytes := 0
	if session.MeasureBursts && session.LoopCount > 0 {
		timestampBytes = (session.LoopCount + 2) * 4
	}
	followOn := int(sampleCount)*mode.Divisor() + 1 + timestampBytes

	body, err := tr.ReadBinary(readCtx, followOn)
	if err != nil {
		return nil, 0, fmt.Errorf("capture: read payload body: %w", err)
	}

	return body, sampleCount, nil
}

// Stop cancels a capture in progress on this engine's session.
func (e *Engine) Stop(ctx context.Context) bool {
	return e.session.Stop(ctx)
}
