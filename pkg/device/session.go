// Package device implements the device handshake, identity parsing, and the
// out-of-band command set (voltage query, network config, bootloader entry,
// stop) on top of a transport.Transport. It owns the {connected, capturing}
// state machine; the capture protocol sequence itself (write request, await
// CAPTURE_STARTED, read the binary payload) lives in package capture, which
// composes a Session.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocupoint/xla/pkg/protocol"
	"github.com/ocupoint/xla/pkg/transport"
)

// Out-of-band command codes, per the wire protocol command table.
const (
	CmdQueryIdentity    byte = 0x00
	CmdStartCapture     byte = 0x01
	CmdSetNetworkConfig byte = 0x02
	CmdQueryVoltage     byte = 0x03
	CmdEnterBootloader  byte = 0x04
	CmdStopCapture      byte = 0xFF
)

// Kind distinguishes serial from network devices, since a few out-of-band
// commands behave differently per transport (voltage query, network
// config).
type Kind int

const (
	KindSerial Kind = iota
	KindNetwork
)

// synthesizedSerialVoltage is the fixed voltage string serial devices report
// in place of a real voltage-sense out-of-band query.
const synthesizedSerialVoltage = "3.3V"

const (
	handshakeTimeout      = 10 * time.Second
	voltageTimeout        = 5 * time.Second
	networkConfigTimeout  = 5 * time.Second
	bootloaderTimeout     = 1 * time.Second
)

// Session owns a transport exclusively for its lifetime and tracks the
// {connected, capturing, identity} state machine described in the wire
// protocol's device session design.
type Session struct {
	tr   transport.Transport
	kind Kind

	mu        sync.Mutex
	connected bool
	capturing bool
	identity  Identity
}

// NewSession builds a session over tr. kind determines which out-of-band
// commands are accepted.
func NewSession(tr transport.Transport, kind Kind) *Session {
	return &Session{tr: tr, kind: kind}
}

// Status is a point-in-time snapshot of session state, returned to external
// readers instead of exposing the raw mutex-guarded fields.
type Status struct {
	Connected bool
	Capturing bool
	Identity  Identity
}

// Status returns a snapshot of the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Connected: s.connected, Capturing: s.capturing, Identity: s.identity}
}

// Connect opens the transport and performs the handshake: a framed query-
// identity command, followed by exactly five lines read within
// handshakeTimeout. A failed handshake leaves the session disconnected.
func (s *Session) Connect(ctx context.Context) (Identity, error) {
	if err := s.tr.Open(ctx); err != nil {
		return Identity{}, fmt.Errorf("device: open transport: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.tr.Write(protocol.EncodeFrame([]byte{CmdQueryIdentity})); err != nil {
		return Identity{}, &HandshakeError{Err: fmt.Errorf("write query-identity command: %w", err)}
	}

	var lines [5]string
	for i := range lines {
		line, err := s.tr.ReadLine(hctx)
		if err != nil {
			return Identity{}, &HandshakeError{Err: fmt.Errorf("read handshake line %d: %w", i+1, err)}
		}
		lines[i] = line
	}

	id, err := parseIdentity(lines)
	if err != nil {
		return Identity{}, &HandshakeError{Err: err}
	}

	s.mu.Lock()
	s.connected = true
	s.capturing = false
	s.identity = id
	s.mu.Unlock()

	return id, nil
}

// beginCapture transitions connected -> capturing, or reports why it can't.
func (s *Session) beginCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	if s.capturing {
		return ErrBusy
	}
	s.capturing = true
	return nil
}

// endCapture transitions capturing -> connected.
func (s *Session) endCapture() {
	s.mu.Lock()
	s.capturing = false
	s.mu.Unlock()
}

// BeginCapture is exported for package capture's engine to claim the
// session before driving the capture protocol sequence.
func (s *Session) BeginCapture() error { return s.beginCapture() }

// EndCapture is exported for package capture's engine to release the
// session once a capture completes or fails.
func (s *Session) EndCapture() { s.endCapture() }

// Transport exposes the underlying transport for package capture's engine,
// which needs to write the framed start-capture command and read the
// binary payload directly.
func (s *Session) Transport() transport.Transport { return s.tr }

// Kind reports whether this session is serial or network.
func (s *Session) Kind() Kind { return s.kind }

// AwaitLine reads a single line within timeout, wrapping the transport's
// context-based deadline.
func (s *Session) AwaitLine(ctx context.Context, timeout time.Duration) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.tr.ReadLine(lctx)
}

// QueryVoltage issues the voltage out-of-band command. Serial devices never
// touch the wire: they report a fixed synthetic voltage. Network devices
// query over the wire and return "TIMEOUT" if no response arrives within
// voltageTimeout.
func (s *Session) QueryVoltage(ctx context.Context) (string, error) {
	if s.kind == KindSerial {
		return synthesizedSerialVoltage, nil
	}

	if err := s.tr.Write(protocol.EncodeFrame([]byte{CmdQueryVoltage})); err != nil {
		return "", fmt.Errorf("device: write query-voltage command: %w", err)
	}

	line, err := s.AwaitLine(ctx, voltageTimeout)
	if err != nil {
		return "TIMEOUT", nil
	}
	return line, nil
}

// SetNetworkConfig issues the set-network-config out-of-band command.
// Network devices always reject this.
func (s *Session) SetNetworkConfig(ctx context.Context, cfg *protocol.NetworkConfig) error {
	if s.kind == KindNetwork {
		return fmt.Errorf("device: network devices do not accept network configuration")
	}

	payload := append([]byte{CmdSetNetworkConfig}, cfg.Serialize()...)
	if err := s.tr.Write(protocol.EncodeFrame(payload)); err != nil {
		return fmt.Errorf("device: write set-network-config command: %w", err)
	}

	line, err := s.AwaitLine(ctx, networkConfigTimeout)
	if err != nil {
		return fmt.Errorf("device: set-network-config response: %w", err)
	}
	if line != "SETTINGS_SAVED" {
		return fmt.Errorf("device: unexpected set-network-config response %q", line)
	}
	return nil
}

// EnterBootloader issues the enter-bootloader out-of-band command.
func (s *Session) EnterBootloader(ctx context.Context) error {
	if err := s.tr.Write(protocol.EncodeFrame([]byte{CmdEnterBootloader})); err != nil {
		return fmt.Errorf("device: write enter-bootloader command: %w", err)
	}

	line, err := s.AwaitLine(ctx, bootloaderTimeout)
	if err != nil {
		return fmt.Errorf("device: enter-bootloader response: %w", err)
	}
	if line != "RESTARTING_BOOTLOADER" {
		return fmt.Errorf("device: unexpected enter-bootloader response %q", line)
	}
	return nil
}

// Stop is cancellation for a capture in progress. It writes the raw
// unframed stop byte, waits for the device to settle, then reconnects to
// resync the stream. It is idempotent: calling it while not capturing is a
// no-op that still returns true, and it always returns the session to
// connected even if the write itself fails.
func (s *Session) Stop(ctx context.Context) bool {
	s.mu.Lock()
	wasCapturing := s.capturing
	s.mu.Unlock()

	if !wasCapturing {
		return true
	}

	_ = s.tr.Write([]byte{CmdStopCapture})

	select {
	case <-time.After(postStopWaitDuration()):
	case <-ctx.Done():
	}

	_ = s.tr.Reconnect(ctx)

	s.endCapture()
	return true
}

// postStopWaitDuration is the fixed settling delay Stop waits between
// writing the stop byte and reconnecting.
func postStopWaitDuration() time.Duration {
	return 2 * time.Second
}
