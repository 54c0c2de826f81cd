package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ocupoint/xla/pkg/protocol"
)

// SerialTransport speaks the framed protocol over a serial device,
// configured for raw 8N1 mode at a fixed baud rate.
type SerialTransport struct {
	path string
	baud int

	mu    sync.Mutex
	port  io.ReadWriteCloser
	lines *protocol.LineReader
	bin   *protocol.BinaryReader
}

// NewSerialTransport builds a transport targeting the given device path
// (e.g. "/dev/ttyACM0"). The port is not opened until Open is called.
func NewSerialTransport(path string, baud int) *SerialTransport {
	return &SerialTransport{path: path, baud: baud}
}

// Open opens and configures the serial device, attaching a line reader.
func (s *SerialTransport) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	port, err := openSerialPort(s.path, s.baud)
	if err != nil {
		return fmt.Errorf("transport: open serial %s: %w", s.path, err)
	}

	s.port = port
	s.lines = protocol.NewLineReader(port)
	s.bin = protocol.NewBinaryReader(port)
	return nil
}

// Close releases the serial device.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.lines = nil
	s.bin = nil
	return err
}

// Write sends data verbatim over the serial device.
func (s *SerialTransport) Write(data []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return fmt.Errorf("transport: write on closed serial port")
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	return nil
}

// ReadLine reads the next newline-delimited line. Serial ports have no
// portable read-deadline primitive in this implementation, so a context
// cancellation races the blocking read in a goroutine; the read itself
// keeps running to completion against the device (it will be abandoned
// along with the port on the next Close/Reconnect).
func (s *SerialTransport) ReadLine(ctx context.Context) (string, error) {
	s.mu.Lock()
	lr := s.lines
	s.mu.Unlock()

	if lr == nil {
		return "", fmt.Errorf("transport: read on closed serial port")
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := lr.ReadLine()
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("transport: serial read line: %w", r.err)
		}
		return r.line, nil
	case <-ctx.Done():
		return "", fmt.Errorf("transport: serial read line: %w", ctx.Err())
	}
}

// ReadBinary reads exactly n bytes from the raw binary stream, subject to
// the same cancellation behavior as ReadLine.
func (s *SerialTransport) ReadBinary(ctx context.Context, n int) ([]byte, error) {
	s.mu.Lock()
	br := s.bin
	s.mu.Unlock()

	if br == nil {
		return nil, fmt.Errorf("transport: read on closed serial port")
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := br.ReadExactly(n)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("transport: serial read binary: %w", r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("transport: serial read binary: %w", ctx.Err())
	}
}

// Reconnect closes and reopens the port with the same path/baud, without a
// fresh protocol handshake.
func (s *SerialTransport) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.Open(ctx)
}

// postStopWait is the fixed settling delay between writing a raw stop byte
// and reconnecting. Nothing in this package reads it; device.Session.Stop
// waits the same 2s through its own postStopWaitDuration.
const postStopWait = 2 * time.Second
