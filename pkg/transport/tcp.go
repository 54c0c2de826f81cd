package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ocupoint/xla/pkg/protocol"
)

// TCPTransport speaks the framed protocol over a plain TCP socket.
type TCPTransport struct {
	host string
	port int

	mu    sync.Mutex
	conn  net.Conn
	lines *protocol.LineReader
	bin   *protocol.BinaryReader
}

// NewTCPTransport builds a transport targeting host:port. The connection is
// not opened until Open is called.
func NewTCPTransport(host string, port int) *TCPTransport {
	return &TCPTransport{host: host, port: port}
}

func (t *TCPTransport) addr() string {
	return fmt.Sprintf("%s:%d", t.host, t.port)
}

// Open dials the TCP endpoint and attaches a line reader for handshake and
// status responses.
func (t *TCPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr())
	if err != nil {
		return fmt.Errorf("transport: tcp dial %s: %w", t.addr(), err)
	}

	t.conn = conn
	t.lines = protocol.NewLineReader(conn)
	t.bin = protocol.NewBinaryReader(conn)
	return nil
}

// Close tears down the TCP connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.lines = nil
	t.bin = nil
	return err
}

// Write sends data verbatim over the socket.
func (t *TCPTransport) Write(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport: write on closed tcp connection")
	}
	_, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf("transport: tcp write: %w", err)
	}
	return nil
}

// ReadLine reads the next newline-delimited line, honoring ctx's deadline if
// the underlying connection supports SetReadDeadline.
func (t *TCPTransport) ReadLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	conn, lr := t.conn, t.lines
	t.mu.Unlock()

	if conn == nil || lr == nil {
		return "", fmt.Errorf("transport: read on closed tcp connection")
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
		defer conn.SetReadDeadline(time.Time{})
	}
	line, err := lr.ReadLine()
	if err != nil {
		return "", fmt.Errorf("transport: tcp read line: %w", err)
	}
	return line, nil
}

// ReadBinary reads exactly n bytes from the raw binary stream.
func (t *TCPTransport) ReadBinary(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	conn, br := t.conn, t.bin
	t.mu.Unlock()

	if conn == nil || br == nil {
		return nil, fmt.Errorf("transport: read on closed tcp connection")
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
		defer conn.SetReadDeadline(time.Time{})
	}
	data, err := br.ReadExactly(n)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp read binary: %w", err)
	}
	return data, nil
}

// Reconnect closes and reopens the socket with the same host/port, without
// performing a fresh protocol handshake.
func (t *TCPTransport) Reconnect(ctx context.Context) error {
	_ = t.Close()
	return t.Open(ctx)
}
