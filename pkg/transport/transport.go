// Package transport provides a unified byte-stream abstraction over a
// serial port or a TCP socket, with a line reader and a binary reader
// attachable on top of the same underlying connection.
package transport

import (
	"context"
	"fmt"
	"regexp"
)

// Transport is the unified read/write byte stream exposed by both the
// serial and TCP implementations.
type Transport interface {
	// Open establishes the underlying connection.
	Open(ctx context.Context) error
	// Close tears the connection down.
	Close() error
	// Write sends raw bytes (already frame-encoded, where framing applies).
	Write(data []byte) error
	// ReadLine blocks for the next newline-delimited line.
	ReadLine(ctx context.Context) (string, error)
	// ReadBinary blocks until exactly n bytes have been read.
	ReadBinary(ctx context.Context, n int) ([]byte, error)
	// Reconnect tears down and reopens the connection with the same
	// parameters, re-attaching the line reader, without a fresh handshake.
	Reconnect(ctx context.Context) error
}

// tcpConnStringPattern matches "ddd.ddd.ddd.ddd:ddd" connection strings.
var tcpConnStringPattern = regexp.MustCompile(`^([0-9]+\.[0-9]+\.[0-9]+\.[0-9]+):([0-9]+)$`)

// ParseConnectionString classifies conn as either a TCP endpoint (returning
// the host and numeric port) or a serial device path. An empty connection
// string is rejected outright, matching the construction-time error kind in
// the error handling design.
func ParseConnectionString(conn string) (host string, port int, isTCP bool, err error) {
	if conn == "" {
		return "", 0, false, fmt.Errorf("transport: empty connection string")
	}

	m := tcpConnStringPattern.FindStringSubmatch(conn)
	if m == nil {
		return "", 0, false, nil
	}

	p := 0
	for _, c := range m[2] {
		p = p*10 + int(c-'0')
	}
	if p < 1 || p > 65535 {
		return "", 0, false, fmt.Errorf("transport: port %d out of range [1,65535]", p)
	}

	return m[1], p, true, nil
}

// New builds the right Transport implementation for conn: a TCPTransport for
// an IPv4:port string, a SerialTransport otherwise.
func New(conn string) (Transport, error) {
	host, port, isTCP, err := ParseConnectionString(conn)
	if err != nil {
		return nil, err
	}
	if isTCP {
		return NewTCPTransport(host, port), nil
	}
	return NewSerialTransport(conn, defaultBaud), nil
}

const defaultBaud = 115200
