//go:build !linux

package transport

import (
	"fmt"
	"os"
)

// openSerialPort falls back to a plain file handle on platforms where this
// package does not implement termios configuration. The port is opened
// read/write but the caller is responsible for any out-of-band baud-rate
// configuration the OS requires (e.g. via an external stty invocation),
// matching how the reference implementation treats non-Linux hosts as a
// best-effort target.
func openSerialPort(path string, baud int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
