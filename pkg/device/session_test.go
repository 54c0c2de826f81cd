package device

import (
	"context"
	"io"
	"testing"
)

type fakeTransport struct {
	lines         []string
	writes        [][]byte
	reconnectCall int
}

func (f *fakeTransport) Open(ctx context.Context) error      { return nil }
func (f *fakeTransport) Close() error                        { return nil }
func (f *fakeTransport) Reconnect(ctx context.Context) error { f.reconnectCall++; return nil }

func (f *fakeTransport) Write(data []byte) error {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) ReadLine(ctx context.Context) (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeTransport) ReadBinary(ctx context.Context, n int) ([]byte, error) {
	return make([]byte, n), nil
}

func validHandshakeLines() []string {
	return []string{
		"V1_0",
		"FREQ:100000000",
		"BLASTFREQ:200000000",
		"BUFFER:262144",
		"CHANNELS:24",
	}
}

func TestSessionConnectSuccess(t *testing.T) {
	tr := &fakeTransport{lines: validHandshakeLines()}
	s := NewSession(tr, KindNetwork)

	id, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ChannelCount != 24 {
		t.Errorf("ChannelCount = %d, want 24", id.ChannelCount)
	}
	if !s.Status().Connected {
		t.Error("expected session to be connected")
	}
}

func TestSessionConnectFailureLeavesDisconnected(t *testing.T) {
	tr := &fakeTransport{lines: []string{"V1_0", "FREQ:bad", "BLASTFREQ:1", "BUFFER:1", "CHANNELS:1"}}
	s := NewSession(tr, KindNetwork)

	if _, err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}
	if s.Status().Connected {
		t.Error("session must stay disconnected after a failed handshake")
	}
}

func TestSessionBeginEndCapture(t *testing.T) {
	tr := &fakeTransport{lines: validHandshakeLines()}
	s := NewSession(tr, KindNetwork)
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if err := s.BeginCapture(); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	if err := s.BeginCapture(); err != ErrBusy {
		t.Errorf("second BeginCapture = %v, want ErrBusy", err)
	}

	s.EndCapture()
	if err := s.BeginCapture(); err != nil {
		t.Errorf("BeginCapture after EndCapture: %v", err)
	}
}

func TestSessionBeginCaptureRequiresConnection(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSession(tr, KindNetwork)
	if err := s.BeginCapture(); err != ErrNotConnected {
		t.Errorf("BeginCapture on disconnected session = %v, want ErrNotConnected", err)
	}
}

// TestSessionStopIsIdempotent covers scenario F: Stop while not capturing
// is a no-op that still reports success, and Stop while capturing writes
// the raw stop byte and reconnects.
func TestSessionStopIsIdempotent(t *testing.T) {
	tr := &fakeTransport{lines: validHandshakeLines()}
	s := NewSession(tr, KindNetwork)
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if ok := s.Stop(context.Background()); !ok {
		t.Error("Stop while not capturing must report success")
	}
	if tr.reconnectCall != 0 {
		t.Errorf("Stop while not capturing must not reconnect, got %d calls", tr.reconnectCall)
	}

	if err := s.BeginCapture(); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the real 2s wait in this test
	if ok := s.Stop(ctx); !ok {
		t.Error("Stop while capturing must report success")
	}
	if tr.reconnectCall != 1 {
		t.Errorf("Stop while capturing must reconnect once, got %d calls", tr.reconnectCall)
	}
	if s.Status().Capturing {
		t.Error("Stop must return the session to non-capturing")
	}
	if len(tr.writes) == 0 || string(tr.writes[len(tr.writes)-1]) != string([]byte{CmdStopCapture}) {
		t.Error("Stop must write the raw unframed stop byte")
	}
}
