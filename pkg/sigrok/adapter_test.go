package sigrok

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocupoint/xla/pkg/capture"
)

// writeFakeCLI drops a tiny shell script standing in for sigrok-cli: it
// locates --output-file in its own argument list and writes a fixed CSV
// container there (a "0,1" channel header row, then four sample rows),
// mirroring how a real tool would populate the file this
// adapter reads back.
func writeFakeCLI(t *testing.T) string {
	t.Helper()

	script := `#!/bin/sh
out=""
while [ "$#" -gt 0 ]; do
  if [ "$1" = "--output-file" ]; then
    out="$2"
  fi
  shift
done
printf '0,1\n0,1\n1,0\n0,1\n1,1\n' > "$out"
`
	path := filepath.Join(t.TempDir(), "fake-sigrok-cli.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake CLI: %v", err)
	}
	return path
}

func TestAdapterStartImportsContainer(t *testing.T) {
	bin := writeFakeCLI(t)
	a := New(Config{BinaryPath: bin, Driver: "fx2lafw", Conn: "usb"})

	session := capture.NewCaptureSession()
	session.AddChannel(0, "ch0")
	session.AddChannel(1, "ch1")
	session.Frequency = 1_000_000
	session.PreTriggerSamples = 2
	session.PostTriggerSamples = 2
	session.TriggerType = capture.TriggerEdge

	code := a.Start(context.Background(), session)
	if code != capture.ErrorNone {
		t.Fatalf("Start returned %v, want ErrorNone", code)
	}

	want := [][]byte{{0, 1, 0, 1}, {1, 0, 1, 1}}
	for i, ch := range session.CaptureChannels {
		if len(ch.Samples) != len(want[i]) {
			t.Fatalf("channel %d samples = %v, want %v", ch.Number, ch.Samples, want[i])
		}
		for j, s := range ch.Samples {
			if s != want[i][j] {
				t.Errorf("channel %d sample %d = %d, want %d", ch.Number, j, s, want[i][j])
			}
		}
	}
}

func TestAdapterStartRejectsMissingConfig(t *testing.T) {
	a := New(Config{})

	session := capture.NewCaptureSession()
	session.AddChannel(0, "ch0")

	if code := a.Start(context.Background(), session); code != capture.ErrorBadParams {
		t.Errorf("Start with no Driver/Conn = %v, want ErrorBadParams", code)
	}
}

func TestAdapterStartRejectsNoChannels(t *testing.T) {
	a := New(Config{BinaryPath: "unused", Driver: "fx2lafw", Conn: "usb"})
	session := capture.NewCaptureSession()

	if code := a.Start(context.Background(), session); code != capture.ErrorBadParams {
		t.Errorf("Start with no channels = %v, want ErrorBadParams", code)
	}
}

func TestAdapterStopIsIdempotent(t *testing.T) {
	a := New(Config{BinaryPath: "unused", Driver: "fx2lafw", Conn: "usb"})
	if !a.Stop(context.Background()) {
		t.Error("Stop on idle adapter should return true")
	}
}
