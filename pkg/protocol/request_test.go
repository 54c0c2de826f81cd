package protocol

import (
	"encoding/binary"
	"testing"

	"pgregory.net/rapid"
)

// TestCaptureRequestEdgeExample is scenario A from spec section 8.
func TestCaptureRequestEdgeExample(t *testing.T) {
	req := &CaptureRequest{
		TriggerType:     TriggerEdge,
		Trigger:         0,
		InvertedOrCount: 0,
		Channels:        [maxChannelsField]byte{0: 0, 1: 1},
		ChannelCount:    2,
		Frequency:       24_000_000,
		PreSamples:      1000,
		PostSamples:     9000,
		CaptureMode:     Mode8,
	}

	buf := req.Serialize()
	if len(buf) != 45 {
		t.Fatalf("expected 45 bytes, got %d", len(buf))
	}

	for i, want := range []byte{0, 0, 0} {
		if buf[i] != want {
			t.Errorf("byte %d = %d, want %d", i, buf[i], want)
		}
	}
	if buf[5] != 0 || buf[6] != 1 {
		t.Errorf("channel list bytes 5..6 = %d,%d, want 0,1", buf[5], buf[6])
	}
	if buf[29] != 2 {
		t.Errorf("channelCount byte = %d, want 2", buf[29])
	}
	if got := binary.LittleEndian.Uint32(buf[30:34]); got != 24_000_000 {
		t.Errorf("frequency = %d, want 24000000", got)
	}
	if buf[44] != 0 {
		t.Errorf("captureMode byte = %d, want 0 (M8)", buf[44])
	}
}

// TestRequestSerializeLengthProperty is spec section 8 property 3.
func TestRequestSerializeLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := &CaptureRequest{
			TriggerType:     TriggerType(rapid.IntRange(0, 3).Draw(t, "triggerType")),
			Trigger:         byte(rapid.IntRange(0, 24).Draw(t, "trigger")),
			InvertedOrCount: byte(rapid.IntRange(0, 255).Draw(t, "invertedOrCount")),
			TriggerValue:    uint16(rapid.IntRange(0, 65535).Draw(t, "triggerValue")),
			ChannelCount:    byte(rapid.IntRange(0, 24).Draw(t, "channelCount")),
			Frequency:       uint32(rapid.IntRange(0, 1<<31).Draw(t, "frequency")),
			PreSamples:      uint32(rapid.IntRange(0, 1<<31).Draw(t, "pre")),
			PostSamples:     uint32(rapid.IntRange(0, 1<<31).Draw(t, "post")),
			LoopCount:       byte(rapid.IntRange(0, 255).Draw(t, "loop")),
			Measure:         byte(rapid.IntRange(0, 1).Draw(t, "measure")),
			CaptureMode:     Mode(rapid.IntRange(0, 2).Draw(t, "mode")),
		}
		if len(req.Serialize()) != 45 {
			t.Fatalf("CaptureRequest.Serialize() length != 45")
		}
	})
}

func TestNetworkConfigSerializeLength(t *testing.T) {
	cfg := &NetworkConfig{
		APName:   "my-access-point",
		Password: "hunter2",
		Address:  "192.168.1.50",
		Port:     8001,
	}
	buf := cfg.Serialize()
	if len(buf) != 115 {
		t.Fatalf("expected 115 bytes, got %d", len(buf))
	}
	if got := binary.LittleEndian.Uint16(buf[113:115]); got != 8001 {
		t.Errorf("port = %d, want 8001", got)
	}
}

func TestNetworkConfigTruncatesOversizeFields(t *testing.T) {
	cfg := &NetworkConfig{
		APName:   stringOfLen(100),
		Password: stringOfLen(100),
		Address:  stringOfLen(100),
		Port:     1,
	}
	buf := cfg.Serialize()
	if len(buf) != 115 {
		t.Fatalf("expected 115 bytes even when fields overflow, got %d", len(buf))
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
