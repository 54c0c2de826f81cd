package protocol

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// TestFrameReaderRoundTripProperty checks that FrameReader, streaming byte
// by byte over EncodeFrame's output, recovers the original body -- the
// streaming counterpart of TestFrameRoundTripProperty (which decodes with
// DecodeFrame), exercised the way a
// simulated device consumes inbound commands.
func TestFrameReaderRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOf(rapid.Byte()).Draw(t, "body")

		encoded := EncodeFrame(body)
		fr := NewFrameReader(bytes.NewReader(encoded))

		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed on EncodeFrame output for %x: %v", body, err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("round trip mismatch: got %x, want %x", got, body)
		}
	})
}

// TestFrameReaderSkipsNoiseBeforeStartMarker verifies the reader
// resynchronizes to the next valid start marker instead of failing on
// leading garbage bytes.
func TestFrameReaderSkipsNoiseBeforeStartMarker(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03}
	stream := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, EncodeFrame(body)...)

	fr := NewFrameReader(bytes.NewReader(stream))
	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %x, want %x", got, body)
	}
}

// TestFrameEscapeExample checks scenario C from spec section 8: encoding
// body {0x42, 0xAA, 0x00, 0x55, 0xF0} yields a specific 12-byte frame.
func TestFrameEscapeExample(t *testing.T) {
	body := []byte{0x42, 0xAA, 0x00, 0x55, 0xF0}
	want := []byte{
		0x55, 0xAA,
		0x42,
		0xF0, 0x5A,
		0x00,
		0xF0, 0xA5,
		0xF0, 0x00,
		0xAA, 0x55,
	}

	got := EncodeFrame(body)
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeFrame(%x) = %x, want %x", body, got, want)
	}
	if len(got) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(got))
	}
}

// TestFrameRoundTripProperty is spec section 8 property 2: decoding the
// frame-encoded form of any byte sequence recovers it exactly.
func TestFrameRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOf(rapid.Byte()).Draw(t, "body")

		encoded := EncodeFrame(body)
		decoded, ok := DecodeFrame(encoded)
		if !ok {
			t.Fatalf("DecodeFrame failed on EncodeFrame output for %x", body)
		}
		if !bytes.Equal(decoded, body) {
			t.Fatalf("round trip mismatch: got %x, want %x", decoded, body)
		}
	})
}

// TestFrameEscapesEveryMarkerByte verifies every occurrence of a magic byte
// in the body is escaped, never appearing bare except as part of the start
// or end marker.
func TestFrameEscapesEveryMarkerByte(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.SampledFrom([]byte{0xAA, 0x55, 0xF0, 0x01, 0x7F}), 1, 50).Draw(t, "body")

		encoded := EncodeFrame(body)
		inner := encoded[2 : len(encoded)-2]

		for i := 0; i < len(inner); i++ {
			if inner[i] == FESC {
				i++
				continue
			}
			if needsEscape(inner[i]) {
				t.Fatalf("unescaped magic byte 0x%02x found in body at %d: %x", inner[i], i, encoded)
			}
		}
	})
}
