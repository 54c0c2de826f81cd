// Package protocol implements the framed wire protocol spoken by the
// acquisition hardware: escape-encoded command frames, newline-delimited
// device-info responses, and raw binary capture payloads.
package protocol

import "bytes"

// Marker and escape bytes used by the framing layer. Body bytes equal to
// any of these three values are escaped as FESC followed by value^FESC.
const (
	startMarker1 byte = 0x55
	startMarker2 byte = 0xAA
	endMarker1   byte = 0xAA
	endMarker2   byte = 0x55

	FESC byte = 0xF0
)

var escapedBytes = [3]byte{0xAA, 0x55, 0xF0}

func needsEscape(b byte) bool {
	return b == escapedBytes[0] || b == escapedBytes[1] || b == escapedBytes[2]
}

// EncodeFrame wraps body in the start/end markers, escaping any occurrence
// of 0xAA, 0x55, or 0xF0 inside the body as FESC, value^FESC. Values outside
// [0,255] are masked to the low 8 bits before escaping, mirroring the
// device's byte-oriented wire format.
func EncodeFrame(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body)*2 + 4)

	buf.WriteByte(startMarker1)
	buf.WriteByte(startMarker2)

	for _, raw := range body {
		b := raw & 0xFF
		if needsEscape(b) {
			buf.WriteByte(FESC)
			buf.WriteByte(b ^ FESC)
		} else {
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(endMarker1)
	buf.WriteByte(endMarker2)

	return buf.Bytes()
}

// DecodeFrame reverses EncodeFrame: given a full frame (including start and
// end markers), it returns the original body. It is primarily used by tests
// to assert the round-trip property required by spec section 8; production
// code never needs to decode its own outbound frames since the device is
// the only frame producer on the inbound side, and inbound data arrives as
// plain lines or raw binary rather than re-framed bytes.
func DecodeFrame(frame []byte) ([]byte, bool) {
	if len(frame) < 4 {
		return nil, false
	}
	if frame[0] != startMarker1 || frame[1] != startMarker2 {
		return nil, false
	}
	if frame[len(frame)-2] != endMarker1 || frame[len(frame)-1] != endMarker2 {
		return nil, false
	}

	body := frame[2 : len(frame)-2]
	out := make([]byte, 0, len(body))

	for i := 0; i < len(body); i++ {
		b := body[i]
		if b == FESC {
			i++
			if i >= len(body) {
				return nil, false
			}
			out = append(out, body[i]^FESC)
			continue
		}
		out = append(out, b)
	}

	return out, true
}
