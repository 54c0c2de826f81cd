package protocol

import (
	"encoding/binary"
	"fmt"
)

// TriggerType selects the hardware trigger engine used for a capture.
type TriggerType byte

const (
	TriggerEdge    TriggerType = 0
	TriggerComplex TriggerType = 1
	TriggerFast    TriggerType = 2
	TriggerBlast   TriggerType = 3
)

// Mode is the sample packing mode: how many channels are packed per sample
// word on the wire.
type Mode byte

const (
	Mode8  Mode = 0
	Mode16 Mode = 1
	Mode24 Mode = 2
)

// Divisor returns the bytes-per-sample for this packing mode.
func (m Mode) Divisor() int {
	switch m {
	case Mode8:
		return 1
	case Mode16:
		return 2
	default:
		return 4
	}
}

// maxChannelsField is the fixed width of CaptureRequest's channel list.
const maxChannelsField = 24

// requestSize is the fixed, tightly-packed wire size of CaptureRequest.
const requestSize = 45

// Serializer is implemented by every fixed-layout request struct this
// package produces. It replaces the reference implementation's runtime
// "has a serialize method" duck-typing check with a real interface, per
// DESIGN.md's notes on DESIGN NOTES section 9 of the specification.
type Serializer interface {
	Serialize() []byte
}

// CaptureRequest is the 45-byte little-endian capture-start command body
// documented in the wire protocol's request layout table.
type CaptureRequest struct {
	TriggerType      TriggerType
	Trigger          byte // trigger channel index, 0..DeviceChannelCount
	InvertedOrCount  byte // Edge/Blast: inverted flag. Complex/Fast: triggerBitCount
	TriggerValue     uint16
	Channels         [maxChannelsField]byte
	ChannelCount     byte
	Frequency        uint32
	PreSamples       uint32
	PostSamples      uint32
	LoopCount        byte
	Measure          byte
	CaptureMode      Mode
}

// Serialize renders the request into exactly 45 little-endian bytes per the
// fixed offset table.
func (r *CaptureRequest) Serialize() []byte {
	buf := make([]byte, requestSize)

	buf[0] = byte(r.TriggerType)
	buf[1] = r.Trigger
	buf[2] = r.InvertedOrCount
	binary.LittleEndian.PutUint16(buf[3:5], r.TriggerValue)
	copy(buf[5:5+maxChannelsField], r.Channels[:])
	buf[29] = r.ChannelCount
	binary.LittleEndian.PutUint32(buf[30:34], r.Frequency)
	binary.LittleEndian.PutUint32(buf[34:38], r.PreSamples)
	binary.LittleEndian.PutUint32(buf[38:42], r.PostSamples)
	buf[42] = r.LoopCount
	buf[43] = r.Measure
	buf[44] = byte(r.CaptureMode)

	return buf
}

var _ Serializer = (*CaptureRequest)(nil)

// ParseCaptureRequest reverses Serialize. It exists for the simulated
// device, which plays the firmware's role and must decode the request a
// real device's command parser would.
func ParseCaptureRequest(buf []byte) (*CaptureRequest, error) {
	if len(buf) != requestSize {
		return nil, fmt.Errorf("protocol: capture request must be %d bytes, got %d", requestSize, len(buf))
	}

	r := &CaptureRequest{
		TriggerType:     TriggerType(buf[0]),
		Trigger:         buf[1],
		InvertedOrCount: buf[2],
		TriggerValue:    binary.LittleEndian.Uint16(buf[3:5]),
		ChannelCount:    buf[29],
		Frequency:       binary.LittleEndian.Uint32(buf[30:34]),
		PreSamples:      binary.LittleEndian.Uint32(buf[34:38]),
		PostSamples:     binary.LittleEndian.Uint32(buf[38:42]),
		LoopCount:       buf[42],
		Measure:         buf[43],
		CaptureMode:     Mode(buf[44]),
	}
	copy(r.Channels[:], buf[5:5+maxChannelsField])
	return r, nil
}

const networkConfigSize = 115

const (
	apNameFieldSize   = 33
	passwordFieldSize = 64
	ipFieldSize       = 16
)

// NetworkConfig is the 115-byte wire body for the set-network-config
// out-of-band command: a zero-padded AP name, zero-padded password,
// zero-padded dotted-quad IPv4 string, and a little-endian port.
type NetworkConfig struct {
	APName   string
	Password string
	Address  string
	Port     uint16
}

func putPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Serialize renders the config into exactly 115 null-padded bytes. Strings
// longer than their field are truncated; shorter strings are zero-padded,
// not null-terminated if they exactly fill the field.
func (c *NetworkConfig) Serialize() []byte {
	buf := make([]byte, networkConfigSize)

	off := 0
	putPadded(buf[off:off+apNameFieldSize], truncate(c.APName, apNameFieldSize))
	off += apNameFieldSize

	putPadded(buf[off:off+passwordFieldSize], truncate(c.Password, passwordFieldSize))
	off += passwordFieldSize

	putPadded(buf[off:off+ipFieldSize], truncate(c.Address, ipFieldSize))
	off += ipFieldSize

	binary.LittleEndian.PutUint16(buf[off:off+2], c.Port)

	return buf
}

var _ Serializer = (*NetworkConfig)(nil)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
