// Package capture implements the packing-mode selection, capture-limits
// validator, single-device capture engine, and binary sample-payload parser
// (burst timestamp reconstruction included) described as the acquisition
// core's hard part.
package capture

import (
	"time"

	"github.com/google/uuid"
	"github.com/ocupoint/xla/pkg/protocol"
)

// TriggerType mirrors protocol.TriggerType; re-exported here so callers
// building a CaptureSession don't need to import pkg/protocol directly.
type TriggerType = protocol.TriggerType

const (
	TriggerEdge    = protocol.TriggerEdge
	TriggerComplex = protocol.TriggerComplex
	TriggerFast    = protocol.TriggerFast
	TriggerBlast   = protocol.TriggerBlast
)

// Channel is one requested channel, identified by its device channel
// number, plus (after a successful capture) its owned sample array.
type Channel struct {
	Number  int
	Name    string
	Hidden  bool
	Samples []byte // 0/1 per element, length == session.TotalSamples() once populated
}

// BurstInfo describes one iteration of a repeated post-trigger capture.
// The first burst always has zero gaps.
type BurstInfo struct {
	SampleStart  uint64
	SampleEnd    uint64
	SampleGap    uint64
	TimeGapNanos int64
}

// CaptureSession is the request/result container borrowed by the core: the
// caller populates the request fields, passes it to an Engine or
// Coordinator, and receives back per-channel samples and, optionally,
// burst metadata. It is never retained past the call that mutates it.
type CaptureSession struct {
	ID uuid.UUID // correlation id threaded through eventbus events

	Frequency uint32 // Hz

	PreTriggerSamples  uint32
	PostTriggerSamples uint32

	TriggerType     TriggerType
	TriggerChannel  int // 0..=DeviceChannelCount; the "+1" slot is the external trigger
	TriggerInverted bool
	TriggerBitCount int    // 1..=16 Complex / 1..=5 Fast
	TriggerPattern  uint16 // up to 16 bits

	LoopCount     int // 0..=254 Edge, 0..=255 Blast; 0 for Complex/Fast
	MeasureBursts bool

	CaptureChannels []*Channel

	Bursts []BurstInfo
}

// NewCaptureSession allocates a session with a fresh correlation id.
func NewCaptureSession() *CaptureSession {
	return &CaptureSession{ID: uuid.New()}
}

// TotalSamples is Pre + Post.
func (s *CaptureSession) TotalSamples() uint32 {
	return s.PreTriggerSamples + s.PostTriggerSamples
}

// AddChannel appends a channel to CaptureChannels, preserving insertion
// order and rejecting a duplicate channel number (invariant: the channel
// set is unique by number).
func (s *CaptureSession) AddChannel(number int, name string) error {
	for _, c := range s.CaptureChannels {
		if c.Number == number {
			return duplicateChannelError(number)
		}
	}
	s.CaptureChannels = append(s.CaptureChannels, &Channel{Number: number, Name: name})
	return nil
}

// ChannelNumbers returns the requested channel numbers in capture order.
func (s *CaptureSession) ChannelNumbers() []int {
	out := make([]int, len(s.CaptureChannels))
	for i, c := range s.CaptureChannels {
		out[i] = c.Number
	}
	return out
}

// ClearSamples drops any previously captured samples and bursts without
// otherwise mutating the request fields, used when a capture fails so the
// session is returned "without mutating captureChannels beyond clearing
// prior samples" per the data model's first invariant.
func (s *CaptureSession) ClearSamples() {
	for _, c := range s.CaptureChannels {
		c.Samples = nil
	}
	s.Bursts = nil
}

func duplicateChannelError(number int) error {
	return &DuplicateChannelError{Number: number}
}

// DuplicateChannelError reports an attempt to add the same channel number
// twice to a CaptureSession.
type DuplicateChannelError struct {
	Number int
}

func (e *DuplicateChannelError) Error() string {
	return "capture: duplicate channel number requested"
}

// deviceTickPeriod is the acquisition hardware's internal timing unit
// (derived from a 200 MHz clock).
const deviceTickPeriod = 5 * time.Nanosecond
