package capture

import (
	"math"

	"github.com/ocupoint/xla/pkg/device"
	"github.com/ocupoint/xla/pkg/protocol"
)

// LatencyDelayConstant is D in the latency-offset formula, in units of
// 1/maxFrequency: 3 for Fast, 5 for Complex. The multi-device coordinator
// reuses this to compute its own slave pre/post offset.
func LatencyDelayConstant(t protocol.TriggerType) (constant int, needsOffset bool) {
	switch t {
	case protocol.TriggerFast:
		return 3, true
	case protocol.TriggerComplex:
		return 5, true
	default:
		return 0, false
	}
}

// LatencyOffset computes the sample offset applied to pre/post for
// Complex/Fast triggers, so the device's fixed trigger-detection latency is
// absorbed into the request rather than skewing the result.
func LatencyOffset(frequency, maxFrequency uint32, delayConstant int) uint32 {
	samplePeriodNs := 1e9 / float64(frequency)
	delayPeriodNs := float64(delayConstant) * 1e9 / float64(maxFrequency)
	return uint32(math.Round(delayPeriodNs/samplePeriodNs + 0.3))
}

// Plan validates session against id and produces the packing mode and the
// exact wire request to send. It never mutates session. A validation
// failure is always a *ValidationError (see CodeFor).
func Plan(session *CaptureSession, id device.Identity) (protocol.Mode, *protocol.CaptureRequest, error) {
	mode := SelectMode(session.ChannelNumbers())
	limits := DeriveLimits(id.BufferSizeBytes, mode)

	if err := validateChannels(session, id); err != nil {
		return mode, nil, err
	}
	if err := validateTriggerChannel(session, id); err != nil {
		return mode, nil, err
	}
	if err := validateSampleCounts(session, limits); err != nil {
		return mode, nil, err
	}
	if err := validateFrequency(session, id); err != nil {
		return mode, nil, err
	}
	if err := validateTriggerShape(session); err != nil {
		return mode, nil, err
	}

	pre, post := session.PreTriggerSamples, session.PostTriggerSamples
	loopCount := byte(session.LoopCount)
	measure := byte(0)
	if session.MeasureBursts {
		measure = 1
	}

	if delayConstant, needsOffset := LatencyDelayConstant(session.TriggerType); needsOffset {
		offset := LatencyOffset(session.Frequency, id.MaxFrequency, delayConstant)
		if offset > post {
			return mode, nil, validationErrorf("trigger-latency offset %d exceeds postTriggerSamples %d", offset, post)
		}
		pre += offset
		post -= offset
		loopCount = 0
		measure = 0
	}

	req := &protocol.CaptureRequest{
		TriggerType:  session.TriggerType,
		Trigger:      byte(session.TriggerChannel),
		Frequency:    session.Frequency,
		PreSamples:   pre,
		PostSamples:  post,
		LoopCount:    loopCount,
		Measure:      measure,
		CaptureMode:  mode,
		ChannelCount: byte(len(session.CaptureChannels)),
	}

	switch session.TriggerType {
	case protocol.TriggerEdge, protocol.TriggerBlast:
		if session.TriggerInverted {
			req.InvertedOrCount = 1
		}
	case protocol.TriggerComplex, protocol.TriggerFast:
		req.InvertedOrCount = byte(session.TriggerBitCount)
		req.TriggerValue = session.TriggerPattern
	}

	for i, c := range session.CaptureChannels {
		if i >= len(req.Channels) {
			break
		}
		req.Channels[i] = byte(c.Number)
	}

	return mode, req, nil
}

func validateChannels(session *CaptureSession, id device.Identity) error {
	for _, c := range session.CaptureChannels {
		if c.Number < 0 || c.Number >= id.ChannelCount {
			return validationErrorf("channel %d out of range [0,%d)", c.Number, id.ChannelCount)
		}
	}
	return nil
}

func validateTriggerChannel(session *CaptureSession, id device.Identity) error {
	if session.TriggerChannel < 0 || session.TriggerChannel > id.ChannelCount {
		return validationErrorf("trigger channel %d out of range [0,%d]", session.TriggerChannel, id.ChannelCount)
	}
	return nil
}

func validateSampleCounts(session *CaptureSession, limits Limits) error {
	pre, post := session.PreTriggerSamples, session.PostTriggerSamples
	if pre < limits.MinPreSamples || pre > limits.MaxPreSamples {
		return validationErrorf("preTriggerSamples %d out of range [%d,%d]", pre, limits.MinPreSamples, limits.MaxPreSamples)
	}
	if post < limits.MinPostSamples || post > limits.MaxPostSamples {
		return validationErrorf("postTriggerSamples %d out of range [%d,%d]", post, limits.MinPostSamples, limits.MaxPostSamples)
	}
	if pre+post > limits.MaxTotalSamples {
		return validationErrorf("pre+post %d exceeds maxTotalSamples %d", pre+post, limits.MaxTotalSamples)
	}
	return nil
}

func validateFrequency(session *CaptureSession, id device.Identity) error {
	if session.Frequency < id.MinFrequency() || session.Frequency > id.MaxFrequency {
		return validationErrorf("frequency %d out of range [%d,%d]", session.Frequency, id.MinFrequency(), id.MaxFrequency)
	}
	return nil
}

func validateTriggerShape(session *CaptureSession) error {
	switch session.TriggerType {
	case protocol.TriggerEdge:
		if session.LoopCount > 254 {
			return validationErrorf("loopCount %d exceeds 254 for Edge trigger", session.LoopCount)
		}
	case protocol.TriggerBlast:
		if session.LoopCount < 0 || session.LoopCount > 255 {
			return validationErrorf("loopCount %d out of range [0,255] for Blast trigger", session.LoopCount)
		}
	case protocol.TriggerComplex:
		if session.TriggerBitCount < 1 || session.TriggerBitCount > 16 {
			return validationErrorf("triggerBitCount %d out of range [1,16] for Complex trigger", session.TriggerBitCount)
		}
		if session.TriggerChannel < 0 || session.TriggerChannel > 15 {
			return validationErrorf("triggerChannel %d out of range [0,15] for Complex trigger", session.TriggerChannel)
		}
		if session.TriggerChannel+session.TriggerBitCount > 16 {
			return validationErrorf("triggerChannel+triggerBitCount %d exceeds 16 for Complex trigger", session.TriggerChannel+session.TriggerBitCount)
		}
	case protocol.TriggerFast:
		if session.TriggerBitCount < 1 || session.TriggerBitCount > 5 {
			return validationErrorf("triggerBitCount %d out of range [1,5] for Fast trigger", session.TriggerBitCount)
		}
		if session.TriggerChannel < 0 || session.TriggerChannel > 4 {
			return validationErrorf("triggerChannel %d out of range [0,4] for Fast trigger", session.TriggerChannel)
		}
		if session.TriggerChannel+session.TriggerBitCount > 5 {
			return validationErrorf("triggerChannel+triggerBitCount %d exceeds 5 for Fast trigger", session.TriggerChannel+session.TriggerBitCount)
		}
	}
	return nil
}
