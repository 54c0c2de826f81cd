// Package multidevice synchronizes 2-5 acquisition devices behind a single
// CaptureSession: channels are partitioned across the group, every slave
// arms on an externally-latched Edge trigger wired to a shared trigger bus,
// and the master's own Complex/Fast trigger condition fires the bus once
// armed last.
package multidevice

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocupoint/xla/pkg/capture"
	"github.com/ocupoint/xla/pkg/device"
	"github.com/ocupoint/xla/pkg/transport"
)

const (
	minMembers = 2
	maxMembers = 5
)

// Identity is the aggregate capability surface of a connected group,
// derived from every member's own device.Identity.
type Identity struct {
	ChannelCount    int
	PerDeviceChannels int
	MaxFrequency    uint32
	MinFrequency    uint32
	BufferSizeBytes uint32
	BlastFrequency  uint32 // always 0: multi-device does not support Blast
}

// Coordinator owns a fixed group of device sessions and their engines for
// its lifetime. Device 0 is always the master: its own trigger condition
// fires last and drives the shared trigger bus all slaves wait on.
type Coordinator struct {
	sessions []*device.Session
	engines  []*capture.Engine
	identity Identity
}

// Connect opens every member device in parallel, validates that they
// report the same {major, minor} version, and derives the group's
// aggregate Identity.
func Connect(ctx context.Context, connStrings []string, notifier capture.Notifier) (*Coordinator, error) {
	if len(connStrings) < minMembers || len(connStrings) > maxMembers {
		return nil, fmt.Errorf("multidevice: need %d-%d connection strings, got %d", minMembers, maxMembers, len(connStrings))
	}

	type opened struct {
		session *device.Session
		id      device.Identity
		err     error
	}
	results := make([]opened, len(connStrings))

	var wg sync.WaitGroup
	for i, cs := range connStrings {
		wg.Add(1)
		go func(i int, cs string) {
			defer wg.Done()
			sess, id, err := openMember(ctx, cs)
			results[i] = opened{session: sess, id: id, err: err}
		}(i, cs)
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("multidevice: connect device %d: %w", i, r.err)
		}
	}

	major0, minor0, _ := device.ParseMajorMinor(results[0].id.VersionString)
	for i := 1; i < len(results); i++ {
		mj, mn, _ := device.ParseMajorMinor(results[i].id.VersionString)
		if mj != major0 || mn != minor0 {
			return nil, fmt.Errorf("multidevice: device %d version %q does not match device 0 version %q",
				i, results[i].id.VersionString, results[0].id.VersionString)
		}
	}

	perDeviceChannels := results[0].id.ChannelCount
	maxFrequency := results[0].id.MaxFrequency
	minFrequency := results[0].id.MinFrequency()
	bufferSize := results[0].id.BufferSizeBytes
	for _, r := range results[1:] {
		if r.id.ChannelCount < perDeviceChannels {
			perDeviceChannels = r.id.ChannelCount
		}
		if r.id.MaxFrequency < maxFrequency {
			maxFrequency = r.id.MaxFrequency
		}
		if r.id.MinFrequency() > minFrequency {
			minFrequency = r.id.MinFrequency()
		}
		if r.id.BufferSizeBytes < bufferSize {
			bufferSize = r.id.BufferSizeBytes
		}
	}

	sessions := make([]*device.Session, len(results))
	engines := make([]*capture.Engine, len(results))
	for i, r := range results {
		sessions[i] = r.session
		engines[i] = capture.NewEngine(r.session, notifier)
	}

	return &Coordinator{
		sessions: sessions,
		engines:  engines,
		identity: Identity{
			ChannelCount:      perDeviceChannels * len(results),
			PerDeviceChannels: perDeviceChannels,
			MaxFrequency:      maxFrequency,
			MinFrequency:      minFrequency,
			BufferSizeBytes:   bufferSize,
			BlastFrequency:    0,
		},
	}, nil
}

func openMember(ctx context.Context, cs string) (*device.Session, device.Identity, error) {
	_, _, isTCP, err := transport.ParseConnectionString(cs)
	if err != nil {
		return nil, device.Identity{}, err
	}
	kind := device.KindSerial
	if isTCP {
		kind = device.KindNetwork
	}

	tr, err := transport.New(cs)
	if err != nil {
		return nil, device.Identity{}, err
	}
	sess := device.NewSession(tr, kind)

	id, err := sess.Connect(ctx)
	if err != nil {
		return nil, device.Identity{}, err
	}
	return sess, id, nil
}

// Identity returns the group's aggregate capability surface.
func (c *Coordinator) Identity() Identity {
	return c.identity
}

// MemberCount is the number of devices in the group.
func (c *Coordinator) MemberCount() int {
	return len(c.sessions)
}

// Start partitions session's requested global channels across the group,
// arms every slave in order, arms the master last, then collects every
// active device's payload and merges samples back into session by global
// channel number. Edge triggers are rejected outright since multi-device
// synchronization needs an externally-latchable trigger.
func (c *Coordinator) Start(ctx context.Context, session *capture.CaptureSession) capture.ErrorCode {
	if session.TriggerType != capture.TriggerComplex && session.TriggerType != capture.TriggerFast {
		return capture.ErrorBadParams
	}

	n := len(c.engines)
	perDevice := c.identity.PerDeviceChannels

	localChannels := make([][]int, n)
	globalOf := make([][]int, n)
	for _, ch := range session.CaptureChannels {
		d := ch.Number / perDevice
		if d < 0 || d >= n {
			return capture.ErrorBadParams
		}
		local := ch.Number % perDevice
		localChannels[d] = append(localChannels[d], local)
		globalOf[d] = append(globalOf[d], ch.Number)
	}

	delayConstant, _ := capture.LatencyDelayConstant(session.TriggerType)
	offset := capture.LatencyOffset(session.Frequency, c.identity.MaxFrequency, delayConstant)

	memberSessions := make([]*capture.CaptureSession, n)
	for d := 0; d < n; d++ {
		ms := capture.NewCaptureSession()
		ms.Frequency = session.Frequency
		for _, local := range localChannels[d] {
			ms.AddChannel(local, fmt.Sprintf("%d", local))
		}

		if d == 0 {
			ms.TriggerType = session.TriggerType
			ms.TriggerChannel = session.TriggerChannel
			ms.TriggerBitCount = session.TriggerBitCount
			ms.TriggerPattern = session.TriggerPattern
			ms.PreTriggerSamples = session.PreTriggerSamples
			ms.PostTriggerSamples = session.PostTriggerSamples
		} else {
			ms.TriggerType = capture.TriggerEdge
			ms.TriggerChannel = perDevice
			ms.TriggerInverted = false
			ms.PreTriggerSamples = session.PreTriggerSamples + offset
			ms.PostTriggerSamples = session.PostTriggerSamples - offset
		}
		memberSessions[d] = ms
	}

	armed := make([]*capture.Armed, n)
	active := make([]bool, n)

	for d := 1; d < n; d++ {
		if len(localChannels[d]) == 0 {
			continue
		}
		a, code := c.engines[d].Arm(ctx, memberSessions[d])
		if code != capture.ErrorNone {
			c.abort(ctx, active)
			return code
		}
		armed[d] = a
		active[d] = true
	}

	if len(localChannels[0]) > 0 {
		a, code := c.engines[0].Arm(ctx, memberSessions[0])
		if code != capture.ErrorNone {
			c.abort(ctx, active)
			return code
		}
		armed[0] = a
		active[0] = true
	}

	codes := make([]capture.ErrorCode, n)
	var wg sync.WaitGroup
	for d := 0; d < n; d++ {
		if !active[d] {
			continue
		}
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			codes[d] = c.engines[d].Collect(ctx, armed[d])
		}(d)
	}
	wg.Wait()

	for d, code := range codes {
		if active[d] && code != capture.ErrorNone {
			return code
		}
	}

	samplesByGlobal := make(map[int][]byte, len(session.CaptureChannels))
	for d := 0; d < n; d++ {
		if !active[d] {
			continue
		}
		for i, mc := range memberSessions[d].CaptureChannels {
			samplesByGlobal[globalOf[d][i]] = mc.Samples
		}
	}
	for _, ch := range session.CaptureChannels {
		if s, ok := samplesByGlobal[ch.Number]; ok {
			ch.Samples = s
		}
	}

	return capture.ErrorNone
}

// abort stops every device that was successfully armed, used when a later
// stage fails and the whole group must be unwound.
func (c *Coordinator) abort(ctx context.Context, active []bool) {
	for d, wasArmed := range active {
		if wasArmed {
			c.sessions[d].Stop(ctx)
		}
	}
}

// Stop cancels an in-progress group capture on every member device.
func (c *Coordinator) Stop(ctx context.Context) bool {
	ok := true
	for _, s := range c.sessions {
		if !s.Stop(ctx) {
			ok = false
		}
	}
	return ok
}
