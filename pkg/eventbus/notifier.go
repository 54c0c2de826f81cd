package eventbus

// CaptureNotifier adapts a Bus to pkg/capture's Notifier interface. It is a
// thin wrapper rather than having Bus implement the interface directly so
// eventbus never needs to import pkg/capture.
type CaptureNotifier struct {
	Bus *Bus
}

// NewCaptureNotifier wraps bus as a capture.Notifier.
func NewCaptureNotifier(bus *Bus) *CaptureNotifier {
	return &CaptureNotifier{Bus: bus}
}

// CaptureCompleted publishes an EventCaptureCompleted event.
func (n *CaptureNotifier) CaptureCompleted(sessionID string, success bool) {
	n.Bus.Publish(Event{
		Type: EventCaptureCompleted,
		Data: CaptureCompletedData{Success: success, SessionID: sessionID},
	})
}

// StatusChanged publishes an EventStatusChanged event.
func (n *CaptureNotifier) StatusChanged(connected, capturing bool, voltage string) {
	n.Bus.Publish(Event{
		Type: EventStatusChanged,
		Data: StatusChangedData{IsConnected: connected, IsCapturing: capturing, BatteryVoltage: voltage},
	})
}

// PublishError publishes an EventError event for an asynchronous internal
// error surfaced to subscribers outside a capture's completion event.
func (n *CaptureNotifier) PublishError(err error) {
	n.Bus.Publish(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
}
