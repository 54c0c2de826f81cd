// Package eventbus broadcasts the driver core's external event surface
// (captureCompleted, error, statusChanged) to websocket subscribers. It is
// adapted from the hub/writePump pattern the rest of this product line uses
// for its control-plane UI, generalized from a single global client map to
// an owned Bus value.
package eventbus

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	segmentjson "github.com/segmentio/encoding/json"
)

// EventType names the three externally observable event kinds.
type EventType string

const (
	EventCaptureCompleted EventType = "captureCompleted"
	EventError            EventType = "error"
	EventStatusChanged    EventType = "statusChanged"
)

// Event is the envelope broadcast to every subscriber.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// CaptureCompletedData is the payload for EventCaptureCompleted. Session is
// left as `any` rather than *capture.CaptureSession so this package never
// needs to import pkg/capture.
type CaptureCompletedData struct {
	Success   bool `json:"success"`
	SessionID string `json:"sessionId"`
	Session   any  `json:"session,omitempty"`
}

// ErrorData is the payload for EventError.
type ErrorData struct {
	Message string `json:"error"`
}

// StatusChangedData is the payload for EventStatusChanged. Voltage carries
// the opaque sentinel strings the wire protocol defines: a real reading, or
// one of UNSUPPORTED, DISCONNECTED, TIMEOUT, ERROR.
type StatusChangedData struct {
	IsConnected    bool   `json:"isConnected"`
	IsCapturing    bool   `json:"isCapturing"`
	BatteryVoltage string `json:"batteryVoltage"`
}

// client is one subscriber connection, mirroring this codebase's existing
// hub pattern: a buffered send channel drained by a dedicated writePump
// goroutine so a slow reader never blocks the broadcaster.
type client struct {
	conn *websocket.Conn
	send chan Event
}

const clientSendBuffer = 32

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		payload, err := segmentjson.Marshal(msg)
		if err != nil {
			log.Printf("eventbus: marshal event: %v", err)
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Bus is a broadcast hub: every Publish call fans out to every currently
// registered subscriber. It satisfies capture.Notifier once wrapped by
// NewCaptureNotifier.
type Bus struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewBus builds an empty Bus, ready to accept subscribers via
// ServeWebsocket and broadcast via Publish.
func NewBus() *Bus {
	return &Bus{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP makes Bus itself an http.Handler, so it can be registered
// directly on a mux (e.g. http.Handle("/events", bus)).
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.ServeWebsocket(w, r)
}

// ServeWebsocket upgrades r into a new subscriber connection and registers
// it with the bus. It blocks until the connection closes.
func (b *Bus) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("eventbus: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientSendBuffer)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		close(c.send)
	}()

	c.writePump()
}

// Publish broadcasts evt to every registered subscriber. A subscriber whose
// send buffer is full misses this event rather than stalling the
// broadcaster; it stays registered.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		select {
		case c.send <- evt:
		default:
			log.Printf("eventbus: dropping slow subscriber")
		}
	}
}

// SubscriberCount reports how many websocket clients are currently
// attached, mainly for diagnostics and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
