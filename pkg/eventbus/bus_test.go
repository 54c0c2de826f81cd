package eventbus

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBusPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()

	server := httptest.NewServer(bus)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give ServeWebsocket a moment to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", bus.SubscriberCount())
	}

	notifier := NewCaptureNotifier(bus)
	notifier.CaptureCompleted("session-1", true)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != EventCaptureCompleted {
		t.Errorf("Type = %q, want %q", evt.Type, EventCaptureCompleted)
	}
}
