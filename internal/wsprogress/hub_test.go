package wsprogress_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/wsprogress"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsprogress.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev wsprogress.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return ev
}

func waitForClientCount(t *testing.T, hub *wsprogress.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (got %d)", n, hub.ClientCount())
}

func TestHub_PublishBroadcastsToConnectedClients(t *testing.T) {
	hub := wsprogress.NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	connA := dial(t, srv)
	connB := dial(t, srv)
	waitForClientCount(t, hub, 2)

	item := domain.Item{ID: "item-1", Phase: domain.PhaseTranscribingPass1, Progress: 40}
	hub.Publish(item)

	evA := readEvent(t, connA)
	evB := readEvent(t, connB)

	for _, ev := range []wsprogress.Event{evA, evB} {
		if ev.ItemID != "item-1" {
			t.Errorf("item_id = %q, want item-1", ev.ItemID)
		}
		if ev.Phase != string(domain.PhaseTranscribingPass1) {
			t.Errorf("phase = %q, want %q", ev.Phase, domain.PhaseTranscribingPass1)
		}
		if ev.Progress != 40 {
			t.Errorf("progress = %d, want 40", ev.Progress)
		}
	}
}

func TestHub_PublishIncludesErrorMessage(t *testing.T) {
	hub := wsprogress.NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	waitForClientCount(t, hub, 1)

	hub.Publish(domain.Item{ID: "item-2", Phase: domain.PhaseError, ErrorMessage: "probe failed: no audio track"})

	ev := readEvent(t, conn)
	if ev.Phase != string(domain.PhaseError) {
		t.Errorf("phase = %q, want %q", ev.Phase, domain.PhaseError)
	}
	if ev.ErrorMessage != "probe failed: no audio track" {
		t.Errorf("error_message = %q", ev.ErrorMessage)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := wsprogress.NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	waitForClientCount(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected client count to reach 0, got %d", hub.ClientCount())
}

func TestHub_NoClientsIsANoop(t *testing.T) {
	hub := wsprogress.NewHub(nil)
	hub.Publish(domain.Item{ID: "item-3", Phase: domain.PhaseNew})
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}
