package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"churnguard/history"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func waitForClients(t *testing.T, hub *WebSocketHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsHistoryEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub([]string{"*"}, nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(history.Event{Op: history.OpDelete, Positions: []int{3}, At: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if msg.Type != HistoryEvent || msg.ID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	var e history.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		t.Fatalf("invalid event: %v", err)
	}
	if e.Op != history.OpDelete || len(e.Positions) != 1 || e.Positions[0] != 3 {
		t.Fatalf("unexpected event %+v", e)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub([]string{"http://dashboard.local"}, nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := dial(t, srv, "http://evil.example")
	if err == nil {
		t.Fatal("expected upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}
