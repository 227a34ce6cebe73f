package signaling

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realhidden/macemu/internal/session"
)

func TestServerSendsWelcome(t *testing.T) {
	sessions := session.NewManager([]string{"stun:stun.l.google.com:19302"}, nil, nil, 0, nil, nil)
	srv := New(sessions)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	if msg["type"] != "welcome" {
		t.Fatalf("type = %v, want welcome", msg["type"])
	}
	if msg["peerId"] != "server" {
		t.Fatalf("peerId = %v, want server", msg["peerId"])
	}
}

func TestServerRemovesSessionOnClose(t *testing.T) {
	sessions := session.NewManager([]string{"stun:stun.l.google.com:19302"}, nil, nil, 0, nil, nil)
	srv := New(sessions)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome map[string]any
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	if err := conn.WriteJSON(map[string]string{"type": "connect"}); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sessions.Count() != 1 {
		t.Fatalf("session count after connect = %d, want 1", sessions.Count())
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for sessions.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sessions.Count() != 0 {
		t.Fatalf("session count after close = %d, want 0", sessions.Count())
	}
}
