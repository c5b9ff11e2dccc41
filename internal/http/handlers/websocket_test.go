package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"wainbox/internal/broadcast"
	"wainbox/internal/testutil"
	"wainbox/pkg/models"

	"github.com/gorilla/websocket"
)

func wsURL(server *httptest.Server, room, token string) string {
	q := url.Values{}
	q.Set("room", room)
	q.Set("token", token)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?" + q.Encode()
}

func waitForRoom(t *testing.T, b *broadcast.Broadcaster, room string, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.RoomSize(room) != size {
		if time.Now().After(deadline) {
			t.Fatalf("room %s size = %d, want %d", room, b.RoomSize(room), size)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketReceivesIngestedMessages(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.CreateNumber(t, ts.services.DB, "Sales", "pnid-1")
	agent := ts.createUser(t, "alice", models.RoleEmployee)
	testutil.Assign(t, ts.services.DB, agent.ID, number.ID)
	token := ts.login(t, "alice")

	server := httptest.NewServer(ts.e)
	defer server.Close()

	room := broadcast.RoomForNumber(number.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, room, token), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitForRoom(t, ts.services.Broadcaster, room, 1)

	ts.deliver(t, "pnid-1", "wamid.hi", "+1555", "Hi")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("event is not JSON: %v", err)
	}
	if event["event"] != broadcast.EventMessageNew || event["text"] != "Hi" || event["from"] != "+1555" {
		t.Errorf("event = %v", event)
	}

	conn.Close()
	waitForRoom(t, ts.services.Broadcaster, room, 0)
}

func TestWebSocketRejections(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.CreateNumber(t, ts.services.DB, "Sales", "pnid-1")
	ts.createUser(t, "alice", models.RoleEmployee)
	token := ts.login(t, "alice")

	server := httptest.NewServer(ts.e)
	defer server.Close()

	tests := []struct {
		name       string
		room       string
		token      string
		wantStatus int
	}{
		{name: "missing token", room: broadcast.RoomForNumber(number.ID), wantStatus: http.StatusUnauthorized},
		{name: "invalid token", room: broadcast.RoomForNumber(number.ID), token: "nope", wantStatus: http.StatusUnauthorized},
		{name: "malformed room", room: "lobby", token: token, wantStatus: http.StatusBadRequest},
		{name: "zero id room", room: "number:0", token: token, wantStatus: http.StatusBadRequest},
		{name: "unassigned number", room: broadcast.RoomForNumber(number.ID), token: token, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, tt.room, tt.token), nil)
			if err == nil {
				t.Fatal("Dial() succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Errorf("response = %v, want status %d", resp, tt.wantStatus)
			}
		})
	}
}

func TestWebSocketClientSendIsNonBlocking(t *testing.T) {
	client := &WebSocketClient{send: make(chan []byte, 1), done: make(chan struct{})}

	if err := client.Send([]byte("a")); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if err := client.Send([]byte("b")); err != errSlowConsumer {
		t.Errorf("Send() on full buffer error = %v, want %v", err, errSlowConsumer)
	}

	close(client.done)
	if err := client.Send([]byte("c")); err == nil {
		t.Error("Send() after close succeeded")
	}
}

func TestParseRoom(t *testing.T) {
	tests := []struct {
		room   string
		wantID uint
		wantOK bool
	}{
		{room: "number:7", wantID: 7, wantOK: true},
		{room: "number:", wantOK: false},
		{room: "number:-1", wantOK: false},
		{room: "number:abc", wantOK: false},
		{room: "conversation:7", wantOK: false},
		{room: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			id, ok := parseRoom(tt.room)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("parseRoom(%q) = %d, %v, want %d, %v", tt.room, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
