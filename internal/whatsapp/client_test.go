package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendText(t *testing.T) {
	var got SendMessageRequest
	var path, auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "v21.0", "token", time.Second)
	id, err := client.SendText(context.Background(), "pnid-1", "+1555", "Hello")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if id == nil || *id != "wamid.out" {
		t.Errorf("SendText() id = %v, want wamid.out", id)
	}
	if path != "/v21.0/pnid-1/messages" {
		t.Errorf("path = %q, want /v21.0/pnid-1/messages", path)
	}
	if auth != "Bearer token" {
		t.Errorf("Authorization = %q, want Bearer token", auth)
	}
	if got.MessagingProduct != "whatsapp" || got.To != "+1555" || got.Type != "text" {
		t.Errorf("request = %+v", got)
	}
	if got.Text == nil || got.Text.Body != "Hello" {
		t.Errorf("request text = %+v, want Hello", got.Text)
	}
}

func TestSendTextResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantID  bool
		wantErr bool
	}{
		{name: "accepted with id", status: http.StatusOK, body: `{"messages":[{"id":"wamid.1"}]}`, wantID: true},
		{name: "created is 2xx", status: http.StatusCreated, body: `{"messages":[{"id":"wamid.1"}]}`, wantID: true},
		{name: "missing messages", status: http.StatusOK, body: `{"messaging_product":"whatsapp"}`},
		{name: "empty id", status: http.StatusOK, body: `{"messages":[{"id":""}]}`},
		{name: "unreadable body", status: http.StatusOK, body: `not json`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad"}}`, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			id, err := NewClient(server.URL, "v21.0", "token", time.Second).
				SendText(context.Background(), "pnid-1", "+1555", "Hello")
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
					t.Errorf("error = %v, want APIError with status %d", err, tt.status)
				}
				return
			}
			if (id != nil) != tt.wantID {
				t.Errorf("SendText() id = %v, wantID %v", id, tt.wantID)
			}
		})
	}
}

func TestSendTextTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "v21.0", "token", 50*time.Millisecond)
	if _, err := client.SendText(context.Background(), "pnid-1", "+1555", "Hello"); err == nil {
		t.Fatal("SendText() against a stalled server returned no error")
	}
}
