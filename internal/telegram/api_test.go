package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessageReturnsMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 555 {
			t.Errorf("chat_id = %d, want 555", req.ChatID)
		}
		_ = json.NewEncoder(w).Encode(sendMessageResponse{
			OK:     true,
			Result: &Message{MessageID: 777},
		})
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	id, err := api.SendMessage(context.Background(), 555, "hello", true)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if id != 777 {
		t.Fatalf("SendMessage() id = %d, want 777", id)
	}
}

func TestSendMessageErrorCarriesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(okResponse{OK: false, ErrorCode: 400, Description: "Bad Request: chat not found"})
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	_, err := api.SendMessage(context.Background(), 1, "x", false)
	if err == nil {
		t.Fatalf("expected error")
	}
	reqErr, ok := err.(*RequestError)
	if !ok {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.Description != "Bad Request: chat not found" {
		t.Fatalf("description = %q", reqErr.Description)
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(getUpdatesResponse{
			OK: true,
			Result: []Update{
				{UpdateID: 10},
				{UpdateID: 12},
			},
		})
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	updates, next, err := api.GetUpdates(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(updates))
	}
	if next != 13 {
		t.Fatalf("next offset = %d, want 13", next)
	}
}

func TestChatIsGroup(t *testing.T) {
	cases := []struct {
		chatType string
		want     bool
	}{
		{"private", false},
		{"group", true},
		{"supergroup", true},
		{"channel", false},
		{"", false},
	}
	for _, tc := range cases {
		c := &Chat{Type: tc.chatType}
		if got := c.IsGroup(); got != tc.want {
			t.Fatalf("IsGroup(%q) = %v, want %v", tc.chatType, got, tc.want)
		}
	}
	var nilChat *Chat
	if nilChat.IsGroup() {
		t.Fatalf("nil chat should not be a group")
	}
}
