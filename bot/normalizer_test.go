package bot

import (
	"reflect"
	"testing"

	"github.com/sagehand/ideakeeper/internal/telegram"
)

func textMessage(chatID int64, chatType, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 42,
		Chat:      &telegram.Chat{ID: chatID, Type: chatType},
		From:      &telegram.User{ID: 7, Username: "alice", FirstName: "Alice"},
		Text:      text,
	}
}

func TestProcessTextMessage(t *testing.T) {
	n := NewNormalizer("mybot_official")
	pm := n.Process(textMessage(555, "private", "  hello there \x00\x07 "))

	if !pm.IsValid {
		t.Fatalf("IsValid = false, want true")
	}
	if pm.Text != "hello there" {
		t.Fatalf("Text = %q, want %q", pm.Text, "hello there")
	}
	if pm.Kind != KindText {
		t.Fatalf("Kind = %v, want %v", pm.Kind, KindText)
	}
	if pm.ChatID != 555 || pm.SenderID != 7 || pm.SenderUsername != "alice" {
		t.Fatalf("identity not carried through: %+v", pm)
	}
	if pm.IsGroupChat {
		t.Fatalf("IsGroupChat = true for private chat")
	}
}

func TestProcessKeepsNewlinesAndTabs(t *testing.T) {
	n := NewNormalizer("mybot")
	pm := n.Process(textMessage(1, "private", "line one\nline\ttwo\r"))
	if pm.Text != "line one\nline\ttwo" {
		t.Fatalf("Text = %q", pm.Text)
	}
}

func TestProcessCommandParsing(t *testing.T) {
	n := NewNormalizer("mybot_official")
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
		wantNil  bool
	}{
		{text: "/help", wantName: "help"},
		{text: "/HELP", wantName: "help"},
		{text: "/capture raise enterprise pricing", wantName: "capture", wantArgs: []string{"raise", "enterprise", "pricing"}},
		{text: "/help@mybot_official", wantName: "help"},
		{text: "/help@MyBot_Official extra", wantName: "help", wantArgs: []string{"extra"}},
		{text: "/help@someotherbot", wantNil: true},
		{text: "plain text", wantNil: true},
		{text: "/", wantNil: true},
	}
	for _, tt := range tests {
		pm := n.Process(textMessage(1, "group", tt.text))
		if tt.wantNil {
			if pm.Command != nil {
				t.Fatalf("Process(%q).Command = %+v, want nil", tt.text, pm.Command)
			}
			continue
		}
		if pm.Command == nil {
			t.Fatalf("Process(%q).Command = nil", tt.text)
		}
		if pm.Command.Name != tt.wantName {
			t.Fatalf("Process(%q).Command.Name = %q, want %q", tt.text, pm.Command.Name, tt.wantName)
		}
		if len(tt.wantArgs) > 0 && !reflect.DeepEqual(pm.Command.Args, tt.wantArgs) {
			t.Fatalf("Process(%q).Command.Args = %v, want %v", tt.text, pm.Command.Args, tt.wantArgs)
		}
	}
}

func TestProcessNonTextKinds(t *testing.T) {
	n := NewNormalizer("mybot")
	msg := &telegram.Message{
		Chat:  &telegram.Chat{ID: 9, Type: "private"},
		Photo: []telegram.PhotoSize{{FileID: "p1"}},
	}
	pm := n.Process(msg)
	if pm.Kind != KindPhoto {
		t.Fatalf("Kind = %v, want %v", pm.Kind, KindPhoto)
	}
	if pm.IsValid {
		t.Fatalf("IsValid = true for photo message")
	}

	msg = &telegram.Message{
		Chat:    &telegram.Chat{ID: 9, Type: "private"},
		Sticker: &telegram.Sticker{FileID: "s1"},
		Text:    "   ",
	}
	pm = n.Process(msg)
	if pm.Kind != KindSticker {
		t.Fatalf("Kind = %v, want %v (whitespace text must not win)", pm.Kind, KindSticker)
	}
}

func TestProcessEmptyTextInvalid(t *testing.T) {
	n := NewNormalizer("mybot")
	pm := n.Process(textMessage(3, "private", "  \x01\x02  "))
	if pm.IsValid {
		t.Fatalf("IsValid = true for message that sanitizes to empty")
	}
	if pm.Kind != KindText {
		t.Fatalf("Kind = %v, want %v", pm.Kind, KindText)
	}
}

func TestProcessGroupFlag(t *testing.T) {
	n := NewNormalizer("mybot")
	for _, chatType := range []string{"group", "supergroup"} {
		if pm := n.Process(textMessage(1, chatType, "hi")); !pm.IsGroupChat {
			t.Fatalf("IsGroupChat = false for %s", chatType)
		}
	}
	if pm := n.Process(textMessage(1, "channel", "hi")); pm.IsGroupChat {
		t.Fatalf("IsGroupChat = true for channel")
	}
}
