package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sagehand/ideakeeper/internal/telegram"
	"github.com/sagehand/ideakeeper/knowledge"
	"github.com/sagehand/ideakeeper/llm"
)

func updateWith(msg *telegram.Message) *telegram.Update {
	return &telegram.Update{UpdateID: 1, Message: msg}
}

func privateText(chatID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 42,
		Chat:      &telegram.Chat{ID: chatID, Type: "private"},
		From:      &telegram.User{ID: 7, Username: "alice", FirstName: "Alice"},
		Text:      text,
	}
}

func groupText(chatID int64, text string) *telegram.Message {
	msg := privateText(chatID, text)
	msg.Chat.Type = "group"
	return msg
}

func TestHandleUpdateChatTurn(t *testing.T) {
	store := newMemStore()
	b, transport := newTestBot(t, store)
	b.llm = &fakeLLM{reply: "here is my answer"}

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "what should we focus on?")))

	if got := transport.lastText(); got != "here is my answer" {
		t.Fatalf("reply = %q", got)
	}
	conv, ok := b.state.Get(555)
	if !ok {
		t.Fatalf("no conversation recorded")
	}
	if len(conv.History) != 2 {
		t.Fatalf("len(History) = %d, want 2 (user + assistant)", len(conv.History))
	}
	if conv.History[0].Role != llm.RoleUser || conv.History[1].Role != llm.RoleAssistant {
		t.Fatalf("history roles wrong: %+v", conv.History)
	}
	if len(transport.actions) == 0 {
		t.Fatalf("no typing action sent")
	}
}

func TestHandleUpdateCommandSkipsHistory(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "/help")))

	if !strings.Contains(transport.lastText(), "Commands:") {
		t.Fatalf("reply = %q, want help text", transport.lastText())
	}
	conv, ok := b.state.Get(555)
	if !ok {
		t.Fatalf("command did not touch conversation state")
	}
	if len(conv.History) != 0 {
		t.Fatalf("command appended to history: %+v", conv.History)
	}
	if conv.UserID != 7 || conv.UserName != "alice" {
		t.Fatalf("identity = (%d, %q), want (7, alice)", conv.UserID, conv.UserName)
	}
	if conv.LastActivity.IsZero() {
		t.Fatalf("command did not refresh lastActivity")
	}
}

func TestHandleUpdateUnaddressedGroupMessageIgnored(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	b.HandleUpdate(context.Background(), updateWith(groupText(100, "talking amongst ourselves")))

	if len(transport.messages()) != 0 {
		t.Fatalf("bot replied to unaddressed group message")
	}
	if b.state.Len() != 0 {
		t.Fatalf("unaddressed group message created conversation state")
	}
}

func TestHandleUpdateAddressedGroupMessage(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())
	b.llm = &fakeLLM{reply: "hi alice"}

	b.HandleUpdate(context.Background(), updateWith(groupText(100, "hey @mybot_official what's up")))

	if transport.lastText() != "hi alice" {
		t.Fatalf("reply = %q", transport.lastText())
	}
	if b.state.Len() != 1 {
		t.Fatalf("addressed group message did not create state")
	}
}

func TestHandleUpdateGroupCommandBypassesAddressing(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	b.HandleUpdate(context.Background(), updateWith(groupText(100, "/help")))

	if !strings.Contains(transport.lastText(), "Commands:") {
		t.Fatalf("group command not handled: %q", transport.lastText())
	}
}

func TestHandleUpdateNonTextSilentlyIgnored(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	msg := &telegram.Message{
		Chat:    &telegram.Chat{ID: 555, Type: "private"},
		From:    &telegram.User{ID: 7},
		Sticker: &telegram.Sticker{FileID: "s1"},
	}
	b.HandleUpdate(context.Background(), updateWith(msg))

	if len(transport.messages()) != 0 {
		t.Fatalf("bot replied to a sticker")
	}
}

func TestHandleUpdateEmptyTextPromptsInPrivate(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "  \x01  ")))

	if transport.lastText() != emptyTextReply {
		t.Fatalf("reply = %q, want %q", transport.lastText(), emptyTextReply)
	}
}

func TestHandleUpdateIgnoresOtherBots(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())

	msg := privateText(555, "beep boop")
	msg.From.IsBot = true
	b.HandleUpdate(context.Background(), updateWith(msg))

	if len(transport.messages()) != 0 {
		t.Fatalf("bot replied to another bot")
	}
}

func TestHandleUpdateCompletionTimeout(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())
	b.cfg.CompletionBudget = 20 * time.Millisecond
	b.llm = &fakeLLM{reply: "late", delay: 200 * time.Millisecond}

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "slow question")))

	if transport.lastText() != timeoutReply {
		t.Fatalf("reply = %q, want %q", transport.lastText(), timeoutReply)
	}
}

func TestHandleUpdatePanicRecovery(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())
	b.llm = &fakeLLM{panic: true}

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "trigger it")))

	if transport.lastText() != panicReply {
		t.Fatalf("reply = %q, want %q", transport.lastText(), panicReply)
	}

	// The next message must be handled normally.
	b.llm = &fakeLLM{reply: "recovered"}
	b.HandleUpdate(context.Background(), updateWith(privateText(555, "still there?")))
	if transport.lastText() != "recovered" {
		t.Fatalf("reply after panic = %q", transport.lastText())
	}
}

func TestHandleUpdateAutoCapture(t *testing.T) {
	store := newMemStore()
	b, _ := newTestBot(t, store)
	b.llm = &fakeLLM{reply: "noted"}

	b.HandleUpdate(context.Background(), updateWith(
		privateText(555, "our pricing for enterprise customers should go up next quarter")))

	entries, _ := store.List(context.Background(), listFilterFor("7"))
	if len(entries) != 1 {
		t.Fatalf("auto-capture wrote %d entries, want 1", len(entries))
	}
	if entries[0].Tags[0] != "auto-captured" {
		t.Fatalf("Tags = %v", entries[0].Tags)
	}
}

func TestHandleUpdateObservesTrackedSender(t *testing.T) {
	b, _ := newTestBot(t, newMemStore())
	b.llm = &fakeLLM{reply: "ok"}
	if err := b.personality.Track("alice"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "shipping the beta this week")))

	profile, ok := b.personality.Profile("alice")
	if !ok || profile.SampleCount() != 1 {
		t.Fatalf("sample not recorded for tracked sender: ok=%v profile=%+v", ok, profile)
	}
}

func TestHandleUpdateRepliesTracked(t *testing.T) {
	b, transport := newTestBot(t, newMemStore())
	b.llm = &fakeLLM{reply: "tracked reply"}

	b.HandleUpdate(context.Background(), updateWith(privateText(555, "hello")))

	msgs := transport.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if !b.dispatcher.Tracker().WasSentByBot(555, 1) {
		t.Fatalf("outgoing reply id not tracked")
	}
}

func TestDeliverDueReminders(t *testing.T) {
	store := newMemStore()
	entry, _ := store.Create(context.Background(), knowledge.Entry{
		UserID: "555", Title: "Follow up with investor", Content: "follow up",
	})
	store.AddReminder(context.Background(), knowledge.Reminder{
		EntryID: entry.ID,
		DueAt:   time.Now().Add(-time.Minute),
	})
	b, transport := newTestBot(t, store)

	b.deliverDueReminders(context.Background())

	if !strings.Contains(transport.lastText(), "Follow up with investor") {
		t.Fatalf("reminder text = %q", transport.lastText())
	}
	due, _ := store.DueReminders(context.Background(), time.Now())
	if len(due) != 0 {
		t.Fatalf("%d reminders still due after delivery", len(due))
	}
}
