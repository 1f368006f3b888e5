package bot

import (
	"context"
	"log/slog"
	"sync"
)

const (
	trackerMaxIDs    = 1000
	trackerRetainIDs = 100
)

// Sender is the outbound transport surface the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, disablePreview bool) (int64, error)
}

type sentKey struct {
	chatID    int64
	messageID int64
}

// SentTracker remembers which outgoing message ids the bot authored, for
// reply-to-bot detection. Bounded: once more than 1,000 ids are tracked,
// the oldest are evicted and only the most recent 100 are retained.
type SentTracker struct {
	mu    sync.Mutex
	order []sentKey
	set   map[sentKey]struct{}
}

func NewSentTracker() *SentTracker {
	return &SentTracker{set: map[sentKey]struct{}{}}
}

func (t *SentTracker) Record(chatID, messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := sentKey{chatID: chatID, messageID: messageID}
	if _, ok := t.set[key]; ok {
		return
	}
	t.order = append(t.order, key)
	t.set[key] = struct{}{}
	if len(t.order) > trackerMaxIDs {
		cut := len(t.order) - trackerRetainIDs
		for _, old := range t.order[:cut] {
			delete(t.set, old)
		}
		t.order = append([]sentKey(nil), t.order[cut:]...)
	}
}

func (t *SentTracker) WasSentByBot(chatID, messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.set[sentKey{chatID: chatID, messageID: messageID}]
	return ok
}

func (t *SentTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Dispatcher sends outgoing text best-effort: delivery failures are logged
// with chat context, never retried, and never surfaced further.
type Dispatcher struct {
	sender  Sender
	tracker *SentTracker
	logger  *slog.Logger
}

func NewDispatcher(sender Sender, tracker *SentTracker, logger *slog.Logger) *Dispatcher {
	if tracker == nil {
		tracker = NewSentTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, tracker: tracker, logger: logger}
}

func (d *Dispatcher) Tracker() *SentTracker {
	return d.tracker
}

func (d *Dispatcher) Send(ctx context.Context, chatID int64, text string) {
	messageID, err := d.sender.SendMessage(ctx, chatID, text, true)
	if err != nil {
		d.logger.Warn("send failed", "chat_id", chatID, "error", err)
		return
	}
	d.tracker.Record(chatID, messageID)
}
