package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sagehand/ideakeeper/llm"
)

const defaultRetention = time.Hour

// Conversation is the per-chat mutable record: history, last activity,
// and the first-seen user identity (set once, never overwritten).
type Conversation struct {
	ChatID       int64
	History      []llm.Message
	LastActivity time.Time
	UserID       int64
	UserName     string
}

type ConversationStoreOptions struct {
	Retention time.Duration
	// MaxHistory caps history length per chat; 0 means unbounded.
	MaxHistory int
	Logger     *slog.Logger
	Now        func() time.Time
}

// ConversationStore keys conversation state by chat id. A mutex guards the
// map because the hourly sweep runs on its own goroutine, unlike the
// single-threaded event loop the structure was originally designed for.
type ConversationStore struct {
	mu         sync.Mutex
	items      map[int64]*Conversation
	retention  time.Duration
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time
}

func NewConversationStore(opts ConversationStoreOptions) *ConversationStore {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ConversationStore{
		items:      map[int64]*Conversation{},
		retention:  opts.Retention,
		maxHistory: opts.MaxHistory,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// GetOrCreate returns a snapshot of the chat's state, creating it if
// needed. Always refreshes lastActivity; fills user identity only when
// previously unset.
func (s *ConversationStore) GetOrCreate(chatID int64, userID int64, userName string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.items[chatID]
	if conv == nil {
		conv = &Conversation{ChatID: chatID}
		s.items[chatID] = conv
	}
	conv.LastActivity = s.now()
	if conv.UserID == 0 && userID != 0 {
		conv.UserID = userID
	}
	if conv.UserName == "" && userName != "" {
		conv.UserName = userName
	}
	return s.snapshotLocked(conv)
}

func (s *ConversationStore) Get(chatID int64) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.items[chatID]
	if conv == nil {
		return Conversation{}, false
	}
	return s.snapshotLocked(conv), true
}

func (s *ConversationStore) snapshotLocked(conv *Conversation) Conversation {
	out := *conv
	out.History = append([]llm.Message(nil), conv.History...)
	return out
}

// Append records a history entry for an existing chat. Commands are never
// appended, so callers decide what counts as chat history.
func (s *ConversationStore) Append(chatID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.items[chatID]
	if conv == nil {
		return
	}
	conv.History = append(conv.History, llm.Message{Role: role, Content: content})
	if s.maxHistory > 0 && len(conv.History) > s.maxHistory {
		conv.History = append([]llm.Message(nil), conv.History[len(conv.History)-s.maxHistory:]...)
	}
}

func (s *ConversationStore) Clear(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[chatID]; !ok {
		return false
	}
	delete(s.items, chatID)
	return true
}

func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep removes every conversation whose lastActivity is strictly older
// than the retention window and reports how many were removed.
func (s *ConversationStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for chatID, conv := range s.items {
		if now.Sub(conv.LastActivity) > s.retention {
			delete(s.items, chatID)
			removed++
		}
	}
	return removed
}

// StartSweeper runs the recurring sweep until ctx is cancelled. It runs
// independently of message handling and never blocks it.
func (s *ConversationStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(s.now()); removed > 0 {
					s.logger.Debug("swept stale conversations", "removed", removed)
				}
			}
		}
	}()
}
