package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sagehand/ideakeeper/knowledge"
	"github.com/sagehand/ideakeeper/llm"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

// fakeTransport records outgoing messages and hands out sequential ids.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	actions []int64
	nextID  int64
	sendErr error
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, _ bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return f.nextID, nil
}

func (f *fakeTransport) SendChatAction(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, chatID)
	return nil
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) lastText() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

// fakeLLM replies with a fixed text, optionally after a delay.
type fakeLLM struct {
	reply string
	err   error
	delay time.Duration
	panic bool
}

func (f *fakeLLM) Chat(ctx context.Context, _ llm.Request) (llm.Result, error) {
	if f.panic {
		panic("completion backend exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Text: f.reply}, nil
}

// memStore is an in-memory knowledge.Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	entries   map[string]knowledge.Entry
	reminders map[string]knowledge.Reminder
	seq       int

	searchErr   error
	searchDelay time.Duration
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{
		entries:   map[string]knowledge.Entry{},
		reminders: map[string]knowledge.Reminder{},
	}
}

func (m *memStore) Create(_ context.Context, entry knowledge.Entry) (knowledge.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return knowledge.Entry{}, m.createErr
	}
	m.seq++
	entry.ID = fmt.Sprintf("entry-%d", m.seq)
	if entry.Title == "" {
		entry.Title = entry.Content
		if len(entry.Title) > 60 {
			entry.Title = entry.Title[:60]
		}
	}
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memStore) Get(_ context.Context, id string) (knowledge.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	return entry, ok, nil
}

func (m *memStore) List(_ context.Context, filter knowledge.ListFilter) ([]knowledge.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []knowledge.Entry
	for _, entry := range m.entries {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *memStore) Search(ctx context.Context, query string, opts knowledge.SearchOptions) ([]knowledge.SearchResult, error) {
	if m.searchDelay > 0 {
		select {
		case <-time.After(m.searchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []knowledge.SearchResult
	for _, entry := range m.entries {
		if opts.UserID != "" && entry.UserID != opts.UserID {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Content), strings.ToLower(query)) {
			out = append(out, knowledge.SearchResult{Entry: entry, Score: 0.8})
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, patch knowledge.Patch) (knowledge.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[patch.ID]
	if !ok {
		return knowledge.Entry{}, knowledge.ErrNotFound
	}
	if entry.UserID != patch.UserID {
		return knowledge.Entry{}, knowledge.ErrNotOwner
	}
	if patch.Content != nil {
		entry.Content = *patch.Content
	}
	m.entries[patch.ID] = entry
	return entry, nil
}

func (m *memStore) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	if entry.UserID != userID {
		return knowledge.ErrNotOwner
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) AddReminder(_ context.Context, reminder knowledge.Reminder) (knowledge.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	reminder.ID = fmt.Sprintf("reminder-%d", m.seq)
	m.reminders[reminder.ID] = reminder
	return reminder, nil
}

func (m *memStore) DueReminders(_ context.Context, now time.Time) ([]knowledge.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []knowledge.Reminder
	for _, reminder := range m.reminders {
		if !reminder.Sent && !reminder.DueAt.After(now) {
			out = append(out, reminder)
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reminder, ok := m.reminders[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	reminder.Sent = true
	m.reminders[id] = reminder
	return nil
}

func (m *memStore) Close() error { return nil }

func listFilterFor(userID string) knowledge.ListFilter {
	return knowledge.ListFilter{UserID: userID}
}

// slowCreateStore delays Create past a caller's budget.
type slowCreateStore struct {
	*memStore
	delay time.Duration
}

func (s *slowCreateStore) Create(ctx context.Context, entry knowledge.Entry) (knowledge.Entry, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return knowledge.Entry{}, ctx.Err()
	}
	return s.memStore.Create(ctx, entry)
}
