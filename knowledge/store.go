// Package knowledge is the durable insight store: CRUD plus ranked
// similarity search, backed by SQLite with FTS5.
package knowledge

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("knowledge: entry not found")
	// ErrNotOwner is returned when a mutation targets an entry owned by a
	// different user. Callers must not disclose whether the entry exists.
	ErrNotOwner = errors.New("knowledge: entry not owned by requesting user")
)

type Store interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, bool, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
	Update(ctx context.Context, patch Patch) (Entry, error)
	Delete(ctx context.Context, id, userID string) error
	AddReminder(ctx context.Context, reminder Reminder) (Reminder, error)
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id string) error
	Close() error
}
