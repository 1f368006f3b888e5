package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the store at path and applies the
// schema. The parent directory is created with owner-only permissions.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("knowledge: db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("knowledge: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("knowledge: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL DEFAULT 'general',
			priority   TEXT NOT NULL DEFAULT 'medium',
			tags       TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			title, content, tags,
			content='entries', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_insert AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, title, content, tags)
			VALUES (new.rowid, new.title, new.content, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_delete AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, content, tags)
			VALUES ('delete', old.rowid, old.title, old.content, old.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_update AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, content, tags)
			VALUES ('delete', old.rowid, old.title, old.content, old.tags);
			INSERT INTO entries_fts(rowid, title, content, tags)
			VALUES (new.rowid, new.title, new.content, new.tags);
		END`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id       TEXT PRIMARY KEY,
			entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
			due_at   TEXT NOT NULL,
			sent     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(sent, due_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("knowledge: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, entry Entry) (Entry, error) {
	entry.Title = strings.TrimSpace(entry.Title)
	entry.Content = strings.TrimSpace(entry.Content)
	if entry.Content == "" {
		return Entry{}, fmt.Errorf("knowledge: content is required")
	}
	if entry.Title == "" {
		entry.Title = deriveTitle(entry.Content)
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return Entry{}, fmt.Errorf("knowledge: user_id is required")
	}
	if strings.TrimSpace(entry.Category) == "" {
		entry.Category = CategoryGeneral
	}
	if strings.TrimSpace(entry.Priority) == "" {
		entry.Priority = PriorityMedium
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	now := s.now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	tags, err := encodeTags(entry.Tags)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, title, content, category, priority, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Title, entry.Content, entry.Category, entry.Priority,
		tags, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("knowledge: create: %w", err)
	}

	for _, r := range entry.Reminders {
		r.EntryID = entry.ID
		if _, err := s.AddReminder(ctx, r); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, false, fmt.Errorf("knowledge: id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, category, priority, tags, created_at, updated_at
		 FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("knowledge: get: %w", err)
	}
	reminders, err := s.remindersFor(ctx, entry.ID)
	if err != nil {
		return Entry{}, false, err
	}
	entry.Reminders = reminders
	return entry, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	sqlStr := `SELECT id, user_id, title, content, category, priority, tags, created_at, updated_at
		 FROM entries WHERE 1=1`
	var args []any
	if strings.TrimSpace(filter.UserID) != "" {
		sqlStr += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if strings.TrimSpace(filter.Category) != "" {
		sqlStr += " AND category = ?"
		args = append(args, filter.Category)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	sqlStr += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("knowledge: list scan: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Search runs an FTS5 match ranked by bm25 and maps the rank onto a 0..1
// relevance score. Ranking internals are opaque to callers.
func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	sqlStr := `
		SELECT e.id, e.user_id, e.title, e.content, e.category, e.priority, e.tags,
		       e.created_at, e.updated_at, bm25(entries_fts) AS rank
		FROM entries_fts
		JOIN entries e ON e.rowid = entries_fts.rowid
		WHERE entries_fts MATCH ?`
	args := []any{ftsQuery}
	if strings.TrimSpace(opts.UserID) != "" {
		sqlStr += " AND e.user_id = ?"
		args = append(args, opts.UserID)
	}
	if strings.TrimSpace(opts.Category) != "" {
		sqlStr += " AND e.category = ?"
		args = append(args, opts.Category)
	}
	sqlStr += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			entry     Entry
			tagsRaw   string
			createdAt string
			updatedAt string
			rank      float64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Content,
			&entry.Category, &entry.Priority, &tagsRaw, &createdAt, &updatedAt, &rank); err != nil {
			return nil, fmt.Errorf("knowledge: search scan: %w", err)
		}
		if err := fillEntryScanned(&entry, tagsRaw, createdAt, updatedAt); err != nil {
			return nil, err
		}
		score := rankToScore(rank)
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		results = append(results, SearchResult{Entry: entry, Score: score})
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, patch Patch) (Entry, error) {
	patch.ID = strings.TrimSpace(patch.ID)
	if patch.ID == "" {
		return Entry{}, fmt.Errorf("knowledge: id is required")
	}
	existing, ok, err := s.Get(ctx, patch.ID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrNotFound
	}
	if existing.UserID != strings.TrimSpace(patch.UserID) {
		return Entry{}, ErrNotOwner
	}

	if patch.Title != nil {
		existing.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		existing.Content = strings.TrimSpace(*patch.Content)
	}
	if patch.Category != nil {
		existing.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Priority != nil {
		existing.Priority = strings.TrimSpace(*patch.Priority)
	}
	if patch.Tags != nil {
		existing.Tags = *patch.Tags
	}
	existing.UpdatedAt = s.now().UTC()

	tags, err := encodeTags(existing.Tags)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE entries SET title = ?, content = ?, category = ?, priority = ?, tags = ?, updated_at = ?
		 WHERE id = ?`,
		existing.Title, existing.Content, existing.Category, existing.Priority, tags,
		existing.UpdatedAt.Format(timeLayout), existing.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("knowledge: update: %w", err)
	}
	return existing, nil
}

// Delete removes an entry after verifying ownership.
func (s *SQLiteStore) Delete(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("knowledge: id is required")
	}
	existing, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if existing.UserID != strings.TrimSpace(userID) {
		return ErrNotOwner
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("knowledge: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddReminder(ctx context.Context, reminder Reminder) (Reminder, error) {
	reminder.EntryID = strings.TrimSpace(reminder.EntryID)
	if reminder.EntryID == "" {
		return Reminder{}, fmt.Errorf("knowledge: entry_id is required")
	}
	if reminder.DueAt.IsZero() {
		return Reminder{}, fmt.Errorf("knowledge: due_at is required")
	}
	if strings.TrimSpace(reminder.ID) == "" {
		reminder.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, entry_id, due_at, sent) VALUES (?, ?, ?, 0)`,
		reminder.ID, reminder.EntryID, reminder.DueAt.UTC().Format(timeLayout))
	if err != nil {
		return Reminder{}, fmt.Errorf("knowledge: add reminder: %w", err)
	}
	return reminder, nil
}

func (s *SQLiteStore) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, due_at, sent FROM reminders
		 WHERE sent = 0 AND due_at <= ? ORDER BY due_at`,
		now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("knowledge: due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *SQLiteStore) MarkReminderSent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("knowledge: reminder id is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("knowledge: mark reminder sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) remindersFor(ctx context.Context, entryID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, due_at, sent FROM reminders WHERE entry_id = ? ORDER BY due_at`, entryID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry     Entry
		tagsRaw   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Content,
		&entry.Category, &entry.Priority, &tagsRaw, &createdAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	if err := fillEntryScanned(&entry, tagsRaw, createdAt, updatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func fillEntryScanned(entry *Entry, tagsRaw, createdAt, updatedAt string) error {
	if err := json.Unmarshal([]byte(tagsRaw), &entry.Tags); err != nil {
		return fmt.Errorf("knowledge: decode tags: %w", err)
	}
	var err error
	if entry.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return fmt.Errorf("knowledge: parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return fmt.Errorf("knowledge: parse updated_at: %w", err)
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var reminders []Reminder
	for rows.Next() {
		var (
			r     Reminder
			dueAt string
			sent  int
		)
		if err := rows.Scan(&r.ID, &r.EntryID, &dueAt, &sent); err != nil {
			return nil, fmt.Errorf("knowledge: reminder scan: %w", err)
		}
		var err error
		if r.DueAt, err = time.Parse(timeLayout, dueAt); err != nil {
			return nil, fmt.Errorf("knowledge: parse due_at: %w", err)
		}
		r.Sent = sent != 0
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("knowledge: encode tags: %w", err)
	}
	return string(b), nil
}

// buildFTSQuery quotes each term and joins with OR so partial matches still
// rank, instead of FTS5's implicit AND. Interior quotes are doubled, the
// FTS5 escape for a literal quote inside a quoted string.
func buildFTSQuery(query string) string {
	words := strings.Fields(query)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, `"`)
		if w == "" {
			continue
		}
		w = strings.ReplaceAll(w, `"`, `""`)
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// bm25 ranks lower-is-better; fold it onto (0, 1] with higher-is-better.
func rankToScore(rank float64) float64 {
	if rank < 0 {
		rank = -rank
	}
	return 1.0 / (1.0 + rank)
}

func deriveTitle(content string) string {
	const maxTitle = 60
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\n"); idx > 0 {
		title = title[:idx]
	}
	if len(title) > maxTitle {
		title = strings.TrimSpace(title[:maxTitle]) + "..."
	}
	return title
}
