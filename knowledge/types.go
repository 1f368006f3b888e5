package knowledge

import "time"

const (
	CategoryGeneral  = "general"
	CategoryStrategy = "strategy"
	CategorySales    = "sales"
	CategoryProduct  = "product"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Entry is one persisted insight, owned by the user that created it.
type Entry struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Category  string     `json:"category"`
	Priority  string     `json:"priority"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Reminders []Reminder `json:"reminders,omitempty"`
}

type Reminder struct {
	ID      string    `json:"id"`
	EntryID string    `json:"entry_id"`
	DueAt   time.Time `json:"due_at"`
	Sent    bool      `json:"sent"`
}

// SearchResult pairs an entry with the ranked-list relevance score. Higher
// is more relevant; the ranking itself is opaque to callers.
type SearchResult struct {
	Entry
	Score float64 `json:"score"`
}

type SearchOptions struct {
	UserID    string
	Limit     int
	Threshold float64
	Category  string
}

type ListFilter struct {
	UserID   string
	Category string
	Limit    int
}

// Patch carries a partial update. Nil fields are left untouched. UserID is
// the requesting user and is checked against the entry's owner.
type Patch struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Category *string   `json:"category,omitempty"`
	Priority *string   `json:"priority,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}
