package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sagehand/ideakeeper/internal/race"
	"github.com/sagehand/ideakeeper/knowledge"
)

const (
	defaultRetrieveLimit  = 3
	defaultRetrieveBudget = 5 * time.Second
	// Character budgets for the rendered context block; chat turns use the
	// smaller one, command output the larger.
	ContextBudgetChat    = 500
	ContextBudgetCommand = 1000

	ellipsisMarker = "..."
)

// Retriever assembles a knowledge-context block for a message under a
// bounded time budget. On timeout or store failure it degrades to an
// empty block so the turn proceeds without context.
type Retriever struct {
	store  knowledge.Store
	limit  int
	budget time.Duration
	logger *slog.Logger
}

func NewRetriever(store knowledge.Store, limit int, budget time.Duration, logger *slog.Logger) *Retriever {
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}
	if budget <= 0 {
		budget = defaultRetrieveBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, limit: limit, budget: budget, logger: logger}
}

func (r *Retriever) Context(ctx context.Context, query, userID string, maxChars int) string {
	if r == nil || r.store == nil {
		return ""
	}
	if strings.TrimSpace(query) == "" {
		return ""
	}

	outcome := race.Run(ctx, r.budget, func(ctx context.Context) ([]knowledge.SearchResult, error) {
		return r.store.Search(ctx, query, knowledge.SearchOptions{
			UserID: userID,
			Limit:  r.limit,
		})
	})
	if outcome.TimedOut {
		r.logger.Warn("context retrieval timed out", "user_id", userID, "budget", r.budget)
		return ""
	}
	if outcome.Err != nil {
		r.logger.Warn("context retrieval failed", "user_id", userID, "error", outcome.Err)
		return ""
	}
	return RenderContext(outcome.Value, maxChars)
}

// RenderContext formats ranked results as numbered lines and truncates the
// block to maxChars, appending an ellipsis marker when content was cut.
func RenderContext(results []knowledge.SearchResult, maxChars int) string {
	if len(results) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = ContextBudgetChat
	}
	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. [%s] %s (%s) - %s",
			i+1,
			strings.ToUpper(result.Category),
			result.Title,
			result.Priority,
			contentPrefix(result.Content, 120))
	}
	return truncateWithEllipsis(b.String(), maxChars)
}

// Budgets count characters, not bytes: slicing happens on rune
// boundaries so multi-byte text is never cut mid-rune.
func contentPrefix(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func truncateWithEllipsis(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	cut := maxChars - len(ellipsisMarker)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsisMarker
}
