package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sagehand/ideakeeper/internal/race"
	"github.com/sagehand/ideakeeper/knowledge"
)

const (
	captureMinLength        = 20
	captureSubstantialChars = 50
	captureSubstantialWords = 8
	captureWriteBudget      = 5 * time.Second

	// Provenance tag on auto-captured entries.
	captureTag = "auto-captured"
)

// Keyword tiers. A single strategic hit is deliberately insufficient: the
// message must also carry business context or be substantial, to avoid
// over-capturing casual chat.
var strategicKeywords = []string{
	"strategy", "strategic", "roadmap", "vision", "positioning", "competitive",
	"market", "pricing", "launch", "partnership", "expansion", "growth",
	"pivot", "acquisition", "enterprise", "monetization", "differentiation",
}

var businessKeywords = []string{
	"customer", "client", "deal", "sales", "product", "quarter", "revenue",
	"budget", "margin", "churn", "pipeline", "contract", "forecast", "investor",
}

// ShouldCapture is the capture decision: minimum length, a strategic
// keyword, and either business context or substantiality.
func ShouldCapture(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < captureMinLength {
		return false
	}
	lower := strings.ToLower(text)
	if !containsKeyword(lower, strategicKeywords) {
		return false
	}
	if containsKeyword(lower, businessKeywords) {
		return true
	}
	return isSubstantial(text)
}

func isSubstantial(text string) bool {
	return len(text) > captureSubstantialChars && len(strings.Fields(text)) > captureSubstantialWords
}

func containsKeyword(lowerText string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(lowerText, keyword) {
			return true
		}
	}
	return false
}

// Capture persists noteworthy inbound messages as knowledge entries with a
// bounded-time write. Failures are logged and skipped; the response turn
// is never aborted by a capture problem.
type Capture struct {
	store  knowledge.Store
	budget time.Duration
	logger *slog.Logger
}

func NewCapture(store knowledge.Store, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{store: store, budget: captureWriteBudget, logger: logger}
}

// Maybe applies ShouldCapture and, on a positive decision, writes the
// entry. Returns whether an entry was created.
func (c *Capture) Maybe(ctx context.Context, chatID int64, userID, text string) bool {
	if c == nil || c.store == nil {
		return false
	}
	if !ShouldCapture(text) {
		return false
	}

	outcome := race.Run(ctx, c.budget, func(ctx context.Context) (knowledge.Entry, error) {
		return c.store.Create(ctx, knowledge.Entry{
			UserID:   userID,
			Content:  strings.TrimSpace(text),
			Category: knowledge.CategoryStrategy,
			Priority: knowledge.PriorityMedium,
			Tags:     []string{captureTag},
		})
	})
	if outcome.TimedOut {
		c.logger.Warn("auto-capture timed out", "chat_id", chatID, "user_id", userID)
		return false
	}
	if outcome.Err != nil {
		c.logger.Warn("auto-capture failed", "chat_id", chatID, "user_id", userID, "error", outcome.Err)
		return false
	}
	c.logger.Debug("auto-captured entry", "chat_id", chatID, "entry_id", outcome.Value.ID)
	return true
}
