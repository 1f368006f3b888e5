package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sagehand/ideakeeper/knowledge"
)

func TestRetrieverContext(t *testing.T) {
	store := newMemStore()
	store.Create(context.Background(), knowledge.Entry{
		UserID:   "7",
		Title:    "Enterprise pricing",
		Content:  "raise enterprise pricing 20% next quarter",
		Category: knowledge.CategoryStrategy,
		Priority: knowledge.PriorityHigh,
	})
	r := NewRetriever(store, 0, 0, nil)

	block := r.Context(context.Background(), "pricing", "7", ContextBudgetChat)
	if block == "" {
		t.Fatalf("Context returned empty block for matching query")
	}
	if !strings.Contains(block, "[STRATEGY]") {
		t.Fatalf("block missing category tag: %q", block)
	}
	if !strings.Contains(block, "Enterprise pricing") {
		t.Fatalf("block missing title: %q", block)
	}
}

func TestRetrieverEmptyQuery(t *testing.T) {
	r := NewRetriever(newMemStore(), 0, 0, nil)
	if got := r.Context(context.Background(), "   ", "7", ContextBudgetChat); got != "" {
		t.Fatalf("Context = %q for blank query, want empty", got)
	}
}

func TestRetrieverDegradesOnError(t *testing.T) {
	store := newMemStore()
	store.searchErr = errors.New("index corrupted")
	r := NewRetriever(store, 0, 0, nil)

	if got := r.Context(context.Background(), "pricing", "7", ContextBudgetChat); got != "" {
		t.Fatalf("Context = %q on store error, want empty", got)
	}
}

func TestRetrieverDegradesOnTimeout(t *testing.T) {
	store := newMemStore()
	store.searchDelay = 200 * time.Millisecond
	r := NewRetriever(store, 3, 20*time.Millisecond, nil)

	start := time.Now()
	got := r.Context(context.Background(), "pricing", "7", ContextBudgetChat)
	if got != "" {
		t.Fatalf("Context = %q on timeout, want empty", got)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("Context blocked %v past its budget", elapsed)
	}
}

func TestRenderContextTruncation(t *testing.T) {
	results := []knowledge.SearchResult{
		{Entry: knowledge.Entry{
			Title:    "Long entry",
			Category: "strategy",
			Priority: "high",
			Content:  strings.Repeat("expansion plans in every region ", 30),
		}},
		{Entry: knowledge.Entry{
			Title:    "Another entry",
			Category: "sales",
			Priority: "medium",
			Content:  strings.Repeat("pipeline coverage review notes ", 30),
		}},
	}

	block := RenderContext(results, 120)
	if len(block) > 120 {
		t.Fatalf("len(block) = %d, want <= 120", len(block))
	}
	if !strings.HasSuffix(block, ellipsisMarker) {
		t.Fatalf("truncated block missing ellipsis: %q", block)
	}
}

func TestRenderContextMultiByteStaysValid(t *testing.T) {
	results := []knowledge.SearchResult{
		{Entry: knowledge.Entry{
			Title:    strings.Repeat("日", 40),
			Category: "strategy",
			Priority: "high",
			Content:  strings.Repeat("日本語の戦略", 60),
		}},
		{Entry: knowledge.Entry{
			Title:    strings.Repeat("日", 40),
			Category: "sales",
			Priority: "medium",
			Content:  strings.Repeat("価格改定", 80),
		}},
	}

	block := RenderContext(results, 120)
	if !utf8.ValidString(block) {
		t.Fatalf("truncated block is not valid UTF-8: %q", block)
	}
	if n := utf8.RuneCountInString(block); n > 120 {
		t.Fatalf("rune count = %d, want <= 120", n)
	}
	if !strings.HasSuffix(block, ellipsisMarker) {
		t.Fatalf("truncated block missing ellipsis: %q", block)
	}
}

func TestContentPrefixRuneBoundary(t *testing.T) {
	prefix := contentPrefix("x"+strings.Repeat("日", 200), 120)
	if !utf8.ValidString(prefix) {
		t.Fatalf("prefix is not valid UTF-8: %q", prefix)
	}
	if n := utf8.RuneCountInString(prefix); n > 120 {
		t.Fatalf("rune count = %d, want <= 120", n)
	}
}

func TestRenderContextNumbering(t *testing.T) {
	results := []knowledge.SearchResult{
		{Entry: knowledge.Entry{Title: "First", Category: "general", Priority: "low", Content: "a"}},
		{Entry: knowledge.Entry{Title: "Second", Category: "general", Priority: "low", Content: "b"}},
	}
	block := RenderContext(results, 1000)
	lines := strings.Split(block, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "1. ") || !strings.HasPrefix(lines[1], "2. ") {
		t.Fatalf("numbering wrong: %v", lines)
	}
}

func TestRenderContextEmpty(t *testing.T) {
	if got := RenderContext(nil, 500); got != "" {
		t.Fatalf("RenderContext(nil) = %q, want empty", got)
	}
}
