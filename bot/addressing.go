package bot

import (
	"strings"

	"github.com/sagehand/ideakeeper/internal/telegram"
)

// BotMessageLookup answers whether a (chat, message) pair was authored by
// the bot. Satisfied by *SentTracker.
type BotMessageLookup interface {
	WasSentByBot(chatID, messageID int64) bool
}

// Detector decides whether a group-chat message is directed at the bot.
// Each strategy is an independently testable predicate; any single hit is
// enough. Messages that hit none are ignored entirely.
type Detector struct {
	botID       int64
	botUsername string
	variants    []string
	sent        BotMessageLookup
}

func NewDetector(botID int64, botUsername string, sent BotMessageLookup) *Detector {
	username := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(botUsername, "@")))
	return &Detector{
		botID:       botID,
		botUsername: username,
		variants:    usernameVariants(username),
		sent:        sent,
	}
}

func (d *Detector) IsAddressed(msg *telegram.Message) bool {
	if msg == nil {
		return false
	}
	if d.isReplyToBot(msg) {
		return true
	}
	text := strings.ToLower(msg.Text)
	if mentionsUsername(text, msg.Entities, d.botUsername) {
		return true
	}
	if matchesVariant(text, d.variants) {
		return true
	}
	return isDirectGreeting(text, d.variants)
}

func (d *Detector) isReplyToBot(msg *telegram.Message) bool {
	reply := msg.ReplyTo
	if reply == nil {
		return false
	}
	if reply.From != nil && reply.From.ID == d.botID {
		return true
	}
	if d.sent != nil && msg.Chat != nil {
		return d.sent.WasSentByBot(msg.Chat.ID, reply.MessageID)
	}
	return false
}

// mentionsUsername matches the bot's @username case-insensitively, either
// as a literal substring or as a mention entity covering the same span.
func mentionsUsername(lowerText string, entities []telegram.Entity, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	needle := "@" + botUsername
	if strings.Contains(lowerText, needle) {
		return true
	}
	for _, entity := range entities {
		if entity.Type != "mention" {
			continue
		}
		span := entitySpan(lowerText, entity)
		if span == needle {
			return true
		}
	}
	return false
}

// entitySpan extracts the text an entity covers. Entity offsets and
// lengths count UTF-16 code units, not bytes or runes, so astral
// characters (emoji) before the entity occupy two units each.
func entitySpan(lowerText string, entity telegram.Entity) string {
	if entity.Offset < 0 || entity.Length <= 0 {
		return ""
	}
	end := entity.Offset + entity.Length
	var b strings.Builder
	pos := 0
	for _, r := range lowerText {
		if pos >= end {
			break
		}
		if pos >= entity.Offset {
			b.WriteRune(r)
		}
		pos += utf16Units(r)
	}
	if pos < end {
		return ""
	}
	return b.String()
}

func utf16Units(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// usernameVariants decomposes a bot username into fallback match forms:
// full form, underscore-stripped, "_bot" suffix stripped, stripped with the
// suffix removed, and individual name segments. Variants shorter than
// three characters never match.
func usernameVariants(botUsername string) []string {
	if botUsername == "" {
		return nil
	}
	seen := map[string]bool{}
	var variants []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if len(v) >= 3 && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(botUsername)
	stripped := strings.ReplaceAll(botUsername, "_", "")
	add(stripped)
	noSuffix := strings.TrimSuffix(botUsername, "_bot")
	add(noSuffix)
	add(strings.ReplaceAll(noSuffix, "_", ""))
	for _, segment := range strings.Split(botUsername, "_") {
		add(segment)
	}
	return variants
}

func matchesVariant(lowerText string, variants []string) bool {
	for _, variant := range variants {
		if strings.Contains(lowerText, variant) {
			return true
		}
	}
	return false
}

var greetingTokens = []string{
	"hey", "hi", "hello", "yo", "sup", "what's up", "how are you",
}

var botWords = []string{"bot", "ai", "assistant"}

// isDirectGreeting: message opens with a greeting and additionally names
// the bot, either generically (bot/ai/assistant) or via a username variant.
// The greeting must be a whole opening word: "hilarious" is not "hi".
func isDirectGreeting(lowerText string, variants []string) bool {
	trimmed := strings.TrimSpace(lowerText)
	opensWithGreeting := false
	for _, token := range greetingTokens {
		if !strings.HasPrefix(trimmed, token) {
			continue
		}
		rest := trimmed[len(token):]
		if rest == "" || !isWordChar(rest[0]) {
			opensWithGreeting = true
			break
		}
	}
	if !opensWithGreeting {
		return false
	}
	for _, word := range botWords {
		if containsWord(trimmed, word) {
			return true
		}
	}
	return matchesVariant(trimmed, variants)
}

// containsWord matches whole words only, so "ai" does not fire on "said".
func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
