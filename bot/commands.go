package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sagehand/ideakeeper/knowledge"
)

const (
	featureDisabledReply = "This feature is not enabled right now."
	genericFailureReply  = "Sorry, I could not do that."
)

type commandHandler func(ctx context.Context, pm ProcessedMessage) string

func (b *Bot) routes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":              b.cmdStart,
		"help":               b.cmdHelp,
		"clear":              b.cmdClear,
		"tools":              b.cmdTools,
		"ui":                 b.cmdDashboard,
		"web":                b.cmdDashboard,
		"dashboard":          b.cmdDashboard,
		"ideas":              b.cmdIdeas,
		"capture":            b.cmdCapture,
		"forget":             b.cmdForget,
		"search":             b.cmdSearch,
		"learn":              b.cmdLearn,
		"personality":        b.cmdPersonality,
		"forget_personality": b.cmdForgetPersonality,
		"debug":              b.cmdDebug,
	}
}

// dispatchCommand routes a parsed command to its handler. Handlers always
// produce a user-visible reply, success or failure.
func (b *Bot) dispatchCommand(ctx context.Context, pm ProcessedMessage) string {
	handler, ok := b.commands[pm.Command.Name]
	if !ok {
		return fmt.Sprintf("Unknown command /%s. See /help for available commands.", pm.Command.Name)
	}
	return handler(ctx, pm)
}

func (b *Bot) cmdStart(_ context.Context, pm ProcessedMessage) string {
	name := pm.SenderFirstName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! I keep track of your strategic ideas. "+
		"Talk to me or use /capture to save something important. /help lists everything I can do.", name)
}

func (b *Bot) cmdHelp(_ context.Context, _ ProcessedMessage) string {
	return strings.Join([]string{
		"Commands:",
		"/start - introduction",
		"/help - this message",
		"/clear - forget this conversation's history",
		"/tools - what I can do",
		"/ui - dashboard link (also /web, /dashboard)",
		"/ideas - recent saved entries",
		"/capture <text> - save an idea",
		"/search <query> - search saved entries",
		"/forget <id> - remove an entry you own",
		"/learn add|remove <username> - manage personality tracking",
		"/personality [<username>] - show a tracked profile",
		"/forget_personality <username> - erase a profile",
		"/debug [mention <text>] - diagnostics",
	}, "\n")
}

func (b *Bot) cmdClear(_ context.Context, pm ProcessedMessage) string {
	if b.state.Clear(pm.ChatID) {
		return "Conversation history cleared."
	}
	return "Nothing to clear."
}

func (b *Bot) cmdTools(_ context.Context, _ ProcessedMessage) string {
	lines := []string{
		"I can:",
		"- chat with context from your saved knowledge",
		"- auto-capture strategic insights from conversation",
		"- save, search and manage entries (/capture, /search, /ideas, /forget)",
		"- adapt my tone to tracked senders (/learn)",
	}
	if !b.knowledgeEnabled {
		lines = append(lines, "(knowledge features are currently disabled)")
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdDashboard(_ context.Context, _ ProcessedMessage) string {
	if strings.TrimSpace(b.cfg.DashboardURL) == "" {
		return "The dashboard is not configured."
	}
	return "Dashboard: " + b.cfg.DashboardURL
}

func (b *Bot) cmdIdeas(ctx context.Context, pm ProcessedMessage) string {
	if !b.knowledgeEnabled {
		return featureDisabledReply
	}
	entries, err := b.knowledge.List(ctx, knowledge.ListFilter{
		UserID: senderUserID(pm),
		Limit:  10,
	})
	if err != nil {
		b.logger.Warn("ideas list failed", "chat_id", pm.ChatID, "error", err)
		return genericFailureReply
	}
	if len(entries) == 0 {
		return "No saved entries yet. Use /capture <text> to add one."
	}
	var lines []string
	for i, entry := range entries {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (%s)", i+1, strings.ToUpper(entry.Category), entry.Title, entry.ID))
	}
	return "Recent entries:\n" + strings.Join(lines, "\n")
}

func (b *Bot) cmdCapture(ctx context.Context, pm ProcessedMessage) string {
	if !b.knowledgeEnabled {
		return featureDisabledReply
	}
	if len(pm.Command.Args) < 1 {
		return "Usage: /capture <text to save>"
	}
	text := strings.Join(pm.Command.Args, " ")
	entry, err := b.knowledge.Create(ctx, knowledge.Entry{
		UserID:   senderUserID(pm),
		Content:  text,
		Category: knowledge.CategoryStrategy,
		Priority: knowledge.PriorityMedium,
		Tags:     []string{"captured"},
	})
	if err != nil {
		b.logger.Warn("capture command failed", "chat_id", pm.ChatID, "error", err)
		return genericFailureReply
	}
	return fmt.Sprintf("Captured. Entry id: %s", entry.ID)
}

func (b *Bot) cmdForget(ctx context.Context, pm ProcessedMessage) string {
	if !b.knowledgeEnabled {
		return featureDisabledReply
	}
	if len(pm.Command.Args) != 1 {
		return "Usage: /forget <entry id>"
	}
	id := pm.Command.Args[0]
	err := b.knowledge.Delete(ctx, id, senderUserID(pm))
	switch {
	case err == nil:
		return "Entry removed."
	case errors.Is(err, knowledge.ErrNotOwner):
		// No information disclosure about the entry's existence.
		b.logger.Warn("forget rejected: ownership violation",
			"chat_id", pm.ChatID, "user_id", senderUserID(pm), "entry_id", id)
		return "Could not remove that entry."
	case errors.Is(err, knowledge.ErrNotFound):
		return "Could not remove that entry."
	default:
		b.logger.Warn("forget failed", "chat_id", pm.ChatID, "error", err)
		return genericFailureReply
	}
}

func (b *Bot) cmdSearch(ctx context.Context, pm ProcessedMessage) string {
	if !b.knowledgeEnabled {
		return featureDisabledReply
	}
	if len(pm.Command.Args) < 1 {
		return "Usage: /search <query>"
	}
	query := strings.Join(pm.Command.Args, " ")
	results, err := b.knowledge.Search(ctx, query, knowledge.SearchOptions{
		UserID: senderUserID(pm),
		Limit:  5,
	})
	if err != nil {
		b.logger.Warn("search failed", "chat_id", pm.ChatID, "error", err)
		return genericFailureReply
	}
	if len(results) == 0 {
		return "No matching entries."
	}
	return "Matches:\n" + RenderContext(results, ContextBudgetCommand)
}

func (b *Bot) cmdLearn(_ context.Context, pm ProcessedMessage) string {
	args := pm.Command.Args
	if len(args) != 2 {
		return "Usage: /learn add|remove <username>"
	}
	username := strings.TrimPrefix(args[1], "@")
	switch strings.ToLower(args[0]) {
	case "add":
		if err := b.personality.Track(username); err != nil {
			return genericFailureReply
		}
		return fmt.Sprintf("Now learning @%s's style.", username)
	case "remove":
		if err := b.personality.Untrack(username); err != nil {
			return genericFailureReply
		}
		return fmt.Sprintf("Stopped learning @%s's style.", username)
	default:
		return "Usage: /learn add|remove <username>"
	}
}

func (b *Bot) cmdPersonality(_ context.Context, pm ProcessedMessage) string {
	username := pm.SenderUsername
	if len(pm.Command.Args) >= 1 {
		username = pm.Command.Args[0]
	}
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return "Usage: /personality [<username>]"
	}
	profile, ok := b.personality.Profile(username)
	if !ok {
		return fmt.Sprintf("No profile for @%s.", username)
	}
	lines := []string{
		fmt.Sprintf("Profile for @%s:", username),
		fmt.Sprintf("samples: %d (minimum %d for traits)", profile.SampleCount(), b.personality.MinSamples()),
	}
	if profile.Traits == nil {
		lines = append(lines, "traits: not derived yet")
	} else {
		t := profile.Traits
		lines = append(lines,
			"style: "+t.CommunicationStyle,
			"register: "+t.Casualness,
			"technical depth: "+t.TechnicalDepth,
			"humor: "+t.Humor,
		)
		if len(t.Vocabulary) > 0 {
			lines = append(lines, "vocabulary: "+strings.Join(t.Vocabulary, ", "))
		}
		if len(t.Topics) > 0 {
			lines = append(lines, "topics: "+strings.Join(t.Topics, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdForgetPersonality(_ context.Context, pm ProcessedMessage) string {
	if len(pm.Command.Args) != 1 {
		return "Usage: /forget_personality <username>"
	}
	username := strings.TrimPrefix(pm.Command.Args[0], "@")
	if err := b.personality.Clear(username); err != nil {
		return genericFailureReply
	}
	return fmt.Sprintf("Forgot everything about @%s.", username)
}

func (b *Bot) cmdDebug(_ context.Context, pm ProcessedMessage) string {
	args := pm.Command.Args
	if len(args) >= 2 && strings.ToLower(args[0]) == "mention" {
		return b.debugMention(strings.Join(args[1:], " "))
	}
	return strings.Join([]string{
		"Debug:",
		fmt.Sprintf("bot: @%s (id %d)", b.cfg.BotUsername, b.cfg.BotID),
		fmt.Sprintf("active conversations: %d", b.state.Len()),
		fmt.Sprintf("tracked bot messages: %d", b.dispatcher.Tracker().Len()),
		fmt.Sprintf("knowledge store enabled: %v", b.knowledgeEnabled),
		fmt.Sprintf("tracked personalities: %d", len(b.personality.Tracked())),
	}, "\n")
}

// debugMention reports how each addressing strategy scores a given text.
func (b *Bot) debugMention(text string) string {
	lower := strings.ToLower(text)
	variants := usernameVariants(b.cfg.BotUsername)
	return strings.Join([]string{
		fmt.Sprintf("Mention check for: %q", text),
		fmt.Sprintf("@username substring: %v", mentionsUsername(lower, nil, strings.ToLower(b.cfg.BotUsername))),
		fmt.Sprintf("variant fallback (%s): %v", strings.Join(variants, ", "), matchesVariant(lower, variants)),
		fmt.Sprintf("greeting heuristic: %v", isDirectGreeting(lower, variants)),
	}, "\n")
}

func senderUserID(pm ProcessedMessage) string {
	return strconv.FormatInt(pm.SenderID, 10)
}
