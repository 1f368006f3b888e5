package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sagehand/ideakeeper/internal/race"
	"github.com/sagehand/ideakeeper/internal/telegram"
	"github.com/sagehand/ideakeeper/knowledge"
	"github.com/sagehand/ideakeeper/llm"
	"github.com/sagehand/ideakeeper/personality"
)

const (
	defaultCompletionBudget = 60 * time.Second
	defaultPollTimeout      = 50 * time.Second
	pollRetryDelay          = 3 * time.Second
	reminderInterval        = time.Hour

	timeoutReply     = "Sorry, that took too long. Please try again."
	panicReply       = "Something went wrong on my side. Please try again."
	emptyTextReply   = "Say something and I'll respond."
	defaultSystemMsg = "You are a helpful assistant that remembers the user's strategic ideas and answers concisely."
)

// Transport is the outbound Telegram surface the bot needs. Satisfied by
// *telegram.API.
type Transport interface {
	Sender
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// UpdateSource is the long-poll side of the transport.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

type Config struct {
	BotID            int64
	BotUsername      string
	SystemPrompt     string
	DashboardURL     string
	CompletionBudget time.Duration
	PollTimeout      time.Duration
	// KnowledgeEnabled is false when the store failed to initialize; the
	// bot then runs in degraded mode and knowledge commands report the
	// feature as unavailable.
	KnowledgeEnabled bool
}

type Options struct {
	Config      Config
	Transport   Transport
	Updates     UpdateSource
	LLM         llm.Client
	Knowledge   knowledge.Store
	Personality *personality.Tracker
	State       *ConversationStore
	Logger      *slog.Logger
}

// Bot wires normalization, addressing, state, retrieval, capture,
// personality and dispatch into the per-message pipeline.
type Bot struct {
	cfg              Config
	transport        Transport
	updates          UpdateSource
	llm              llm.Client
	knowledge        knowledge.Store
	knowledgeEnabled bool

	normalizer  *Normalizer
	detector    *Detector
	dispatcher  *Dispatcher
	state       *ConversationStore
	retriever   *Retriever
	capture     *Capture
	personality *personality.Tracker
	commands    map[string]commandHandler
	logger      *slog.Logger
}

func New(opts Options) *Bot {
	cfg := opts.Config
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemMsg
	}
	if cfg.CompletionBudget <= 0 {
		cfg.CompletionBudget = defaultCompletionBudget
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	state := opts.State
	if state == nil {
		state = NewConversationStore(ConversationStoreOptions{Logger: logger})
	}

	tracker := NewSentTracker()
	b := &Bot{
		cfg:              cfg,
		transport:        opts.Transport,
		updates:          opts.Updates,
		llm:              opts.LLM,
		knowledge:        opts.Knowledge,
		knowledgeEnabled: cfg.KnowledgeEnabled && opts.Knowledge != nil,
		normalizer:       NewNormalizer(cfg.BotUsername),
		detector:         NewDetector(cfg.BotID, cfg.BotUsername, tracker),
		dispatcher:       NewDispatcher(opts.Transport, tracker, logger),
		state:            state,
		personality:      opts.Personality,
		logger:           logger,
	}
	if b.knowledgeEnabled {
		b.retriever = NewRetriever(opts.Knowledge, 0, 0, logger)
		b.capture = NewCapture(opts.Knowledge, logger)
	}
	b.commands = b.routes()
	return b
}

// Run drives the long-poll loop until ctx is cancelled. Updates are
// processed sequentially in arrival order.
func (b *Bot) Run(ctx context.Context) error {
	b.state.StartSweeper(ctx, time.Hour)
	if b.knowledgeEnabled {
		go b.reminderLoop(ctx)
	}

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, next, err := b.updates.GetUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if telegram.IsPollTimeout(err) {
				continue
			}
			b.logger.Warn("update poll failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		offset = next
		for i := range updates {
			b.HandleUpdate(ctx, &updates[i])
		}
	}
}

// HandleUpdate runs one inbound update through the full pipeline. A panic
// in any stage is contained here: it is logged with message context and
// answered with a generic apology, and the loop continues.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) {
	if update == nil || update.Message == nil {
		return
	}
	msg := update.Message

	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if msg.Chat != nil {
				chatID = msg.Chat.ID
			}
			b.logger.Error("panic while handling message",
				"chat_id", chatID,
				"message_id", msg.MessageID,
				"text", contentPrefix(msg.Text, 120),
				"panic", r)
			if chatID != 0 {
				b.dispatcher.Send(ctx, chatID, panicReply)
			}
		}
	}()

	if msg.From != nil && msg.From.IsBot {
		return
	}

	pm := b.normalizer.Process(msg)
	if pm.ChatID == 0 {
		return
	}
	if !pm.IsValid {
		if pm.Kind == KindText && !pm.IsGroupChat {
			b.dispatcher.Send(ctx, pm.ChatID, emptyTextReply)
			return
		}
		b.logger.Debug("ignoring non-text message", "chat_id", pm.ChatID, "kind", pm.Kind)
		return
	}

	// Group messages not directed at the bot are dropped before any state
	// is touched: no conversation record, no activity refresh.
	if pm.IsGroupChat && pm.Command == nil && !b.detector.IsAddressed(msg) {
		return
	}

	b.state.GetOrCreate(pm.ChatID, pm.SenderID, senderDisplayName(pm))

	if pm.Command != nil {
		if reply := b.dispatchCommand(ctx, pm); reply != "" {
			b.dispatcher.Send(ctx, pm.ChatID, reply)
		}
		return
	}

	b.observeSender(pm, msg)
	b.handleChat(ctx, pm)
}

func (b *Bot) observeSender(pm ProcessedMessage, msg *telegram.Message) {
	if b.personality == nil || pm.SenderUsername == "" {
		return
	}
	chatKind := "private"
	if pm.IsGroupChat {
		chatKind = "group"
	}
	b.personality.Observe(pm.SenderUsername, personality.Sample{
		Text:       pm.Text,
		ChatKind:   chatKind,
		ReplyToBot: msg.ReplyTo != nil && msg.ReplyTo.From != nil && msg.ReplyTo.From.ID == b.cfg.BotID,
	})
}

func (b *Bot) handleChat(ctx context.Context, pm ProcessedMessage) {
	// Best effort; a failed typing action never blocks the turn.
	if err := b.transport.SendChatAction(ctx, pm.ChatID, "typing"); err != nil {
		b.logger.Debug("typing action failed", "chat_id", pm.ChatID, "error", err)
	}

	conv, _ := b.state.Get(pm.ChatID)
	messages := b.buildPrompt(ctx, pm, conv.History)

	outcome := race.Run(ctx, b.cfg.CompletionBudget, func(ctx context.Context) (llm.Result, error) {
		return b.llm.Chat(ctx, llm.Request{Messages: messages})
	})
	if outcome.TimedOut {
		b.logger.Warn("completion timed out", "chat_id", pm.ChatID, "budget", b.cfg.CompletionBudget)
		b.state.Append(pm.ChatID, llm.RoleUser, pm.Text)
		b.dispatcher.Send(ctx, pm.ChatID, timeoutReply)
		return
	}
	if outcome.Err != nil {
		b.logger.Error("completion failed", "chat_id", pm.ChatID, "error", outcome.Err)
		b.state.Append(pm.ChatID, llm.RoleUser, pm.Text)
		b.dispatcher.Send(ctx, pm.ChatID, panicReply)
		return
	}

	reply := strings.TrimSpace(outcome.Value.Text)
	if reply == "" {
		reply = "I don't have a good answer for that."
	}
	b.state.Append(pm.ChatID, llm.RoleUser, pm.Text)
	b.state.Append(pm.ChatID, llm.RoleAssistant, reply)

	if b.capture != nil {
		b.capture.Maybe(ctx, pm.ChatID, senderUserID(pm), pm.Text)
	}
	b.dispatcher.Send(ctx, pm.ChatID, reply)
}

// buildPrompt composes the system message (base prompt, retrieved context
// under the chat budget, and any personality directive), the chat history,
// and the current user turn.
func (b *Bot) buildPrompt(ctx context.Context, pm ProcessedMessage, history []llm.Message) []llm.Message {
	var sys strings.Builder
	sys.WriteString(b.cfg.SystemPrompt)

	if b.retriever != nil {
		if block := b.retriever.Context(ctx, pm.Text, senderUserID(pm), ContextBudgetChat); block != "" {
			sys.WriteString("\n\nRelevant saved context:\n")
			sys.WriteString(block)
		}
	}
	if b.personality != nil {
		if directive := b.personality.Directive(pm.SenderUsername); directive != "" {
			sys.WriteString("\n\n")
			sys.WriteString(directive)
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.System(sys.String()))
	messages = append(messages, history...)
	messages = append(messages, llm.User(pm.Text))
	return messages
}

// reminderLoop delivers due reminders to each entry owner's private chat
// and marks them sent. Delivery failures leave the reminder pending for
// the next cycle.
func (b *Bot) reminderLoop(ctx context.Context) {
	ticker := time.NewTicker(reminderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.deliverDueReminders(ctx)
		}
	}
}

func (b *Bot) deliverDueReminders(ctx context.Context) {
	reminders, err := b.knowledge.DueReminders(ctx, time.Now())
	if err != nil {
		b.logger.Warn("due reminder query failed", "error", err)
		return
	}
	for _, reminder := range reminders {
		entry, ok, err := b.knowledge.Get(ctx, reminder.EntryID)
		if err != nil || !ok {
			b.logger.Warn("reminder entry lookup failed", "reminder_id", reminder.ID, "error", err)
			continue
		}
		chatID, err := strconv.ParseInt(entry.UserID, 10, 64)
		if err != nil {
			b.logger.Warn("reminder owner id not deliverable", "reminder_id", reminder.ID, "user_id", entry.UserID)
			continue
		}
		messageID, err := b.transport.SendMessage(ctx, chatID, "Reminder: "+entry.Title, true)
		if err != nil {
			b.logger.Warn("reminder delivery failed", "reminder_id", reminder.ID, "error", err)
			continue
		}
		b.dispatcher.Tracker().Record(chatID, messageID)
		if err := b.knowledge.MarkReminderSent(ctx, reminder.ID); err != nil {
			b.logger.Warn("reminder mark-sent failed", "reminder_id", reminder.ID, "error", err)
		}
	}
}

func senderDisplayName(pm ProcessedMessage) string {
	if pm.SenderUsername != "" {
		return pm.SenderUsername
	}
	return pm.SenderFirstName
}
