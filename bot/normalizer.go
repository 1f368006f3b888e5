package bot

import (
	"strings"
	"unicode"

	"github.com/sagehand/ideakeeper/internal/telegram"
)

// Normalizer converts raw Telegram messages into ProcessedMessages:
// sanitized text, detected command, message kind, group flag.
type Normalizer struct {
	botUsername string
}

func NewNormalizer(botUsername string) *Normalizer {
	return &Normalizer{botUsername: strings.ToLower(strings.TrimSpace(strings.TrimPrefix(botUsername, "@")))}
}

func (n *Normalizer) Process(msg *telegram.Message) ProcessedMessage {
	out := ProcessedMessage{}
	if msg == nil || msg.Chat == nil {
		return out
	}
	out.ChatID = msg.Chat.ID
	out.MessageID = msg.MessageID
	out.IsGroupChat = msg.Chat.IsGroup()
	if msg.From != nil {
		out.SenderID = msg.From.ID
		out.SenderUsername = strings.TrimSpace(msg.From.Username)
		out.SenderFirstName = strings.TrimSpace(msg.From.FirstName)
	}

	out.Kind = classifyKind(msg)
	out.Text = sanitizeText(msg.Text)
	if out.Kind == KindText && out.Text != "" {
		out.IsValid = true
		out.Command = parseCommand(out.Text, n.botUsername)
	}
	return out
}

// classifyKind assigns exactly one kind from the payload fields present.
// Text wins only when genuine text content exists.
func classifyKind(msg *telegram.Message) MessageKind {
	if strings.TrimSpace(msg.Text) != "" {
		return KindText
	}
	switch {
	case len(msg.Photo) > 0:
		return KindPhoto
	case msg.Document != nil:
		return KindDocument
	case msg.Sticker != nil:
		return KindSticker
	case msg.Voice != nil:
		return KindVoice
	case msg.Video != nil:
		return KindVideo
	case msg.Audio != nil:
		return KindAudio
	case msg.Location != nil:
		return KindLocation
	case msg.Contact != nil:
		return KindContact
	default:
		return KindText
	}
}

// sanitizeText strips control runes (keeping newlines and tabs) and trims
// surrounding whitespace.
func sanitizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// parseCommand extracts a leading /name token. Telegram appends the bot
// username to commands sent in groups (/help@somebot); the suffix is
// stripped before dispatch.
func parseCommand(text, botUsername string) *Command {
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if name == "" {
		return nil
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		suffix := strings.ToLower(name[at+1:])
		if botUsername != "" && suffix != botUsername {
			// A command explicitly targeting some other bot.
			return nil
		}
		name = name[:at]
	}
	if name == "" {
		return nil
	}
	return &Command{
		Name: strings.ToLower(name),
		Args: fields[1:],
	}
}
