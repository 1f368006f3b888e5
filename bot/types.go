package bot

type MessageKind string

const (
	KindText     MessageKind = "text"
	KindPhoto    MessageKind = "photo"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindVoice    MessageKind = "voice"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"
)

// Command is a parsed leading /name with its ordered argument list.
// Argument arity is validated inside each handler.
type Command struct {
	Name string
	Args []string
}

// ProcessedMessage is the canonical record derived from a raw inbound
// event. It is never persisted.
type ProcessedMessage struct {
	ChatID      int64
	MessageID   int64
	Text        string
	Command     *Command
	IsValid     bool
	Kind        MessageKind
	IsGroupChat bool

	SenderID        int64
	SenderUsername  string
	SenderFirstName string
}
