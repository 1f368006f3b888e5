package personality

import "time"

// Sample is one observed message from a tracked sender.
type Sample struct {
	Text       string    `yaml:"text"`
	SentAt     time.Time `yaml:"sent_at"`
	ChatKind   string    `yaml:"chat_kind"` // private|group
	Length     int       `yaml:"length"`
	HasEmoji   bool      `yaml:"has_emoji"`
	HasLink    bool      `yaml:"has_link"`
	ReplyToBot bool      `yaml:"reply_to_bot"`
}

// Traits is the derived style summary. It is only ever produced once the
// sample count reaches the tracker's minimum; re-deriving overwrites it.
type Traits struct {
	CommunicationStyle string    `yaml:"communication_style"` // concise|balanced|expansive
	TechnicalDepth     string    `yaml:"technical_depth"`     // low|medium|high
	Casualness         string    `yaml:"casualness"`          // formal|relaxed|casual
	Humor              string    `yaml:"humor"`               // dry|occasional|playful
	Vocabulary         []string  `yaml:"vocabulary,omitempty"`
	Phrases            []string  `yaml:"phrases,omitempty"`
	Topics             []string  `yaml:"topics,omitempty"`
	UpdatedAt          time.Time `yaml:"updated_at"`
}

type Profile struct {
	Username string   `yaml:"username"`
	Samples  []Sample `yaml:"samples"`
	Traits   *Traits  `yaml:"traits,omitempty"`
}

func (p *Profile) SampleCount() int {
	if p == nil {
		return 0
	}
	return len(p.Samples)
}

type profileFile struct {
	Allowed  []string            `yaml:"allowed"`
	Profiles map[string]*Profile `yaml:"profiles"`
}
