// Package personality accumulates message samples for an allow-listed set
// of senders and, once enough samples exist, derives a style summary that
// is folded into completion requests as a short natural-language directive.
package personality

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sagehand/ideakeeper/internal/fsstore"
)

const defaultMinSamples = 10

type Options struct {
	// Path is the YAML state file; empty disables persistence.
	Path       string
	MinSamples int
	Allowed    []string
	Logger     *slog.Logger
	Now        func() time.Time
}

type Tracker struct {
	mu         sync.Mutex
	path       string
	minSamples int
	allowed    map[string]bool
	profiles   map[string]*Profile
	logger     *slog.Logger
	now        func() time.Time
}

func NewTracker(opts Options) (*Tracker, error) {
	if opts.MinSamples <= 0 {
		opts.MinSamples = defaultMinSamples
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &Tracker{
		path:       strings.TrimSpace(opts.Path),
		minSamples: opts.MinSamples,
		allowed:    map[string]bool{},
		profiles:   map[string]*Profile{},
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	for _, username := range opts.Allowed {
		username = normalizeUsername(username)
		if username != "" {
			t.allowed[username] = true
		}
	}
	return t, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(username, "@")))
}

func (t *Tracker) MinSamples() int {
	return t.minSamples
}

func (t *Tracker) IsTracked(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowed[normalizeUsername(username)]
}

func (t *Tracker) Track(username string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("personality: username is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowed[username] = true
	return t.saveLocked()
}

func (t *Tracker) Untrack(username string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("personality: username is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.allowed, username)
	return t.saveLocked()
}

func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.allowed))
	for username := range t.allowed {
		out = append(out, username)
	}
	return out
}

// Observe records one sample for a tracked sender. Untracked senders are
// ignored. Once the sample count reaches the minimum, traits are
// (re)derived, overwriting any previous summary.
func (t *Tracker) Observe(username string, sample Sample) {
	username = normalizeUsername(username)
	if username == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.allowed[username] {
		return
	}

	sample.Text = strings.TrimSpace(sample.Text)
	if sample.Text == "" {
		return
	}
	if sample.Length == 0 {
		sample.Length = len(sample.Text)
	}
	if sample.SentAt.IsZero() {
		sample.SentAt = t.now().UTC()
	}
	sample.HasEmoji = sample.HasEmoji || containsEmoji(sample.Text)
	sample.HasLink = sample.HasLink || containsLink(sample.Text)

	profile := t.profiles[username]
	if profile == nil {
		profile = &Profile{Username: username}
		t.profiles[username] = profile
	}
	profile.Samples = append(profile.Samples, sample)

	if len(profile.Samples) >= t.minSamples {
		traits := deriveTraits(profile.Samples, t.now().UTC())
		profile.Traits = &traits
	}

	if err := t.saveLocked(); err != nil {
		t.logger.Warn("personality state save failed", "username", username, "error", err)
	}
}

func (t *Tracker) Profile(username string) (Profile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	profile := t.profiles[normalizeUsername(username)]
	if profile == nil {
		return Profile{}, false
	}
	copied := *profile
	copied.Samples = append([]Sample(nil), profile.Samples...)
	if profile.Traits != nil {
		traits := *profile.Traits
		copied.Traits = &traits
	}
	return copied, true
}

// Directive renders the sender's trait summary as a short style
// instruction, or "" when no summary exists yet. Only currently tracked
// senders get a directive; Untrack stops injection even while the
// accrued profile is retained.
func (t *Tracker) Directive(username string) string {
	username = normalizeUsername(username)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.allowed[username] {
		return ""
	}
	profile := t.profiles[username]
	if profile == nil || profile.Traits == nil {
		return ""
	}
	return renderDirective(username, *profile.Traits)
}

// Clear removes the sample buffer, any derived summary, and the sender's
// allow-list membership.
func (t *Tracker) Clear(username string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("personality: username is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.profiles, username)
	delete(t.allowed, username)
	return t.saveLocked()
}

func (t *Tracker) load() error {
	if t.path == "" {
		return nil
	}
	var file profileFile
	ok, err := fsstore.ReadYAML(t.path, &file)
	if err != nil {
		return fmt.Errorf("personality: load state: %w", err)
	}
	if !ok {
		return nil
	}
	for _, username := range file.Allowed {
		username = normalizeUsername(username)
		if username != "" {
			t.allowed[username] = true
		}
	}
	for username, profile := range file.Profiles {
		username = normalizeUsername(username)
		if username == "" || profile == nil {
			continue
		}
		profile.Username = username
		t.profiles[username] = profile
	}
	return nil
}

func (t *Tracker) saveLocked() error {
	if t.path == "" {
		return nil
	}
	file := profileFile{
		Allowed:  make([]string, 0, len(t.allowed)),
		Profiles: t.profiles,
	}
	for username := range t.allowed {
		file.Allowed = append(file.Allowed, username)
	}
	return fsstore.WriteYAMLAtomic(t.path, file, fsstore.FileOptions{})
}

func renderDirective(username string, traits Traits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Adapt your reply tone for @%s: %s replies, %s register, %s technical depth, %s humor.",
		username, traits.CommunicationStyle, traits.Casualness, traits.TechnicalDepth, traits.Humor)
	if len(traits.Vocabulary) > 0 {
		fmt.Fprintf(&b, " They favor words like %s.", strings.Join(traits.Vocabulary, ", "))
	}
	if len(traits.Topics) > 0 {
		fmt.Fprintf(&b, " Recurring topics: %s.", strings.Join(traits.Topics, ", "))
	}
	return b.String()
}
