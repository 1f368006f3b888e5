package personality

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

var casualMarkers = []string{
	"lol", "haha", "yeah", "nah", "gonna", "wanna", "kinda", "sorta", "btw", "omg", "tbh",
}

var humorMarkers = []string{
	"lol", "haha", "lmao", "rofl", "joke", "funny", "hilarious",
}

var technicalMarkers = []string{
	"api", "database", "deploy", "architecture", "latency", "backend", "frontend",
	"algorithm", "kubernetes", "docker", "schema", "endpoint", "regression", "refactor",
	"throughput", "cache", "query", "pipeline", "sdk", "protocol",
}

var topicBuckets = map[string][]string{
	"product":     {"product", "feature", "roadmap", "launch", "release", "ux", "design"},
	"sales":       {"sales", "pricing", "deal", "customer", "pipeline", "revenue", "quota"},
	"strategy":    {"strategy", "market", "competitor", "positioning", "vision", "growth"},
	"engineering": {"code", "bug", "deploy", "api", "infra", "architecture", "testing"},
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"i": true, "you": true, "we": true, "they": true, "it": true, "he": true, "she": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"this": true, "that": true, "these": true, "those": true, "my": true, "your": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"not": true, "no": true, "so": true, "if": true, "as": true, "by": true, "from": true,
	"what": true, "when": true, "how": true, "why": true, "can": true, "will": true,
	"just": true, "about": true, "like": true, "get": true, "its": true, "im": true,
}

// deriveTraits summarizes a sample buffer into style axes. Called only once
// the buffer has reached the tracker minimum.
func deriveTraits(samples []Sample, now time.Time) Traits {
	var (
		totalLen  int
		casualN   int
		humorN    int
		techN     int
		wordFreq  = map[string]int{}
		topicHits = map[string]int{}
	)

	for _, sample := range samples {
		totalLen += sample.Length
		lower := strings.ToLower(sample.Text)
		if containsAny(lower, casualMarkers) || sample.HasEmoji {
			casualN++
		}
		if containsAny(lower, humorMarkers) {
			humorN++
		}
		if containsAny(lower, technicalMarkers) {
			techN++
		}
		for topic, markers := range topicBuckets {
			if containsAny(lower, markers) {
				topicHits[topic]++
			}
		}
		for _, word := range tokenize(lower) {
			if len(word) < 3 || stopWords[word] {
				continue
			}
			wordFreq[word]++
		}
	}

	n := len(samples)
	avgLen := 0
	if n > 0 {
		avgLen = totalLen / n
	}

	traits := Traits{
		CommunicationStyle: styleForLength(avgLen),
		TechnicalDepth:     bandForRatio(float64(techN)/float64(n), "low", "medium", "high"),
		Casualness:         bandForRatio(float64(casualN)/float64(n), "formal", "relaxed", "casual"),
		Humor:              bandForRatio(float64(humorN)/float64(n), "dry", "occasional", "playful"),
		Vocabulary:         topKeys(wordFreq, 5, 2),
		Topics:             topKeys(topicHits, 3, 1),
		UpdatedAt:          now,
	}
	traits.Phrases = frequentPhrases(samples, 3)
	return traits
}

func styleForLength(avgLen int) string {
	switch {
	case avgLen < 60:
		return "concise"
	case avgLen < 180:
		return "balanced"
	default:
		return "expansive"
	}
}

func bandForRatio(ratio float64, low, mid, high string) string {
	switch {
	case ratio < 0.2:
		return low
	case ratio < 0.5:
		return mid
	default:
		return high
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func topKeys(freq map[string]int, limit, minCount int) []string {
	type kv struct {
		key   string
		count int
	}
	items := make([]kv, 0, len(freq))
	for k, v := range freq {
		if v >= minCount {
			items = append(items, kv{k, v})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].key < items[j].key
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.key)
	}
	return out
}

// frequentPhrases collects opening bigrams that repeat across samples.
func frequentPhrases(samples []Sample, limit int) []string {
	freq := map[string]int{}
	for _, sample := range samples {
		words := tokenize(strings.ToLower(sample.Text))
		if len(words) < 2 {
			continue
		}
		phrase := words[0] + " " + words[1]
		freq[phrase]++
	}
	return topKeys(freq, limit, 2)
}

func containsEmoji(text string) bool {
	for _, r := range text {
		if r >= 0x1F300 && r <= 0x1FAFF {
			return true
		}
		if r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}

func containsLink(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "http://") || strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}
