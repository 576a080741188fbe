package detector

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
)

// Vocabulary is the emergency vocabulary in match priority order.
var Vocabulary = []string{"help", "emergency", "sos", "danger", "accident", "injured", "hurt"}

// maxSeenChunks bounds the chunk id memory of a KeywordDetector.
const maxSeenChunks = 256

// TranscriptChunk is one speech recognition result.
type TranscriptChunk struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// KeywordEvent is emitted when a final chunk contains an emergency keyword.
type KeywordEvent struct {
	Keyword string
	ChunkID string
	Text    string
	At      time.Time
}

// Result converts the event into an AccidentResult.
func (e KeywordEvent) Result() AccidentResult {
	return AccidentResult{
		TriggeredBy: SourceVoice,
		Confidence:  VoiceConfidence,
		Detail:      fmt.Sprintf("keyword %q", e.Keyword),
		Timestamp:   e.At,
	}
}

// MatchKeyword lowercases text and returns the first vocabulary word it
// contains as a substring.
func MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range Vocabulary {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// KeywordDetector matches final transcript chunks. Each chunk id is
// evaluated at most once.
type KeywordDetector struct {
	clock clock.Clock
	seen  map[string]struct{}
	order []string
}

// NewKeywordDetector creates a keyword detector on the given clock.
func NewKeywordDetector(clk clock.Clock) *KeywordDetector {
	return &KeywordDetector{clock: clk, seen: make(map[string]struct{})}
}

// Observe evaluates a chunk. Interim chunks and chunks already seen are
// ignored.
func (d *KeywordDetector) Observe(c TranscriptChunk) (KeywordEvent, bool) {
	if !c.Final {
		return KeywordEvent{}, false
	}
	if c.ID != "" {
		if _, dup := d.seen[c.ID]; dup {
			return KeywordEvent{}, false
		}
		d.remember(c.ID)
	}

	kw, ok := MatchKeyword(c.Text)
	if !ok {
		return KeywordEvent{}, false
	}
	return KeywordEvent{Keyword: kw, ChunkID: c.ID, Text: c.Text, At: d.clock.Now()}, true
}

func (d *KeywordDetector) remember(id string) {
	if len(d.order) >= maxSeenChunks {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
}

// Reset forgets seen chunk ids.
func (d *KeywordDetector) Reset() {
	d.seen = make(map[string]struct{})
	d.order = nil
}
