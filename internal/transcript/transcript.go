package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrevianna/clara/internal/audio"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WordTiming aligns one word to its position inside a specific audio render.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Message is a single conversational entry. Audio and timing metadata may be
// attached after the fact via Log.FinalizeLast.
type Message struct {
	ID              string       `json:"id"`
	Role            Role         `json:"role"`
	Text            string       `json:"text"`
	Timestamp       time.Time    `json:"timestamp"`
	Clip            *audio.Clip  `json:"-"`
	Words           []WordTiming `json:"words,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`

	finalized bool
}

var (
	ErrEmptyLog         = errors.New("transcript log is empty")
	ErrAlreadyFinalized = errors.New("last transcript message already finalized")
)

// Finalization carries the late-arriving metadata attached to the last
// appended message once a synthesis or capture operation completes.
type Finalization struct {
	Clip            *audio.Clip
	Words           []WordTiming
	DurationSeconds float64
}

// Log is an append-only ordered message sequence. The single sanctioned
// mutation is FinalizeLast, which may run exactly once per message.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLog() *Log {
	return &Log{}
}

// Append adds a message and returns its assigned ID.
func (l *Log) Append(role Role, text string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	l.messages = append(l.messages, msg)
	return msg.ID
}

// AppendWithTimings adds a message that already carries its render metadata,
// so UIs reading the log see the timings before playback starts.
func (l *Log) AppendWithTimings(role Role, text string, fin Finalization) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := Message{
		ID:              uuid.NewString(),
		Role:            role,
		Text:            text,
		Timestamp:       time.Now().UTC(),
		Clip:            fin.Clip,
		Words:           append([]WordTiming(nil), fin.Words...),
		DurationSeconds: fin.DurationSeconds,
		finalized:       true,
	}
	l.messages = append(l.messages, msg)
	return msg.ID
}

// FinalizeLast attaches timing/audio metadata to the most recent message.
// It fails on an empty log and on a second finalization of the same message.
func (l *Log) FinalizeLast(fin Finalization) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return ErrEmptyLog
	}
	last := &l.messages[len(l.messages)-1]
	if last.finalized {
		return ErrAlreadyFinalized
	}
	last.Clip = fin.Clip
	last.Words = append([]WordTiming(nil), fin.Words...)
	last.DurationSeconds = fin.DurationSeconds
	last.finalized = true
	return nil
}

// Messages returns a copy of the ordered sequence.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent message, if any.
func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Len reports the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// ValidWordTimings reports whether the sequence is non-overlapping with
// monotonically non-decreasing start times.
func ValidWordTimings(words []WordTiming) bool {
	for i, w := range words {
		if w.End < w.Start {
			return false
		}
		if i > 0 && (w.Start < words[i-1].Start || w.Start < words[i-1].End) {
			return false
		}
	}
	return true
}
