package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies client→server control frames on the realtime
// transcription socket. Audio itself travels as raw binary frames.
type MessageType string

const (
	TypeConfig MessageType = "config"
	TypeEnd    MessageType = "end"
)

// TranscriptStatus identifies server→client transcript frames.
type TranscriptStatus string

const (
	StatusPartial TranscriptStatus = "partial"
	StatusFinal   TranscriptStatus = "final"
)

var ErrUnknownStatus = errors.New("unknown transcript status")

// ConfigMessage is the one-time session setup frame, sent before any audio.
type ConfigMessage struct {
	Type       MessageType `json:"type"`
	Language   string      `json:"language"`
	SampleRate int         `json:"sampleRate"`
	Format     string      `json:"format"`
}

func NewConfigMessage(language string, sampleRate int, format string) ConfigMessage {
	return ConfigMessage{
		Type:       TypeConfig,
		Language:   language,
		SampleRate: sampleRate,
		Format:     format,
	}
}

// EndMessage signals end-of-stream. Sent best-effort before closing.
type EndMessage struct {
	Type MessageType `json:"type"`
}

func NewEndMessage() EndMessage {
	return EndMessage{Type: TypeEnd}
}

// Word is a word-level timing entry aligned to the recognized audio.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptMessage is an incremental or final recognition result. Each frame
// carries the full cumulative text; the remote is authoritative for ordering.
type TranscriptMessage struct {
	Status TranscriptStatus `json:"status"`
	Text   string           `json:"text"`
	Words  []Word           `json:"words,omitempty"`
}

// Final reports whether this frame closes the current utterance.
func (m TranscriptMessage) Final() bool {
	return m.Status == StatusFinal
}

// ParseTranscript decodes and validates a server transcript frame.
func ParseTranscript(raw []byte) (TranscriptMessage, error) {
	var msg TranscriptMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return TranscriptMessage{}, fmt.Errorf("invalid transcript frame: %w", err)
	}
	switch msg.Status {
	case StatusPartial, StatusFinal:
	default:
		return TranscriptMessage{}, fmt.Errorf("%w: %q", ErrUnknownStatus, msg.Status)
	}
	return msg, nil
}

// NormalizeText trims the cumulative transcript text; an all-whitespace
// transcript counts as empty for the fallback decision.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
