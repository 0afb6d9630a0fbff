// Package synthesis fetches rendered speech plus word-level karaoke timings
// in a single round trip, so timings are always in hand before playback.
package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrevianna/clara/internal/audio"
	"github.com/andrevianna/clara/internal/protocol"
	"github.com/andrevianna/clara/internal/transcript"
)

// Error is a typed synthesis failure. The state machine never retries it;
// retry policy belongs to callers.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("synthesis failed (status %d): %s", e.StatusCode, e.Detail)
	}
	return "synthesis failed: " + e.Detail
}

// Config describes the synthesis endpoint and the requested voice identity.
type Config struct {
	URL          string
	APIKey       string
	VoiceProfile string
	VoiceID      string
	Timeout      time.Duration
}

// Fetcher requests synthesized speech for a text string.
type Fetcher struct {
	cfg  Config
	http *http.Client
}

func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Result is a playable handle plus its karaoke contract.
type Result struct {
	Clip            *audio.Clip
	Words           []transcript.WordTiming
	DurationSeconds float64
}

type request struct {
	Text         string `json:"text"`
	VoiceProfile string `json:"voiceProfile"`
	VoiceID      string `json:"voiceId"`
}

type response struct {
	Audio           string          `json:"audio"`
	MIMEType        string          `json:"mimeType"`
	SampleRate      int             `json:"sampleRate"`
	Words           []protocol.Word `json:"words"`
	DurationSeconds float64         `json:"durationSeconds"`
}

// Fetch synthesizes text in one round trip. The returned timings are complete
// before any playback is requested.
func (f *Fetcher) Fetch(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(request{
		Text:         text,
		VoiceProfile: f.cfg.VoiceProfile,
		VoiceID:      f.cfg.VoiceID,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return Result{}, &Error{Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: string(raw)}
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("malformed response: %v", err)}
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Audio)
	if err != nil {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("undecodable audio payload: %v", err)}
	}
	if len(data) == 0 {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: "no playable audio in response"}
	}

	mime := decoded.MIMEType
	if mime == "" {
		mime = "audio/mpeg"
	}
	clip := &audio.Clip{
		Data:       data,
		MIMEType:   mime,
		SampleRate: decoded.SampleRate,
		Duration:   time.Duration(decoded.DurationSeconds * float64(time.Second)),
	}

	words := make([]transcript.WordTiming, len(decoded.Words))
	for i, w := range decoded.Words {
		words[i] = transcript.WordTiming{Word: w.Word, Start: w.Start, End: w.End}
	}
	return Result{Clip: clip, Words: words, DurationSeconds: decoded.DurationSeconds}, nil
}
