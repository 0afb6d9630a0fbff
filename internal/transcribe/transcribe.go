// Package transcribe is the one-shot batch transcription fallback, used when
// the realtime channel never connected or produced only silence.
package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrevianna/clara/internal/protocol"
	"github.com/andrevianna/clara/internal/transcript"
)

// Error is a typed batch transcription failure.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("batch transcription failed (status %d): %s", e.StatusCode, e.Detail)
	}
	return "batch transcription failed: " + e.Detail
}

// ErrNoUsableText is returned when the endpoint answered but produced nothing.
var ErrNoUsableText = errors.New("batch transcription returned no usable text")

// Config describes the batch endpoint.
type Config struct {
	URL      string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// Client calls the batch transcription endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Result is the recognized text with optional word timings.
type Result struct {
	Text  string
	Words []transcript.WordTiming
}

type request struct {
	Audio                 string `json:"audio"`
	MIMEType              string `json:"mimeType"`
	Language              string `json:"language"`
	IncludeWordTimestamps bool   `json:"includeWordTimestamps"`
}

type response struct {
	Text  string          `json:"text"`
	Words []protocol.Word `json:"words"`
}

// The endpoint reports failures either as a flat error string or nested under
// a detail object.
type errorResponse struct {
	Error  string `json:"error"`
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

func (e errorResponse) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail.Error
}

// Transcribe uploads audio and returns the recognized text. An empty or
// whitespace-only transcript is an error, mirroring the silence policy of the
// realtime path.
func (c *Client) Transcribe(ctx context.Context, payload []byte, mimeType string) (Result, error) {
	body, err := json.Marshal(request{
		Audio:                 base64.StdEncoding.EncodeToString(payload),
		MIMEType:              mimeType,
		Language:              c.cfg.Language,
		IncludeWordTimestamps: true,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &Error{Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: err.Error()}
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.Unmarshal(raw, &errResp)
		detail := errResp.message()
		if detail == "" {
			detail = string(raw)
		}
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: detail}
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, &Error{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("malformed response: %v", err)}
	}
	text := protocol.NormalizeText(decoded.Text)
	if text == "" {
		return Result{}, ErrNoUsableText
	}

	words := make([]transcript.WordTiming, len(decoded.Words))
	for i, w := range decoded.Words {
		words[i] = transcript.WordTiming{Word: w.Word, Start: w.Start, End: w.End}
	}
	return Result{Text: text, Words: words}, nil
}
