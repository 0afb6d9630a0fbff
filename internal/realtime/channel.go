// Package realtime implements the streaming transcription channel: a
// best-effort, low-latency companion to the batch transcription fallback.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/protocol"
	"github.com/andrevianna/clara/internal/transcript"
)

// ErrChannelClosed is returned when audio is sent after the socket dropped.
var ErrChannelClosed = errors.New("realtime channel closed")

const defaultConnectTimeout = 5 * time.Second

// Config describes the remote transcription socket.
type Config struct {
	URL            string
	APIKey         string
	Language       string
	SampleRate     int
	Format         string
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.Language == "" {
		c.Language = "pt-BR"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Format == "" {
		c.Format = "pcm16"
	}
	return c
}

// Channel is one live transcription socket. Inbound transcript frames
// overwrite the mirrored text and word timings together (last-write-wins; the
// remote is authoritative for ordering).
type Channel struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	writeMu   sync.Mutex
	closeOnce sync.Once

	mu    sync.Mutex
	text  string
	words []transcript.WordTiming
}

// Dial opens the socket and sends the one-time config frame. The connect
// attempt is bounded by the configured timeout; a failure here is the
// caller's cue to degrade to the batch path.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Channel, error) {
	cfg = cfg.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial transcription socket: %w", err)
	}

	c := &Channel{conn: conn, log: log}
	if err := c.writeJSON(protocol.NewConfigMessage(cfg.Language, cfg.SampleRate, cfg.Format)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send config frame: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// SendAudio forwards one raw PCM chunk as a binary frame.
func (c *Channel) SendAudio(_ context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Snapshot returns the latest cumulative transcript and timings. Both fields
// come from the same inbound frame; there is no partial-write tearing.
func (c *Channel) Snapshot() (string, []transcript.WordTiming) {
	c.mu.Lock()
	defer c.mu.Unlock()
	words := make([]transcript.WordTiming, len(c.words))
	copy(words, c.words)
	return c.text, words
}

// Close sends a best-effort end-of-stream notice and closes the socket. Safe
// to call multiple times and on a half-closed connection.
func (c *Channel) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		// The socket may already be half-closed; the notice is advisory.
		if err := c.writeJSON(protocol.NewEndMessage()); err != nil {
			c.log.Debug().Err(err).Msg("end-of-stream notice not delivered")
		}
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *Channel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Channel) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { _ = c.conn.Close() })
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseTranscript(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("discarding malformed transcript frame")
			continue
		}
		words := make([]transcript.WordTiming, len(msg.Words))
		for i, w := range msg.Words {
			words[i] = transcript.WordTiming{Word: w.Word, Start: w.Start, End: w.End}
		}
		c.mu.Lock()
		c.text = msg.Text
		c.words = words
		c.mu.Unlock()
	}
}
