// Package capture owns the microphone device for the duration of one
// recording and delivers audio in chunks so transcription can start before
// the recording ends.
package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/audio"
)

// EventType enumerates everything the service emits while active.
type EventType string

const (
	EventChunk     EventType = "chunk"
	EventAmplitude EventType = "amplitude"
	EventError     EventType = "error"
)

// Event is one capture service emission.
type Event struct {
	Type      EventType
	Chunk     []byte // PCM16LE mono, EventChunk only
	Amplitude float64
	Err       error
}

// Result is the accumulated recording returned by Stop.
type Result struct {
	PCM        []byte
	SampleRate int
	MIMEType   string
	Duration   time.Duration
}

var (
	ErrEmptyCapture  = errors.New("capture stopped with zero audio")
	ErrAlreadyActive = errors.New("capture already active")
	ErrNotActive     = errors.New("no active capture")
	ErrDestroyed     = errors.New("capture service destroyed")
)

// Config controls device parameters.
type Config struct {
	SampleRate      int
	FramesPerBuffer int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = 1024
	}
	return c
}

// Service drives the default input device through portaudio. At most one
// recording is active at a time; Stop and Cancel both release the device
// handle before returning.
type Service struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	destroyed bool
	active    *recording
}

type recording struct {
	stream *portaudio.Stream
	events chan Event
	stop   chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	data bytes.Buffer
	last []float64
}

func NewService(cfg Config, log zerolog.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), log: log}
}

// Start opens the device and begins chunked delivery. The returned channel is
// closed when the recording ends for any reason.
func (s *Service) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.active != nil {
		return nil, ErrAlreadyActive
	}

	frame := make([]int16, s.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), len(frame), &frame)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	rec := &recording{
		stream: stream,
		events: make(chan Event, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.active = rec
	go s.run(ctx, rec, frame)
	return rec.events, nil
}

func (s *Service) run(ctx context.Context, rec *recording, frame []int16) {
	defer close(rec.done)
	defer close(rec.events)
	for {
		select {
		case <-rec.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := rec.stream.Read(); err != nil {
			select {
			case <-rec.stop:
				// Read errors racing a stop are expected; the device is
				// already being torn down.
			default:
				s.log.Warn().Err(err).Msg("microphone read failed")
				rec.send(Event{Type: EventError, Err: err})
			}
			return
		}

		chunk := audio.Int16ToBytes(frame)
		rec.mu.Lock()
		rec.data.Write(chunk)
		rec.last = audio.Normalize(frame)
		rec.mu.Unlock()

		if !rec.send(Event{Type: EventChunk, Chunk: chunk}) {
			return
		}
		if !rec.send(Event{Type: EventAmplitude, Amplitude: audio.RMS(frame)}) {
			return
		}
	}
}

// send delivers an event unless the recording is being torn down; blocking on
// a full channel while Stop waits for the run loop would deadlock otherwise.
func (rec *recording) send(evt Event) bool {
	select {
	case rec.events <- evt:
		return true
	case <-rec.stop:
		return false
	}
}

// Stop ends the recording and returns everything captured. Fails with
// ErrEmptyCapture when no audio was delivered at all.
func (s *Service) Stop() (Result, error) {
	rec, err := s.take()
	if err != nil {
		return Result{}, err
	}
	s.release(rec)

	rec.mu.Lock()
	pcm := append([]byte(nil), rec.data.Bytes()...)
	rec.mu.Unlock()

	if len(pcm) == 0 {
		return Result{}, ErrEmptyCapture
	}
	return Result{
		PCM:        pcm,
		SampleRate: s.cfg.SampleRate,
		MIMEType:   "audio/pcm",
		Duration:   audio.DurationPCM16(len(pcm), s.cfg.SampleRate),
	}, nil
}

// Cancel ends the recording and discards the audio.
func (s *Service) Cancel() error {
	rec, err := s.take()
	if err != nil {
		return err
	}
	s.release(rec)
	return nil
}

// Destroy cancels any active recording and permanently disables the service.
func (s *Service) Destroy() error {
	s.mu.Lock()
	rec := s.active
	s.active = nil
	s.destroyed = true
	s.mu.Unlock()
	if rec != nil {
		s.release(rec)
	}
	return nil
}

// Samples returns the most recent normalized input frame for visualization,
// or nil when no recording is active.
func (s *Service) Samples() []float64 {
	s.mu.Lock()
	rec := s.active
	s.mu.Unlock()
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]float64, len(rec.last))
	copy(out, rec.last)
	return out
}

// Active reports whether a recording is in progress.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Service) take() (*recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.active == nil {
		return nil, ErrNotActive
	}
	rec := s.active
	s.active = nil
	return rec, nil
}

// release stops the run loop and closes the device handle. The stream is
// aborted first so a blocking Read returns promptly.
func (s *Service) release(rec *recording) {
	close(rec.stop)
	_ = rec.stream.Abort()
	<-rec.done
	_ = rec.stream.Close()
}
