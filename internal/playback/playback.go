// Package playback owns the speaker. One playable handle is active at a
// time; starting a new one stops the previous one first.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/audio"
)

// EventType enumerates playback emissions.
type EventType string

const (
	EventAmplitude EventType = "amplitude"
	EventEnded     EventType = "ended"
	EventError     EventType = "error"
)

// Event is one playback service emission. EventEnded fires exactly once per
// Play call, whether playback drains naturally or is stopped.
type Event struct {
	Type      EventType
	Amplitude float64
	Err       error
}

var (
	ErrDestroyed       = errors.New("playback service destroyed")
	ErrUnsupportedClip = errors.New("unsupported clip encoding")
)

// Service plays clips through the shared speaker device.
type Service struct {
	sampleRate beep.SampleRate
	log        zerolog.Logger

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	current     *play
}

type play struct {
	clip     *audio.Clip
	tap      *tap
	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
	once     sync.Once
}

func (p *play) signal() {
	p.doneOnce.Do(func() { close(p.done) })
}

func NewService(sampleRate int, log zerolog.Logger) *Service {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Service{sampleRate: beep.SampleRate(sampleRate), log: log}
}

// Warmup initializes the speaker ahead of the first Play, so greeting audio
// does not pay first-play device latency.
func (s *Service) Warmup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.initLocked()
}

func (s *Service) initLocked() error {
	if s.initialized {
		return nil
	}
	if err := speaker.Init(s.sampleRate, s.sampleRate.N(time.Second/10)); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// Play decodes the clip and starts it, stopping any prior playback first.
// The returned channel carries amplitude samples and the single ended event,
// and is closed afterwards.
func (s *Service) Play(clip *audio.Clip) (<-chan Event, error) {
	if clip.Empty() {
		return nil, ErrUnsupportedClip
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	s.stopLocked()
	if err := s.initLocked(); err != nil {
		return nil, err
	}

	streamer, format, err := decode(clip)
	if err != nil {
		return nil, err
	}
	if format.SampleRate != s.sampleRate {
		streamer = beep.Resample(4, format.SampleRate, s.sampleRate, streamer)
	}

	p := &play{
		clip:   clip,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
	p.tap = newTap(streamer, func(rms float64) {
		select {
		case p.events <- Event{Type: EventAmplitude, Amplitude: rms}:
		default:
		}
	})
	s.current = p
	go s.reap(p)

	// The callback runs on the speaker goroutine with beep's package mutex
	// held. It must not acquire s.mu (Stop and Play hold s.mu while calling
	// into the speaker), so it only signals; reap does the bookkeeping.
	speaker.Play(beep.Seq(p.tap, beep.Callback(p.signal)))
	return p.events, nil
}

func (s *Service) reap(p *play) {
	<-p.done
	p.finish()
	s.clear(p)
}

// Stop halts the current playback, if any. The ended event still fires.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	p := s.current
	s.current = nil
	if p == nil {
		return
	}
	speaker.Clear()
	// Clear removed the streamer, so the end callback will never fire;
	// release reap ourselves. It finishes the events channel without s.mu.
	p.signal()
}

// Destroy stops playback and disables the service.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.destroyed = true
}

// Handle returns the clip currently loaded, if any.
func (s *Service) Handle() (*audio.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.clip, true
}

// Detach relinquishes ownership of the current playback: audio keeps playing,
// and later Stop/Destroy calls on this service no longer touch it. The caller
// (a longer-lived floating player) receives the handle.
func (s *Service) Detach() (*audio.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.current
	s.current = nil
	if p == nil {
		return nil, false
	}
	return p.clip, true
}

// Active reports whether a playback is in progress and still owned here.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Samples returns the most recent normalized output frame for visualization.
func (s *Service) Samples() []float64 {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.tap.samples()
}

func (s *Service) clear(p *play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == p {
		s.current = nil
	}
}

func (p *play) finish() {
	p.once.Do(func() {
		p.events <- Event{Type: EventEnded}
		close(p.events)
	})
}

func decode(clip *audio.Clip) (beep.Streamer, beep.Format, error) {
	switch clip.MIMEType {
	case "audio/mpeg", "audio/mp3":
		streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(clip.Data)))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode mp3 clip: %w", err)
		}
		return streamer, format, nil
	case "audio/wav", "audio/x-wav":
		streamer, format, err := wav.Decode(bytes.NewReader(clip.Data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav clip: %w", err)
		}
		return streamer, format, nil
	case "audio/pcm", "audio/l16":
		rate := clip.SampleRate
		if rate <= 0 {
			rate = 16000
		}
		format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 1, Precision: 2}
		return newPCMStreamer(clip.Data), format, nil
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedClip, clip.MIMEType)
	}
}
