package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/audio"
	"github.com/andrevianna/clara/internal/capture"
	"github.com/andrevianna/clara/internal/memory"
	"github.com/andrevianna/clara/internal/observability"
	"github.com/andrevianna/clara/internal/playback"
	"github.com/andrevianna/clara/internal/reasoning"
	"github.com/andrevianna/clara/internal/synthesis"
	"github.com/andrevianna/clara/internal/transcribe"
	"github.com/andrevianna/clara/internal/transcript"
)

// Recorder is the capture service surface the machine drives.
type Recorder interface {
	Start(ctx context.Context) (<-chan capture.Event, error)
	Stop() (capture.Result, error)
	Cancel() error
	Destroy() error
	Active() bool
}

// Player is the playback service surface the machine drives.
type Player interface {
	Warmup() error
	Play(clip *audio.Clip) (<-chan playback.Event, error)
	Stop()
	Destroy()
	Active() bool
}

// Stream is one live realtime transcription connection.
type Stream interface {
	SendAudio(ctx context.Context, chunk []byte) error
	Snapshot() (string, []transcript.WordTiming)
	Close() error
}

// DialFunc opens a realtime transcription stream. A dial failure is never
// fatal to the turn; the machine degrades to the batch path.
type DialFunc func(ctx context.Context) (Stream, error)

// Synthesizer turns text into a playable clip with karaoke timings.
type Synthesizer interface {
	Fetch(ctx context.Context, text string) (synthesis.Result, error)
}

// BatchTranscriber is the one-shot fallback transcription call.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, payload []byte, mimeType string) (transcribe.Result, error)
}

// Responder produces the assistant reply for a user utterance.
type Responder interface {
	Respond(ctx context.Context, req reasoning.Request) (reasoning.Response, error)
}

// Visualizer is the frequency analyzer lifecycle, restarted per turn phase.
type Visualizer interface {
	Start()
	Stop()
}

// Config carries the per-session knobs of one machine.
type Config struct {
	Greeting  string
	Apology   string
	AgentID   string
	SessionID string
	UserID    string
}

const (
	defaultGreeting = "Olá! Estou pronta para conversar."
	defaultApology  = "Desculpe, tive um problema para processar. Pode tentar de novo?"
)

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Greeting) == "" {
		c.Greeting = defaultGreeting
	}
	if strings.TrimSpace(c.Apology) == "" {
		c.Apology = defaultApology
	}
	if strings.TrimSpace(c.SessionID) == "" {
		c.SessionID = uuid.NewString()
	}
	return c
}

// Deps wires the machine's collaborators. Visualizer, Archive and Metrics
// are optional.
type Deps struct {
	Recorder    Recorder
	Player      Player
	Dial        DialFunc
	Synthesizer Synthesizer
	Transcriber BatchTranscriber
	Responder   Responder
	Visualizer  Visualizer
	Archive     memory.Store
	Metrics     *observability.Metrics

	// OnOutcome, when set, observes the outcome label of every finished
	// turn (completed, reset, or an error kind).
	OnOutcome func(outcome string)
}

// Machine is the conversation orchestrator. It owns the interaction state,
// the transcript, and the arbitration between capture, the realtime channel,
// playback and the remote calls. All state changes go through the transition
// table; concurrent callbacks are serialized on one mutex and stale callbacks
// are discarded by epoch token.
type Machine struct {
	cfg     Config
	deps    Deps
	metrics *observability.Metrics
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	state   State
	epoch   int64
	lastErr error
	msgs    *transcript.Log

	// realtime mirror: written together, last write wins
	stream      Stream
	rtText      string
	rtWords     []transcript.WordTiming
	rtConnected bool
}

func New(cfg Config, deps Deps, log zerolog.Logger) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	cfg = cfg.withDefaults()
	return &Machine{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		log:     log.With().Str("component", "conversation").Str("session_id", cfg.SessionID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
		msgs:    transcript.NewLog(),
	}
}

// State returns the current interaction state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns a copy of the transcript so far.
func (m *Machine) Messages() []transcript.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msgs.Messages()
}

// LastError returns the most recent turn failure, nil after a clean turn or
// a forced reset.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// RealtimeConnected reports whether a realtime stream is live for the
// current recording.
func (m *Machine) RealtimeConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtConnected
}

// SessionID identifies this conversation session.
func (m *Machine) SessionID() string { return m.cfg.SessionID }

// Activate is the single external trigger. Its effect depends only on the
// current state: idle begins the greeting, ready starts recording, recording
// stops and processes. Anywhere else it is a no-op.
func (m *Machine) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateIdle:
		m.beginGreetingLocked()
	case StateReady:
		m.beginRecordingLocked()
	case StateRecording:
		m.stopAndProcessLocked()
	default:
		m.log.Debug().Str("state", m.state.String()).Msg("activation ignored")
	}
}

// ForceReset unconditionally returns the machine to idle: playback stopped,
// capture canceled, analyzer stopped, realtime channel closed, mirror and
// error cleared. The transcript is untouched. Safe from any state and
// idempotent; in-flight callbacks from before the reset discard themselves.
func (m *Machine) ForceReset() {
	m.mu.Lock()
	m.epoch++
	stream := m.stream
	m.stream = nil
	m.rtText, m.rtWords, m.rtConnected = "", nil, false
	m.lastErr = nil
	prev := m.state
	m.state = StateIdle
	m.mu.Unlock()

	m.deps.Player.Stop()
	if err := m.deps.Recorder.Cancel(); err != nil && !errors.Is(err, capture.ErrNotActive) {
		m.log.Debug().Err(err).Msg("capture cancel during reset")
	}
	m.stopViz()
	if stream != nil {
		_ = stream.Close()
	}
	if prev != StateIdle {
		m.countOutcome("reset")
		m.observeIndicator("reset_cancel")
	}
	m.log.Info().Str("from", prev.String()).Msg("forced reset")
}

// Close tears the machine down for daemon shutdown.
func (m *Machine) Close() {
	m.ForceReset()
	m.cancel()
	_ = m.deps.Recorder.Destroy()
	m.deps.Player.Destroy()
}

func (m *Machine) transitionLocked(to State) bool {
	from := m.state
	if !CanTransition(from, to) {
		if m.metrics != nil {
			m.metrics.IllegalTransitions.WithLabelValues(from.String(), to.String()).Inc()
		}
		m.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("illegal transition rejected")
		return false
	}
	m.state = to
	if m.metrics != nil {
		m.metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	}
	m.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state transition")
	return true
}

// --- greeting ---

func (m *Machine) beginGreetingLocked() {
	if !m.transitionLocked(StateGreeting) {
		return
	}
	token := m.epoch
	go m.runGreeting(token)
}

func (m *Machine) runGreeting(token int64) {
	if err := m.deps.Player.Warmup(); err != nil {
		m.failGreeting(token, turnErr(KindDevice, err))
		return
	}

	start := time.Now()
	res, err := m.deps.Synthesizer.Fetch(m.ctx, m.cfg.Greeting)
	if err != nil {
		m.countProviderError("synthesis", "greeting")
		m.failGreeting(token, turnErr(KindSynthesis, err))
		return
	}
	m.observeStage("greeting_synthesis", time.Since(start))

	// Timings go into the transcript before playback starts, so anything
	// driven by the transcript can synchronize from the first sample.
	m.mu.Lock()
	if m.epoch != token || m.state != StateGreeting {
		m.mu.Unlock()
		return
	}
	m.msgs.AppendWithTimings(transcript.RoleAssistant, m.cfg.Greeting, transcript.Finalization{
		Clip:            res.Clip,
		Words:           res.Words,
		DurationSeconds: res.DurationSeconds,
	})
	m.mu.Unlock()

	if !m.playAndAwait(res.Clip, token) {
		m.failGreeting(token, turnErr(KindDevice, errors.New("greeting playback failed")))
	}
}

func (m *Machine) failGreeting(token int64, err error) {
	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return
	}
	m.msgs.Append(transcript.RoleAssistant, m.cfg.Apology)
	m.mu.Unlock()

	m.countOutcome("greeting_failed")
	m.log.Error().Err(err).Msg("greeting failed")
	m.ForceReset()

	// Surface the cause while the machine sits in idle, but not over a
	// greeting that was re-activated between the reset and here.
	m.mu.Lock()
	if m.state == StateIdle {
		m.lastErr = err
	}
	m.mu.Unlock()
}

// --- recording ---

func (m *Machine) beginRecordingLocked() {
	if !m.transitionLocked(StateRecording) {
		return
	}
	// fresh mirror for this attempt
	m.rtText, m.rtWords, m.rtConnected = "", nil, false
	m.lastErr = nil
	token := m.epoch
	go m.runRecording(token)
}

func (m *Machine) runRecording(token int64) {
	events, err := m.deps.Recorder.Start(m.ctx)
	if err != nil {
		m.failTurn(token, turnErr(KindDevice, err), "device_error")
		return
	}
	m.startViz("capture")

	if m.deps.Dial != nil {
		go m.dialRealtime(token)
	}

	for evt := range events {
		switch evt.Type {
		case capture.EventChunk:
			m.forwardChunk(token, evt.Chunk)
		case capture.EventError:
			m.failTurn(token, turnErr(KindDevice, evt.Err), "device_error")
			return
		case capture.EventAmplitude:
			// the analyzer samples the service directly
		}
	}
}

func (m *Machine) dialRealtime(token int64) {
	stream, err := m.deps.Dial(m.ctx)
	if err != nil {
		// never fatal: the batch path covers this turn
		m.countProviderError("realtime", "dial")
		m.log.Debug().Err(err).Msg("realtime channel unavailable, batch fallback armed")
		return
	}

	m.mu.Lock()
	if m.epoch != token || m.state != StateRecording {
		m.mu.Unlock()
		_ = stream.Close()
		return
	}
	m.stream = stream
	m.rtConnected = true
	m.mu.Unlock()
	m.log.Debug().Msg("realtime channel connected")
}

func (m *Machine) forwardChunk(token int64, chunk []byte) {
	m.mu.Lock()
	stream := m.stream
	live := m.rtConnected && m.epoch == token
	m.mu.Unlock()
	if !live || stream == nil {
		return
	}
	if err := stream.SendAudio(m.ctx, chunk); err != nil {
		m.countProviderError("realtime", "send")
		m.log.Debug().Err(err).Msg("realtime send failed, degrading to batch")
		m.mu.Lock()
		if m.epoch == token {
			m.rtConnected = false
		}
		m.mu.Unlock()
	}
}

// --- processing ---

func (m *Machine) stopAndProcessLocked() {
	if !m.transitionLocked(StateProcessing) {
		return
	}
	stream := m.stream
	m.stream = nil
	m.rtConnected = false
	if stream != nil {
		// read once at the moment recording stops, then discard
		m.rtText, m.rtWords = stream.Snapshot()
	}
	token := m.epoch
	mirrorText, mirrorWords := m.rtText, m.rtWords
	go m.runProcessing(token, stream, mirrorText, mirrorWords)
}

func (m *Machine) runProcessing(token int64, stream Stream, mirrorText string, mirrorWords []transcript.WordTiming) {
	if stream != nil {
		_ = stream.Close()
	}
	m.stopViz()

	res, stopErr := m.deps.Recorder.Stop()
	if stopErr != nil && !errors.Is(stopErr, capture.ErrEmptyCapture) {
		m.failTurn(token, turnErr(KindDevice, stopErr), "device_error")
		return
	}
	captured := stopErr == nil && len(res.PCM) > 0

	tr := decideTranscription(mirrorText, mirrorWords, captured)
	switch tr.Path {
	case PathFailed:
		m.observeIndicator("empty_capture")
		m.failTurn(token, tr.Reason, "")
		return
	case PathBatch:
		start := time.Now()
		payload, wavErr := audio.EncodeWAV(res.PCM, res.SampleRate)
		if wavErr != nil {
			m.failTurn(token, turnErr(KindTranscription, wavErr), "")
			return
		}
		batch, err := m.deps.Transcriber.Transcribe(m.ctx, payload, "audio/wav")
		if err != nil {
			m.countProviderError("transcribe", "batch")
			m.failTurn(token, turnErr(KindTranscription, err), "")
			return
		}
		tr.Text, tr.Words = batch.Text, batch.Words
		m.observeStage("batch_transcription", time.Since(start))
	}
	m.countPath(string(tr.Path))

	var clip *audio.Clip
	if captured {
		clip = audio.PCMClip(res.PCM, res.SampleRate)
	}

	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return
	}
	m.msgs.Append(transcript.RoleUser, tr.Text)
	if err := m.msgs.FinalizeLast(transcript.Finalization{
		Clip:            clip,
		Words:           tr.Words,
		DurationSeconds: res.Duration.Seconds(),
	}); err != nil {
		m.log.Warn().Err(err).Msg("user message finalize failed")
	}
	m.mu.Unlock()
	m.archive(transcript.RoleUser, tr.Text)

	start := time.Now()
	reply, err := m.deps.Responder.Respond(m.ctx, reasoning.Request{
		Message:   tr.Text,
		AgentID:   m.cfg.AgentID,
		SessionID: m.cfg.SessionID,
	})
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = errors.New("empty reasoning response")
	}
	if err != nil {
		m.countProviderError("reasoning", "respond")
		m.failTurn(token, turnErr(KindReasoning, err), "")
		return
	}
	m.observeStage("reasoning", time.Since(start))

	m.archive(transcript.RoleAssistant, reply.Text)
	m.speak(token, reply.Text, "completed")
}

// --- speaking ---

// speak synthesizes text, appends the assistant message with its timings,
// then plays it through processing→speaking→ready.
func (m *Machine) speak(token int64, text, outcome string) {
	start := time.Now()
	res, err := m.deps.Synthesizer.Fetch(m.ctx, text)
	if err != nil {
		m.countProviderError("synthesis", "fetch")
		m.failTurn(token, turnErr(KindSynthesis, err), "")
		return
	}
	m.observeStage("synthesis", time.Since(start))

	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return
	}
	if m.state != StateSpeaking && !m.transitionLocked(StateSpeaking) {
		m.mu.Unlock()
		return
	}
	m.msgs.AppendWithTimings(transcript.RoleAssistant, text, transcript.Finalization{
		Clip:            res.Clip,
		Words:           res.Words,
		DurationSeconds: res.DurationSeconds,
	})
	m.mu.Unlock()

	if m.playAndAwait(res.Clip, token) {
		m.countOutcome(outcome)
	} else {
		m.settle(token, StateReady)
	}
}

// failTurn records the error and recovers by speaking the apology line,
// ending at ready. A failure inside the apology itself settles silently.
func (m *Machine) failTurn(token int64, err error, indicator string) {
	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	if m.state == StateRecording {
		m.transitionLocked(StateProcessing)
	}
	m.mu.Unlock()

	m.stopViz()
	if cancelErr := m.deps.Recorder.Cancel(); cancelErr != nil && !errors.Is(cancelErr, capture.ErrNotActive) {
		m.log.Debug().Err(cancelErr).Msg("capture cancel after failure")
	}
	if indicator != "" {
		m.observeIndicator(indicator)
	}
	m.countOutcome(string(KindOf(err)))
	m.log.Warn().Err(err).Msg("turn failed, speaking apology")

	res, synthErr := m.deps.Synthesizer.Fetch(m.ctx, m.cfg.Apology)
	if synthErr != nil {
		m.countProviderError("synthesis", "apology")
		m.settle(token, StateReady)
		return
	}

	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return
	}
	if m.state != StateSpeaking && !m.transitionLocked(StateSpeaking) {
		m.mu.Unlock()
		return
	}
	m.msgs.AppendWithTimings(transcript.RoleAssistant, m.cfg.Apology, transcript.Finalization{
		Clip:            res.Clip,
		Words:           res.Words,
		DurationSeconds: res.DurationSeconds,
	})
	m.mu.Unlock()

	if !m.playAndAwait(res.Clip, token) {
		m.settle(token, StateReady)
	}
}

// playAndAwait starts playback and blocks until its ended event, then moves
// to ready. Returns false when playback could not start.
func (m *Machine) playAndAwait(clip *audio.Clip, token int64) bool {
	m.mu.Lock()
	if m.epoch != token {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	events, err := m.deps.Player.Play(clip)
	if err != nil {
		m.log.Error().Err(err).Msg("playback start failed")
		return false
	}

	m.mu.Lock()
	stale := m.epoch != token
	m.mu.Unlock()
	if stale {
		// A reset won the race. The reset already stopped whatever this
		// turn had playing, and the player may now belong to a newer turn,
		// so a Stop here would cut off someone else's audio. Just drain.
		go func() {
			for range events {
			}
		}()
		return true
	}
	m.startViz("playback")

	for evt := range events {
		switch evt.Type {
		case playback.EventEnded:
			m.stopVizIfCurrent(token)
			m.settle(token, StateReady)
			return true
		case playback.EventError:
			m.mu.Lock()
			if m.epoch == token {
				m.lastErr = turnErr(KindDevice, evt.Err)
			}
			m.mu.Unlock()
			m.stopVizIfCurrent(token)
			m.settle(token, StateReady)
			return true
		case playback.EventAmplitude:
			// the analyzer samples the service directly
		}
	}
	m.stopVizIfCurrent(token)
	m.settle(token, StateReady)
	return true
}

// settle applies a terminal transition for an asynchronous chain, skipping
// stale work.
func (m *Machine) settle(token int64, to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != token || m.state == to {
		return
	}
	m.transitionLocked(to)
}

// --- helpers ---

func (m *Machine) startViz(source string) {
	if m.deps.Visualizer != nil {
		m.deps.Visualizer.Start()
	}
	if m.metrics != nil {
		m.metrics.SetActiveSource(source)
	}
}

func (m *Machine) stopViz() {
	if m.deps.Visualizer != nil {
		m.deps.Visualizer.Stop()
	}
	if m.metrics != nil {
		m.metrics.SetActiveSource("none")
	}
}

func (m *Machine) stopVizIfCurrent(token int64) {
	m.mu.Lock()
	current := m.epoch == token
	m.mu.Unlock()
	if current {
		m.stopViz()
	}
}

func (m *Machine) archive(role transcript.Role, text string) {
	if m.deps.Archive == nil || strings.TrimSpace(text) == "" {
		return
	}
	content, redacted := memory.Redact(text)
	record := memory.TurnRecord{
		ID:          uuid.NewString(),
		UserID:      m.cfg.UserID,
		SessionID:   m.cfg.SessionID,
		Role:        string(role),
		Content:     content,
		PIIRedacted: redacted,
		CreatedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		if err := m.deps.Archive.SaveTurn(ctx, record); err != nil {
			m.log.Debug().Err(err).Msg("turn archive failed")
		}
	}()
}

func (m *Machine) observeStage(stage string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.ObserveStage(stage, d)
	}
}

func (m *Machine) observeIndicator(name string) {
	if m.metrics != nil {
		m.metrics.ObserveIndicator(name)
	}
}

func (m *Machine) countOutcome(outcome string) {
	if outcome == "" {
		return
	}
	if m.metrics != nil {
		m.metrics.TurnOutcomes.WithLabelValues(outcome).Inc()
	}
	if m.deps.OnOutcome != nil {
		m.deps.OnOutcome(outcome)
	}
}

func (m *Machine) countProviderError(provider, code string) {
	if m.metrics != nil {
		m.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}

func (m *Machine) countPath(path string) {
	if m.metrics != nil {
		m.metrics.TranscriptionPath.WithLabelValues(path).Inc()
	}
}
