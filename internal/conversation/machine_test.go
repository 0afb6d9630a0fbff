package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/audio"
	"github.com/andrevianna/clara/internal/capture"
	"github.com/andrevianna/clara/internal/playback"
	"github.com/andrevianna/clara/internal/reasoning"
	"github.com/andrevianna/clara/internal/synthesis"
	"github.com/andrevianna/clara/internal/transcribe"
	"github.com/andrevianna/clara/internal/transcript"
)

// --- collaborator fakes ---

type fakeRecorder struct {
	mu       sync.Mutex
	active   bool
	startErr error
	stopErr  error
	result   capture.Result
	events   chan capture.Event
	cancels  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		result: capture.Result{
			PCM:        make([]byte, 32000),
			SampleRate: 16000,
			MIMEType:   "audio/pcm",
			Duration:   time.Second,
		},
	}
}

func (r *fakeRecorder) Start(context.Context) (<-chan capture.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.active = true
	r.events = make(chan capture.Event, 16)
	return r.events, nil
}

func (r *fakeRecorder) Stop() (capture.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return capture.Result{}, capture.ErrNotActive
	}
	r.active = false
	close(r.events)
	if r.stopErr != nil {
		return capture.Result{}, r.stopErr
	}
	return r.result, nil
}

func (r *fakeRecorder) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
	if !r.active {
		return capture.ErrNotActive
	}
	r.active = false
	close(r.events)
	return nil
}

func (r *fakeRecorder) Destroy() error { return nil }

func (r *fakeRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *fakeRecorder) emit(evt capture.Event) {
	r.mu.Lock()
	ch := r.events
	active := r.active
	r.mu.Unlock()
	if active {
		ch <- evt
	}
}

type fakePlayer struct {
	mu      sync.Mutex
	active  bool
	playErr error
	manual  bool // when set, playback ends only via finish()
	events  chan playback.Event
	plays   int
	stops   int
}

func (p *fakePlayer) Warmup() error { return nil }

func (p *fakePlayer) Play(clip *audio.Clip) (<-chan playback.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return nil, p.playErr
	}
	p.plays++
	p.active = true
	p.events = make(chan playback.Event, 4)
	if !p.manual {
		p.events <- playback.Event{Type: playback.EventAmplitude, Amplitude: 0.4}
		p.events <- playback.Event{Type: playback.EventEnded}
		close(p.events)
		p.active = false
	}
	return p.events, nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.active {
		p.events <- playback.Event{Type: playback.EventEnded}
		close(p.events)
		p.active = false
	}
}

func (p *fakePlayer) finish() { p.Stop() }

func (p *fakePlayer) Destroy() {}

func (p *fakePlayer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

type fakeStream struct {
	mu     sync.Mutex
	text   string
	words  []transcript.WordTiming
	chunks int
	closed bool
}

func (s *fakeStream) SendAudio(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	return nil
}

func (s *fakeStream) Snapshot() (string, []transcript.WordTiming) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, append([]transcript.WordTiming(nil), s.words...)
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSynth struct {
	mu    sync.Mutex
	err   error
	words int
	calls []string
}

func (f *fakeSynth) Fetch(_ context.Context, text string) (synthesis.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return synthesis.Result{}, f.err
	}
	f.calls = append(f.calls, text)
	words := make([]transcript.WordTiming, f.words)
	for i := range words {
		words[i] = transcript.WordTiming{Word: "w", Start: float64(i), End: float64(i) + 0.5}
	}
	return synthesis.Result{
		Clip:            audio.PCMClip(make([]byte, 640), 16000),
		Words:           words,
		DurationSeconds: float64(f.words) * 0.5,
	}, nil
}

func (f *fakeSynth) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBatch struct {
	text  string
	err   error
	calls int
}

func (f *fakeBatch) Transcribe(_ context.Context, payload []byte, mimeType string) (transcribe.Result, error) {
	f.calls++
	if f.err != nil {
		return transcribe.Result{}, f.err
	}
	return transcribe.Result{Text: f.text}, nil
}

type fakeResponder struct {
	text string
	err  error
}

func (f *fakeResponder) Respond(_ context.Context, req reasoning.Request) (reasoning.Response, error) {
	if f.err != nil {
		return reasoning.Response{}, f.err
	}
	return reasoning.Response{Text: f.text}, nil
}

type fixture struct {
	machine   *Machine
	recorder  *fakeRecorder
	player    *fakePlayer
	stream    *fakeStream
	synth     *fakeSynth
	batch     *fakeBatch
	responder *fakeResponder
	dialErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		recorder:  newFakeRecorder(),
		player:    &fakePlayer{},
		stream:    &fakeStream{},
		synth:     &fakeSynth{words: 3},
		batch:     &fakeBatch{text: "qual o valor do dólar hoje"},
		responder: &fakeResponder{text: "o dólar está em alta"},
	}
	f.machine = New(Config{SessionID: "test-session"}, Deps{
		Recorder: f.recorder,
		Player:   f.player,
		Dial: func(context.Context) (Stream, error) {
			if f.dialErr != nil {
				return nil, f.dialErr
			}
			return f.stream, nil
		},
		Synthesizer: f.synth,
		Transcriber: f.batch,
		Responder:   f.responder,
	}, zerolog.Nop())
	t.Cleanup(f.machine.Close)
	return f
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if m.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("state = %s, want %s", m.State(), want)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// --- transition table (P1) ---

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		legal    bool
	}{
		{StateIdle, StateGreeting, true},
		{StateIdle, StateRecording, false},
		{StateGreeting, StateReady, true},
		{StateGreeting, StateIdle, true},
		{StateGreeting, StateSpeaking, false},
		{StateReady, StateRecording, true},
		{StateReady, StateSpeaking, false},
		{StateRecording, StateProcessing, true},
		{StateRecording, StateReady, true},
		{StateRecording, StateSpeaking, false},
		{StateProcessing, StateSpeaking, true},
		{StateProcessing, StateReady, true},
		{StateProcessing, StateIdle, false},
		{StateSpeaking, StateReady, true},
		{StateSpeaking, StateRecording, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.legal {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.legal)
		}
	}
}

func TestIllegalTransitionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.machine.mu.Lock()
	if f.machine.transitionLocked(StateSpeaking) {
		t.Error("idle → speaking accepted")
	}
	if got := f.machine.state; got != StateIdle {
		t.Errorf("state = %s, want idle after rejected transition", got)
	}
	f.machine.mu.Unlock()
}

func TestActivateIgnoredInTransientStates(t *testing.T) {
	f := newFixture(t)
	f.player.manual = true
	f.machine.Activate() // idle → greeting
	waitState(t, f.machine, StateGreeting)

	f.machine.Activate() // no-op mid-greeting
	if got := f.machine.State(); got != StateGreeting {
		t.Fatalf("state = %s, want greeting after spurious activate", got)
	}
	f.player.finish()
	waitState(t, f.machine, StateReady)
}

// --- greeting (Scenario A) ---

func TestGreetingFlow(t *testing.T) {
	f := newFixture(t)
	f.synth.words = 12

	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	msgs := f.machine.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Role != transcript.RoleAssistant {
		t.Errorf("role = %s, want assistant", msg.Role)
	}
	if len(msg.Words) != 12 {
		t.Errorf("len(words) = %d, want 12", len(msg.Words))
	}
	if f.player.plays != 1 {
		t.Errorf("plays = %d, want 1", f.player.plays)
	}
}

func TestGreetingTimingsAttachedBeforePlayback(t *testing.T) {
	// P5: the transcript entry carries its word timings before the first
	// playback sample can be observed.
	f := newFixture(t)
	f.player.manual = true
	f.synth.words = 5

	f.machine.Activate()
	waitFor(t, "playback start", func() bool { return f.player.Active() })

	msgs := f.machine.Messages()
	if len(msgs) != 1 || len(msgs[0].Words) != 5 {
		t.Fatalf("timings not attached before playback: %+v", msgs)
	}
	f.player.finish()
	waitState(t, f.machine, StateReady)
}

func TestGreetingSynthesisFailureResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.synth.err = errors.New("synthesis down")

	f.machine.Activate()
	waitState(t, f.machine, StateIdle)
	waitFor(t, "last error", func() bool { return f.machine.LastError() != nil })

	if kind := KindOf(f.machine.LastError()); kind != KindSynthesis {
		t.Fatalf("error kind = %q, want synthesis", kind)
	}
	if len(f.machine.Messages()) != 1 {
		t.Fatalf("len(messages) = %d, want apology appended", len(f.machine.Messages()))
	}
}

// --- full turn, realtime path ---

func runGreetingToReady(t *testing.T, f *fixture) {
	t.Helper()
	f.machine.Activate()
	waitState(t, f.machine, StateReady)
}

func TestFullTurnRealtimePath(t *testing.T) {
	f := newFixture(t)
	f.stream.text = "bom dia clara"
	runGreetingToReady(t, f)

	f.machine.Activate() // start recording
	waitState(t, f.machine, StateRecording)
	waitFor(t, "realtime connect", f.machine.RealtimeConnected)

	f.recorder.emit(capture.Event{Type: capture.EventChunk, Chunk: make([]byte, 2048)})
	waitFor(t, "chunk forwarded", func() bool {
		f.stream.mu.Lock()
		defer f.stream.mu.Unlock()
		return f.stream.chunks > 0
	})

	f.machine.Activate() // stop and process
	waitState(t, f.machine, StateReady)

	if f.batch.calls != 0 {
		t.Errorf("batch calls = %d, want 0 when realtime text available", f.batch.calls)
	}
	msgs := f.machine.Messages()
	// greeting + user + assistant
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}
	if msgs[1].Role != transcript.RoleUser || msgs[1].Text != "bom dia clara" {
		t.Errorf("user message = %+v", msgs[1])
	}
	if msgs[2].Role != transcript.RoleAssistant || msgs[2].Text != "o dólar está em alta" {
		t.Errorf("assistant message = %+v", msgs[2])
	}
	f.stream.mu.Lock()
	closed := f.stream.closed
	f.stream.mu.Unlock()
	if !closed {
		t.Error("stream not closed after stop")
	}
}

// --- batch fallback (Scenario B, P4) ---

func TestBatchFallbackWhenChannelNeverConnects(t *testing.T) {
	f := newFixture(t)
	f.dialErr = errors.New("dial timeout")
	runGreetingToReady(t, f)

	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.recorder.emit(capture.Event{Type: capture.EventChunk, Chunk: make([]byte, 2048)})

	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	if f.batch.calls != 1 {
		t.Fatalf("batch calls = %d, want 1", f.batch.calls)
	}
	msgs := f.machine.Messages()
	if msgs[1].Text != "qual o valor do dólar hoje" {
		t.Fatalf("user text = %q, want batch transcript", msgs[1].Text)
	}
	if f.machine.LastError() != nil {
		t.Fatalf("last error = %v, want nil on silent degrade", f.machine.LastError())
	}
}

func TestBatchFallbackWhenRealtimeMirrorEmpty(t *testing.T) {
	f := newFixture(t)
	f.stream.text = "   " // whitespace only, not usable
	runGreetingToReady(t, f)

	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	if f.batch.calls != 1 {
		t.Fatalf("batch calls = %d, want 1 for whitespace mirror", f.batch.calls)
	}
}

// --- empty capture (Scenario C) ---

func TestEmptyCaptureSpeaksApologyAndReturnsReady(t *testing.T) {
	f := newFixture(t)
	f.recorder.stopErr = capture.ErrEmptyCapture
	runGreetingToReady(t, f)

	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	if kind := KindOf(f.machine.LastError()); kind != KindEmptyCapture {
		t.Fatalf("error kind = %q, want empty_capture", kind)
	}
	msgs := f.machine.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != transcript.RoleAssistant || !strings.Contains(last.Text, "Desculpe") {
		t.Fatalf("last message = %+v, want spoken apology", last)
	}
}

// --- failure recovery (P3) ---

func TestEveryFailurePathReachesReady(t *testing.T) {
	cases := []struct {
		name string
		prep func(*fixture)
		kind Kind
	}{
		{"batch transcription fails", func(f *fixture) {
			f.batch.err = errors.New("stt down")
		}, KindTranscription},
		{"reasoning fails", func(f *fixture) {
			f.responder.err = errors.New("agent down")
		}, KindReasoning},
		{"reasoning empty", func(f *fixture) {
			f.responder.text = "  "
		}, KindReasoning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.dialErr = errors.New("no channel")
			runGreetingToReady(t, f)
			tc.prep(f)

			f.machine.Activate()
			waitState(t, f.machine, StateRecording)
			f.machine.Activate()
			waitState(t, f.machine, StateReady)

			if kind := KindOf(f.machine.LastError()); kind != tc.kind {
				t.Fatalf("error kind = %q, want %q", kind, tc.kind)
			}
		})
	}
}

func TestSynthesisFailureSettlesReadyWithoutApologyLoop(t *testing.T) {
	f := newFixture(t)
	f.dialErr = errors.New("no channel")
	runGreetingToReady(t, f)
	f.synth.err = errors.New("tts down")

	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	if kind := KindOf(f.machine.LastError()); kind != KindSynthesis {
		t.Fatalf("error kind = %q, want synthesis", kind)
	}
}

func TestDeviceErrorOnStartRecovers(t *testing.T) {
	f := newFixture(t)
	runGreetingToReady(t, f)
	f.recorder.startErr = errors.New("mic busy")

	f.machine.Activate()
	waitState(t, f.machine, StateReady)
	if kind := KindOf(f.machine.LastError()); kind != KindDevice {
		t.Fatalf("error kind = %q, want device", kind)
	}
}

// --- forced reset (Scenario D) ---

func TestForceResetMidSpeaking(t *testing.T) {
	f := newFixture(t)
	f.stream.text = "oi"
	runGreetingToReady(t, f)

	f.player.manual = true
	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateSpeaking)

	before := len(f.machine.Messages())
	f.machine.ForceReset()

	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if f.player.Active() {
		t.Error("playback still active after reset")
	}
	if got := len(f.machine.Messages()); got != before {
		t.Errorf("len(messages) = %d, want %d (transcript unchanged)", got, before)
	}
	if f.machine.LastError() != nil {
		t.Error("error field not cleared by reset")
	}
	if f.machine.RealtimeConnected() {
		t.Error("realtime mirror not cleared by reset")
	}
}

func TestForceResetIdempotent(t *testing.T) {
	f := newFixture(t)
	f.machine.ForceReset()
	f.machine.ForceReset()
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestStaleCallbackDiscardedAfterReset(t *testing.T) {
	f := newFixture(t)
	f.player.manual = true
	f.machine.Activate()
	waitState(t, f.machine, StateGreeting)
	waitFor(t, "playback start", f.player.Active)

	f.machine.ForceReset()
	waitState(t, f.machine, StateIdle)

	// the ended event from the stopped playback must not resurrect ready
	time.Sleep(30 * time.Millisecond)
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle after stale playback end", got)
	}
}

// gatedPlayer parks one Play call until released, so a reset and a newer
// turn can interleave while the old turn sits inside the player.
type gatedPlayer struct {
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
	live    chan playback.Event
	active  bool
	stops   int
}

func (p *gatedPlayer) Warmup() error { return nil }

func (p *gatedPlayer) Play(*audio.Clip) (<-chan playback.Event, error) {
	p.mu.Lock()
	gate := p.gate
	p.gate = nil
	p.mu.Unlock()
	if gate != nil {
		close(p.entered)
		<-gate
		ch := make(chan playback.Event)
		close(ch)
		return ch, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.live = make(chan playback.Event, 4)
	return p.live, nil
}

func (p *gatedPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.active {
		p.live <- playback.Event{Type: playback.EventEnded}
		close(p.live)
		p.active = false
	}
}

func (p *gatedPlayer) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		p.live <- playback.Event{Type: playback.EventEnded}
		close(p.live)
		p.active = false
	}
}

func (p *gatedPlayer) Destroy() {}

func (p *gatedPlayer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *gatedPlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func TestStaleTurnDoesNotStopNewerPlayback(t *testing.T) {
	player := &gatedPlayer{
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	m := New(Config{SessionID: "test-session"}, Deps{
		Recorder:    newFakeRecorder(),
		Player:      player,
		Synthesizer: &fakeSynth{words: 2},
		Transcriber: &fakeBatch{text: "oi"},
		Responder:   &fakeResponder{text: "olá"},
	}, zerolog.Nop())
	t.Cleanup(m.Close)

	m.Activate() // greeting A parks inside Play
	<-player.entered

	m.ForceReset()
	waitState(t, m, StateIdle)
	m.Activate() // greeting B
	waitFor(t, "newer playback to start", player.Active)

	close(player.gate) // A resumes and sees the stale epoch
	time.Sleep(30 * time.Millisecond)
	if !player.Active() {
		t.Fatal("stale turn stopped the newer turn's playback")
	}
	if got := m.State(); got != StateGreeting {
		t.Fatalf("state = %s, want greeting while newer playback is live", got)
	}

	player.end()
	waitState(t, m, StateReady)
	if got := player.stopCount(); got != 1 {
		t.Fatalf("player stops = %d, want 1 (the reset only)", got)
	}
}

// hookViz runs a callback on its first Stop, which lands inside ForceReset's
// teardown and lets a test interleave work between the reset and the
// caller's continuation.
type hookViz struct {
	once   sync.Once
	onStop func()
}

func (v *hookViz) Start() {}

func (v *hookViz) Stop() {
	if v.onStop != nil {
		v.once.Do(v.onStop)
	}
}

func TestGreetingFailureErrorNotInheritedByNextGreeting(t *testing.T) {
	rec := newFakeRecorder()
	player := &fakePlayer{}
	synth := &fakeSynth{words: 2, err: errors.New("synthesis down")}
	viz := &hookViz{}
	m := New(Config{SessionID: "test-session"}, Deps{
		Recorder:    rec,
		Player:      player,
		Synthesizer: synth,
		Transcriber: &fakeBatch{text: "oi"},
		Responder:   &fakeResponder{text: "olá"},
		Visualizer:  viz,
	}, zerolog.Nop())
	t.Cleanup(m.Close)

	// Re-activate during the failed greeting's reset, before it records its
	// error. The new greeting must not inherit the dead turn's error.
	viz.onStop = func() {
		synth.mu.Lock()
		synth.err = nil
		synth.mu.Unlock()
		m.Activate()
	}

	m.Activate()
	waitState(t, m, StateReady)

	if err := m.LastError(); err != nil {
		t.Fatalf("LastError = %v, want nil on the re-activated greeting", err)
	}
}

// --- exclusive audio source (P2) ---

func TestCaptureAndPlaybackNeverBothActive(t *testing.T) {
	f := newFixture(t)
	f.stream.text = "oi clara"
	runGreetingToReady(t, f)

	stop := make(chan struct{})
	violation := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if f.recorder.Active() && f.player.Active() {
				select {
				case violation <- struct{}{}:
				default:
				}
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 3; i++ {
		f.machine.Activate()
		waitState(t, f.machine, StateRecording)
		f.machine.Activate()
		waitState(t, f.machine, StateReady)
	}
	close(stop)
	select {
	case <-violation:
		t.Fatal("capture and playback were active simultaneously")
	default:
	}
}

// --- realtime mirror hygiene ---

func TestMirrorClearedBetweenTurns(t *testing.T) {
	f := newFixture(t)
	f.stream.text = "primeira frase"
	runGreetingToReady(t, f)

	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	// second turn: channel yields nothing, must not reuse the first text
	f.stream = &fakeStream{}
	f.machine.Activate()
	waitState(t, f.machine, StateRecording)
	f.machine.Activate()
	waitState(t, f.machine, StateReady)

	if f.batch.calls != 1 {
		t.Fatalf("batch calls = %d, want 1 (second turn must fall back)", f.batch.calls)
	}
}

// --- decision function ---

func TestDecideTranscription(t *testing.T) {
	words := []transcript.WordTiming{{Word: "oi", Start: 0, End: 0.4}}
	cases := []struct {
		name     string
		mirror   string
		captured bool
		path     TranscriptionPath
	}{
		{"realtime text wins", "oi clara", true, PathRealtime},
		{"realtime text without audio", "oi clara", false, PathRealtime},
		{"empty mirror with audio", "", true, PathBatch},
		{"whitespace mirror with audio", "  \n ", true, PathBatch},
		{"nothing at all", "", false, PathFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decideTranscription(tc.mirror, words, tc.captured)
			if got.Path != tc.path {
				t.Fatalf("path = %s, want %s", got.Path, tc.path)
			}
			if tc.path == PathFailed && KindOf(got.Reason) != KindEmptyCapture {
				t.Fatalf("reason = %v, want empty capture", got.Reason)
			}
		})
	}
}
