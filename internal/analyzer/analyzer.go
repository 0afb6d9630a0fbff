package analyzer

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/rs/zerolog"
)

// Source exposes the most recent audio frame of a running service. A source
// that is inactive or torn down returns nil.
type Source interface {
	Samples() []float64
	Active() bool
}

// Snapshot is one frequency-domain reading of whichever source was live.
type Snapshot struct {
	Source string    `json:"source"`
	Bins   []float64 `json:"bins"`
	Taken  time.Time `json:"taken"`
}

const (
	SourceNone     = "none"
	SourceCapture  = "capture"
	SourcePlayback = "playback"
)

const (
	defaultInterval = 50 * time.Millisecond
	defaultBins     = 32
)

// Analyzer periodically transforms the live audio frame into frequency bins.
// At most one source is live at a time, so the analyzer polls capture first
// and falls back to playback.
type Analyzer struct {
	capture  Source
	playback Source
	interval time.Duration
	bins     int
	log      zerolog.Logger

	mu      sync.Mutex
	last    Snapshot
	stop    chan struct{}
	done    chan struct{}
	running bool
}

type Option func(*Analyzer)

func WithInterval(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithBins(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.bins = n
		}
	}
}

func New(capture, playback Source, log zerolog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		capture:  capture,
		playback: playback,
		interval: defaultInterval,
		bins:     defaultBins,
		log:      log.With().Str("component", "analyzer").Logger(),
		last:     Snapshot{Source: SourceNone},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins ticking. Starting a running analyzer is a no-op, so callers
// can restart it freely across turns.
func (a *Analyzer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.running = true
	go a.run(a.stop, a.done)
	a.log.Debug().Dur("interval", a.interval).Msg("analyzer started")
}

// Stop halts ticking and clears the last snapshot. Safe to call repeatedly.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	stop, done := a.stop, a.done
	a.running = false
	a.mu.Unlock()

	close(stop)
	<-done

	a.mu.Lock()
	a.last = Snapshot{Source: SourceNone}
	a.mu.Unlock()
	a.log.Debug().Msg("analyzer stopped")
}

// Running reports whether the analyzer is ticking.
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Last returns the most recent snapshot. Before the first tick, or while
// stopped, the snapshot carries SourceNone and no bins.
func (a *Analyzer) Last() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.last
	snap.Bins = append([]float64(nil), a.last.Bins...)
	return snap
}

func (a *Analyzer) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Analyzer) tick() {
	source, frame := a.liveFrame()

	snap := Snapshot{Source: source, Taken: time.Now()}
	if len(frame) > 0 {
		snap.Bins = Spectrum(frame, a.bins)
	}

	a.mu.Lock()
	if a.running {
		a.last = snap
	}
	a.mu.Unlock()
}

func (a *Analyzer) liveFrame() (string, []float64) {
	if a.capture != nil && a.capture.Active() {
		if frame := a.capture.Samples(); len(frame) > 0 {
			return SourceCapture, frame
		}
		return SourceCapture, nil
	}
	if a.playback != nil && a.playback.Active() {
		if frame := a.playback.Samples(); len(frame) > 0 {
			return SourcePlayback, frame
		}
		return SourcePlayback, nil
	}
	return SourceNone, nil
}

// Spectrum reduces a time-domain frame to n magnitude bins. Magnitudes are
// normalized by the frame length so bin values stay comparable across frame
// sizes.
func Spectrum(frame []float64, n int) []float64 {
	if len(frame) == 0 || n <= 0 {
		return nil
	}

	coeffs := fft.FFTReal(frame)
	half := len(coeffs) / 2
	if half == 0 {
		half = 1
	}

	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(coeffs[i]) / float64(len(frame))
	}

	if n >= len(mags) {
		return mags
	}

	// Average contiguous magnitude runs into the requested bin count.
	bins := make([]float64, n)
	per := float64(len(mags)) / float64(n)
	for i := 0; i < n; i++ {
		lo := int(math.Floor(float64(i) * per))
		hi := int(math.Floor(float64(i+1) * per))
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(mags) {
			hi = len(mags)
		}
		var sum float64
		for _, m := range mags[lo:hi] {
			sum += m
		}
		bins[i] = sum / float64(hi-lo)
	}
	return bins
}
