package playback

import (
	"math"
	"sync"

	"github.com/faiface/beep"

	"github.com/andrevianna/clara/internal/audio"
)

// pcmStreamer streams raw PCM16LE mono bytes as a beep source, duplicating
// the channel to stereo.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func newPCMStreamer(pcm []byte) *pcmStreamer {
	return &pcmStreamer{samples: audio.BytesToInt16(pcm)}
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for ; n < len(out) && s.pos < len(s.samples); n++ {
		v := float64(s.samples[s.pos]) / math.MaxInt16
		out[n][0] = v
		out[n][1] = v
		s.pos++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

// tap wraps a streamer, records the latest output frame for the analyzer,
// and reports per-buffer RMS amplitude through a callback. It runs on the
// speaker goroutine, so everything it touches is lock-guarded.
type tap struct {
	inner beep.Streamer

	mu   sync.Mutex
	last []float64

	onAmplitude func(rms float64)
}

func newTap(inner beep.Streamer, onAmplitude func(float64)) *tap {
	return &tap{inner: inner, onAmplitude: onAmplitude}
}

func (t *tap) Stream(out [][2]float64) (int, bool) {
	n, ok := t.inner.Stream(out)
	if n > 0 {
		mono := make([]float64, n)
		var sum float64
		for i := 0; i < n; i++ {
			v := (out[i][0] + out[i][1]) / 2
			mono[i] = v
			sum += v * v
		}
		t.mu.Lock()
		t.last = mono
		t.mu.Unlock()
		if t.onAmplitude != nil {
			t.onAmplitude(math.Sqrt(sum / float64(n)))
		}
	}
	return n, ok
}

func (t *tap) Err() error { return t.inner.Err() }

func (t *tap) samples() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.last))
	copy(out, t.last)
	return out
}
