package audio

import "time"

// Clip is a fully materialized playable audio payload. It is the handle the
// synthesis fetcher returns and the playback service consumes; ownership of a
// clip can move between players, so it carries everything needed to decode it
// without reaching back into the service that produced it.
type Clip struct {
	// Data holds the encoded payload (WAV, MP3) or raw PCM16LE mono frames,
	// according to MIMEType.
	Data       []byte
	MIMEType   string
	SampleRate int
	Duration   time.Duration
}

// Empty reports whether the clip carries no audio at all.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// PCMClip wraps raw PCM16LE mono bytes as a clip.
func PCMClip(pcm []byte, sampleRate int) *Clip {
	return &Clip{
		Data:       pcm,
		MIMEType:   "audio/pcm",
		SampleRate: sampleRate,
		Duration:   DurationPCM16(len(pcm), sampleRate),
	}
}

// DurationPCM16 computes the play time of a PCM16LE mono byte payload.
func DurationPCM16(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 || numBytes <= 0 {
		return 0
	}
	samples := numBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
