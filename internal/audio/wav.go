package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// wavHeader is the 44-byte canonical header for PCM16LE mono WAV.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAV wraps raw PCM16LE mono bytes in a WAV container. The batch
// transcription endpoint requires a container, the raw realtime frames do not.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAV streams raw PCM16LE mono bytes to out as a WAV payload.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// WAVClip wraps raw PCM16LE mono bytes as a WAV-encoded clip.
func WAVClip(pcm []byte, sampleRate int) (*Clip, error) {
	data, err := EncodeWAV(pcm, sampleRate)
	if err != nil {
		return nil, err
	}
	return &Clip{
		Data:       data,
		MIMEType:   "audio/wav",
		SampleRate: sampleRate,
		Duration:   DurationPCM16(len(pcm), sampleRate),
	}, nil
}
