package conversation

import (
	"github.com/andrevianna/clara/internal/capture"
	"github.com/andrevianna/clara/internal/protocol"
	"github.com/andrevianna/clara/internal/transcript"
)

// TranscriptionPath tags where a turn's transcript came from.
type TranscriptionPath string

const (
	PathRealtime TranscriptionPath = "realtime"
	PathBatch    TranscriptionPath = "batch"
	PathFailed   TranscriptionPath = "failed"
)

// Transcription is the outcome of the dual-path decision for one recording.
// PathBatch carries no text yet; the caller still has to run the batch call.
type Transcription struct {
	Path   TranscriptionPath
	Text   string
	Words  []transcript.WordTiming
	Reason error
}

// decideTranscription picks the transcript source for a finished recording.
// The realtime mirror wins whenever it holds usable text; otherwise captured
// audio goes to the batch endpoint; with neither, the stop was an empty
// capture.
func decideTranscription(mirrorText string, mirrorWords []transcript.WordTiming, captured bool) Transcription {
	if text := protocol.NormalizeText(mirrorText); text != "" {
		return Transcription{Path: PathRealtime, Text: text, Words: mirrorWords}
	}
	if !captured {
		return Transcription{Path: PathFailed, Reason: turnErr(KindEmptyCapture, capture.ErrEmptyCapture)}
	}
	return Transcription{Path: PathBatch}
}
