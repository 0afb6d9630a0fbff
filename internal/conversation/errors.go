package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a turn failure for logging, metrics and recovery policy.
type Kind string

const (
	KindDevice        Kind = "device"
	KindEmptyCapture  Kind = "empty_capture"
	KindChannel       Kind = "channel"
	KindTranscription Kind = "transcription"
	KindReasoning     Kind = "reasoning"
	KindSynthesis     Kind = "synthesis"
)

// TurnError wraps a collaborator failure with its classification.
type TurnError struct {
	Kind Kind
	Err  error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

func turnErr(kind Kind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}

// KindOf extracts the classification from an error chain, or "" when the
// error is not a turn failure.
func KindOf(err error) Kind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
