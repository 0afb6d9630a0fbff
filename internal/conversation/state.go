package conversation

// State is the authoritative interaction state. Exactly one is active at a
// time and it changes only through the transition table below.
type State string

const (
	StateIdle       State = "idle"
	StateGreeting   State = "greeting"
	StateReady      State = "ready"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

func (s State) String() string { return string(s) }

// validTransitions is the sole arbiter of state changes. Anything not listed
// here is rejected and logged, never applied.
var validTransitions = map[State][]State{
	StateIdle:       {StateGreeting},
	StateGreeting:   {StateReady, StateIdle},
	StateReady:      {StateRecording},
	StateRecording:  {StateProcessing, StateReady},
	StateProcessing: {StateSpeaking, StateReady},
	StateSpeaking:   {StateReady},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
