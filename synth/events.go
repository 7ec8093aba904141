package synth

// VoiceState is the lifecycle state of one voice slot.
type VoiceState int32

const (
	// StateIdle marks a slot that holds no note and may be allocated.
	StateIdle VoiceState = iota
	// StateActive marks a slot rendering a held note.
	StateActive
	// StateReleasing marks a slot whose note was released and is decaying
	// toward silence.
	StateReleasing
)

func (s VoiceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// VoiceEventKind identifies the action a VoiceEvent instructs the caller to
// perform on one voice.
type VoiceEventKind int

const (
	// EventNoteOn starts (or re-triggers) a note on the addressed voice.
	EventNoteOn VoiceEventKind = iota
	// EventNoteOff releases the note on the addressed voice.
	EventNoteOff
	// EventSteal reclaims the addressed voice for immediate reuse. The
	// caller must silence it at once; an EventNoteOn for the same voice
	// follows in the same sequence.
	EventSteal
)

func (k VoiceEventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventSteal:
		return "steal"
	default:
		return "unknown"
	}
}

// VoiceEvent is one immutable instruction produced by the Allocator and
// consumed once by the caller. Events from a single dispatch call must be
// applied in order before the next audio block renders.
type VoiceEvent struct {
	Kind      VoiceEventKind
	Voice     int
	Note      int
	Velocity  int
	Frequency float32
}
