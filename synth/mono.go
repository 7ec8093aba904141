package synth

import "github.com/cwbudde/algo-approx"

// NotePriority decides which held note sounds in mono mode.
type NotePriority int32

const (
	// PriorityLast plays the most recently pressed note.
	PriorityLast NotePriority = iota
	// PriorityLowest plays the lowest held note.
	PriorityLowest
	// PriorityHighest plays the highest held note.
	PriorityHighest
)

func (p NotePriority) String() string {
	switch p {
	case PriorityLast:
		return "last"
	case PriorityLowest:
		return "lowest"
	case PriorityHighest:
		return "highest"
	default:
		return "unknown"
	}
}

// GlideCurve shapes the portamento trajectory between notes.
type GlideCurve int32

const (
	// GlideLinear moves at a constant rate and lands exactly on time.
	GlideLinear GlideCurve = iota
	// GlideExponential approaches the target along a one-pole curve, fast
	// at first and settling asymptotically.
	GlideExponential
)

func (c GlideCurve) String() string {
	switch c {
	case GlideLinear:
		return "linear"
	case GlideExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

type heldNote struct {
	note     int
	velocity int
}

// MonoHandler tracks held notes for monophonic play and resolves them to a
// single sounding pitch. It emits VoiceEvents for one fixed slot and keeps a
// portamento glide that the engine samples once per block.
//
// Like the allocator, dispatch calls must come from one goroutine and the
// returned event slice is valid until the next call.
type MonoHandler struct {
	held []heldNote // press order, most recent last; one entry per note

	priority NotePriority
	curve    GlideCurve
	legato   bool

	glideTime  float32 // seconds
	sampleRate float32

	currentFreq float32
	targetFreq  float32
	glideStep   float32 // per-sample Hz increment (linear)
	lnCoeff     float32 // per-sample log decay factor (exponential)
	gliding     bool

	sounding     bool
	soundingNote int
	lastVelocity int

	voice  int
	tuner  *NoteProcessor
	events []VoiceEvent
}

// NewMonoHandler creates a handler driving slot 0 with last-note priority
// and no glide. A nil tuner gets the default A4=440 processor.
func NewMonoHandler(tuner *NoteProcessor) *MonoHandler {
	if tuner == nil {
		tuner = NewNoteProcessor()
	}
	return &MonoHandler{
		held:         make([]heldNote, 0, 128),
		tuner:        tuner,
		soundingNote: -1,
		events:       make([]VoiceEvent, 0, 4),
	}
}

// SetSampleRate tells the handler the render rate so glide times convert to
// per-sample coefficients.
func (m *MonoHandler) SetSampleRate(hz float32) {
	if !isFinite(hz) || hz <= 0 {
		return
	}
	m.sampleRate = hz
}

// SetVoiceIndex selects which slot the emitted events address.
func (m *MonoHandler) SetVoiceIndex(voice int) {
	m.voice = clampi(voice, 0, MaxVoices-1)
}

// VoiceIndex returns the slot the handler drives.
func (m *MonoHandler) VoiceIndex() int {
	return m.voice
}

// SetPriority selects which held note wins.
func (m *MonoHandler) SetPriority(p NotePriority) {
	if p < PriorityLast || p > PriorityHighest {
		return
	}
	m.priority = p
}

// SetLegato enables legato play: overlapping notes change pitch without
// re-triggering the envelope.
func (m *MonoHandler) SetLegato(on bool) {
	m.legato = on
}

// SetGlideTime sets the portamento time in seconds, clamped to [0,10].
// Non-finite values are ignored; zero disables the glide.
func (m *MonoHandler) SetGlideTime(seconds float32) {
	if !isFinite(seconds) {
		return
	}
	m.glideTime = clampf(seconds, 0, 10)
}

// SetGlideCurve selects the portamento shape.
func (m *MonoHandler) SetGlideCurve(c GlideCurve) {
	if c != GlideLinear && c != GlideExponential {
		return
	}
	m.curve = c
}

// NoteOn registers a key press and returns the events to apply. Pressing a
// note that is already held refreshes its velocity and position in the
// press order.
func (m *MonoHandler) NoteOn(note int, velocity int) []VoiceEvent {
	m.events = m.events[:0]
	note = clampi(note, 0, 127)
	velocity = clampi(velocity, 0, 127)

	m.remove(note)
	m.held = append(m.held, heldNote{note: note, velocity: velocity})

	t := m.top()
	if m.sounding && t.note == m.soundingNote && t.note != note {
		// The pressed key lost the priority contest; nothing sounds anew.
		return m.events
	}
	m.play(t)
	return m.events
}

// NoteOff registers a key release. Releasing the sounding note falls back to
// the next held note per the priority rule, or releases the voice when
// nothing is held.
func (m *MonoHandler) NoteOff(note int) []VoiceEvent {
	m.events = m.events[:0]
	note = clampi(note, 0, 127)

	if !m.remove(note) {
		return m.events
	}
	if m.sounding && note != m.soundingNote {
		return m.events
	}
	if len(m.held) == 0 {
		if m.sounding {
			m.events = append(m.events, VoiceEvent{Kind: EventNoteOff, Voice: m.voice, Note: m.soundingNote, Velocity: m.lastVelocity})
			m.sounding = false
			m.soundingNote = -1
			m.gliding = false
		}
		return m.events
	}
	m.play(m.top())
	return m.events
}

// Advance moves the glide forward by the given number of samples and
// returns the resulting frequency. The second result reports whether the
// pitch moved, so callers can skip redundant voice updates.
func (m *MonoHandler) Advance(frames int) (float32, bool) {
	if !m.gliding || frames <= 0 {
		return m.currentFreq, false
	}
	switch m.curve {
	case GlideLinear:
		m.currentFreq += m.glideStep * float32(frames)
		if (m.glideStep >= 0 && m.currentFreq >= m.targetFreq) ||
			(m.glideStep < 0 && m.currentFreq <= m.targetFreq) {
			m.currentFreq = m.targetFreq
			m.gliding = false
		}
	case GlideExponential:
		k := approx.FastExp(m.lnCoeff * float32(frames))
		m.currentFreq = m.targetFreq + (m.currentFreq-m.targetFreq)*k
		if absf(m.currentFreq-m.targetFreq) < m.targetFreq*1e-4 {
			m.currentFreq = m.targetFreq
			m.gliding = false
		}
	}
	return m.currentFreq, true
}

// Sounding reports whether the mono voice is currently gated on.
func (m *MonoHandler) Sounding() bool {
	return m.sounding
}

// SoundingNote returns the note the mono voice is playing, or -1.
func (m *MonoHandler) SoundingNote() int {
	if !m.sounding {
		return -1
	}
	return m.soundingNote
}

// HeldCount returns the number of keys currently held.
func (m *MonoHandler) HeldCount() int {
	return len(m.held)
}

// Adopt seeds the handler with a note that is already sounding, without
// emitting events. Used when switching from polyphonic play.
func (m *MonoHandler) Adopt(note int, velocity int) {
	note = clampi(note, 0, 127)
	velocity = clampi(velocity, 0, 127)
	m.held = m.held[:0]
	m.held = append(m.held, heldNote{note: note, velocity: velocity})
	m.sounding = true
	m.soundingNote = note
	m.lastVelocity = velocity
	m.currentFreq = m.tuner.Frequency(note)
	m.targetFreq = m.currentFreq
	m.gliding = false
}

// Reset drops all held notes and stops any glide without emitting events.
func (m *MonoHandler) Reset() {
	m.held = m.held[:0]
	m.sounding = false
	m.soundingNote = -1
	m.gliding = false
}

// play makes the given held note the sounding one, starting a glide and, on
// anything but a legato transition, a fresh envelope.
func (m *MonoHandler) play(h heldNote) {
	target := m.tuner.Frequency(h.note)

	if !m.sounding {
		m.currentFreq = target
		m.targetFreq = target
		m.gliding = false
		m.sounding = true
		m.soundingNote = h.note
		m.lastVelocity = h.velocity
		m.events = append(m.events, VoiceEvent{Kind: EventNoteOn, Voice: m.voice, Note: h.note, Velocity: h.velocity, Frequency: target})
		return
	}
	if h.note == m.soundingNote {
		if !m.legato {
			m.lastVelocity = h.velocity
			m.events = append(m.events, VoiceEvent{Kind: EventNoteOn, Voice: m.voice, Note: h.note, Velocity: h.velocity, Frequency: m.currentFreq})
		}
		return
	}

	m.beginGlide(target)
	m.soundingNote = h.note
	m.lastVelocity = h.velocity
	if !m.legato {
		m.events = append(m.events, VoiceEvent{Kind: EventNoteOn, Voice: m.voice, Note: h.note, Velocity: h.velocity, Frequency: m.currentFreq})
	}
}

func (m *MonoHandler) beginGlide(target float32) {
	m.targetFreq = target
	if m.glideTime <= 0 || m.sampleRate <= 0 {
		m.currentFreq = target
		m.gliding = false
		return
	}
	if m.currentFreq == target {
		m.gliding = false
		return
	}
	total := m.glideTime * m.sampleRate
	switch m.curve {
	case GlideLinear:
		m.glideStep = (target - m.currentFreq) / total
	case GlideExponential:
		m.lnCoeff = -1.0 / total
	}
	m.gliding = true
}

// top returns the held note that should sound under the current priority.
func (m *MonoHandler) top() heldNote {
	switch m.priority {
	case PriorityLowest:
		best := 0
		for i := 1; i < len(m.held); i++ {
			if m.held[i].note < m.held[best].note {
				best = i
			}
		}
		return m.held[best]
	case PriorityHighest:
		best := 0
		for i := 1; i < len(m.held); i++ {
			if m.held[i].note > m.held[best].note {
				best = i
			}
		}
		return m.held[best]
	default:
		return m.held[len(m.held)-1]
	}
}

// remove drops a note from the held list, preserving press order. It
// reports whether the note was present.
func (m *MonoHandler) remove(note int) bool {
	for i := range m.held {
		if m.held[i].note == note {
			copy(m.held[i:], m.held[i+1:])
			m.held = m.held[:len(m.held)-1]
			return true
		}
	}
	return false
}
