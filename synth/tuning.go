package synth

// NoteProcessor converts MIDI note numbers, pitch bend, and the tuning
// reference into voice-ready frequencies and gains. The allocator and the
// mono handler consume it; neither computes tuning math itself.
type NoteProcessor struct {
	tuningRef float32 // frequency of A4 (note 69) in Hz
	pitchBend float32 // semitones
}

// NewNoteProcessor creates a processor tuned to A4 = 440 Hz with no bend.
func NewNoteProcessor() *NoteProcessor {
	return &NoteProcessor{tuningRef: 440.0}
}

// SetTuningReference sets the frequency of A4. Non-finite or non-positive
// values are ignored.
func (n *NoteProcessor) SetTuningReference(hz float32) {
	if !isFinite(hz) || hz <= 0 {
		return
	}
	n.tuningRef = clampf(hz, 220.0, 880.0)
}

// TuningReference returns the configured A4 frequency in Hz.
func (n *NoteProcessor) TuningReference() float32 {
	return n.tuningRef
}

// SetPitchBend sets the global bend in semitones. Non-finite values are
// ignored; the bend is clamped to ±24 semitones.
func (n *NoteProcessor) SetPitchBend(semitones float32) {
	if !isFinite(semitones) {
		return
	}
	n.pitchBend = clampf(semitones, -24.0, 24.0)
}

// PitchBend returns the current bend in semitones.
func (n *NoteProcessor) PitchBend() float32 {
	return n.pitchBend
}

// Frequency returns the equal-temperament frequency for a MIDI note,
// including the current pitch bend. Out-of-range notes are clamped to
// [0,127].
func (n *NoteProcessor) Frequency(note int) float32 {
	const a4Note = 69
	note = clampi(note, 0, 127)
	exponent := (float32(note-a4Note) + n.pitchBend) / 12.0
	return n.tuningRef * pow2Approx(exponent)
}

// DetunedFrequency returns the frequency for a note shifted by the given
// number of cents.
func (n *NoteProcessor) DetunedFrequency(note int, cents float32) float32 {
	return n.Frequency(note) * centsToRatio(cents)
}

// VelocityGain maps a MIDI velocity to a normalized [0,1] gain.
func (n *NoteProcessor) VelocityGain(velocity int) float32 {
	velocity = clampi(velocity, 0, 127)
	return float32(velocity) / 127.0
}
