package synth

import "math"

// VoiceMode selects between polyphonic and monophonic note handling.
type VoiceMode int32

const (
	// ModePoly routes notes through the allocator across all voice slots.
	ModePoly VoiceMode = iota
	// ModeMono routes notes through the mono handler into a single slot.
	ModeMono
)

func (m VoiceMode) String() string {
	switch m {
	case ModePoly:
		return "poly"
	case ModeMono:
		return "mono"
	default:
		return "unknown"
	}
}

// Engine is the top-level orchestrator. It routes note dispatch to the
// allocator or the mono handler, applies the resulting events to the voice
// pool, renders every voice per block, and mixes the sum with gain
// compensation, soft limiting, and sample sanitization.
//
// Note dispatch and ProcessBlock must not overlap; serializing them is the
// caller's responsibility. The Slot* and ActiveVoiceCount getters are safe
// from a second goroutine. After Prepare, ProcessBlock performs no heap
// allocation.
type Engine struct {
	sampleRate float32

	voices [MaxVoices]Voice
	alloc  *Allocator
	mono   *MonoHandler
	tuner  *NoteProcessor

	mode VoiceMode

	space     *SpaceConvolver
	spaceOn   bool
	spaceMix  float32
	spaceGain float32

	outputGain float32

	monoFreq float32 // last frequency applied to the mono slot

	wet      []float32
	maxBlock int
	prepared bool
}

// NewEngine creates an engine whose slots are filled with ToneVoices
// configured from p. A nil p uses the defaults.
func NewEngine(sampleRate float32, p *Params) *Engine {
	if p == nil {
		p = NewDefaultParams()
	}
	voices := make([]Voice, MaxVoices)
	for i := range voices {
		voices[i] = NewToneVoice(sampleRate, p)
	}
	return NewEngineWithVoices(sampleRate, voices, p)
}

// NewEngineWithVoices creates an engine over caller-provided voices. Slots
// beyond len(voices) stay empty and render silence. A nil p uses the
// defaults.
func NewEngineWithVoices(sampleRate float32, voices []Voice, p *Params) *Engine {
	if p == nil {
		p = NewDefaultParams()
	}
	if !isFinite(sampleRate) || sampleRate <= 0 {
		sampleRate = 48000
	}

	tuner := NewNoteProcessor()
	tuner.SetTuningReference(p.TuningReference)
	tuner.SetPitchBend(p.PitchBend)

	e := &Engine{
		sampleRate: sampleRate,
		alloc:      NewAllocator(p.VoiceCount, tuner),
		mono:       NewMonoHandler(tuner),
		tuner:      tuner,
		space:      NewSpaceConvolver(),
		outputGain: 1.0,
	}
	copy(e.voices[:], voices)

	e.alloc.SetAllocationMode(p.AllocationMode)
	e.alloc.SetStealMode(p.StealMode)
	e.alloc.SetUnisonCount(p.UnisonCount)
	e.alloc.SetUnisonDetune(p.UnisonDetune)

	e.mono.SetSampleRate(sampleRate)
	e.mono.SetPriority(p.NotePriority)
	e.mono.SetLegato(p.Legato)
	e.mono.SetGlideTime(p.GlideTime)
	e.mono.SetGlideCurve(p.GlideCurve)

	if p.VoiceMode == ModeMono {
		e.mode = ModeMono
	}
	e.SetOutputGain(p.OutputGain)
	e.SetSpaceMix(p.SpaceMix)
	e.SetSpaceGain(p.SpaceGain)
	return e
}

// Prepare sizes the internal block buffers for the given maximum block
// length. It must be called before ProcessBlock; calling it again resizes.
func (e *Engine) Prepare(maxBlock int) {
	if maxBlock < 1 {
		maxBlock = 1
	}
	e.maxBlock = maxBlock
	e.wet = make([]float32, maxBlock)
	e.prepared = true
}

// SampleRate returns the render rate in Hz.
func (e *Engine) SampleRate() float32 {
	return e.sampleRate
}

// NoteOn dispatches a key press to the active note handler and applies the
// resulting events to the voice pool.
func (e *Engine) NoteOn(note int, velocity int) {
	if e.mode == ModeMono {
		events := e.mono.NoteOn(note, velocity)
		e.applyEvents(events)
		e.mirrorMono(events)
		return
	}
	e.applyEvents(e.alloc.NoteOn(note, velocity))
}

// NoteOff dispatches a key release.
func (e *Engine) NoteOff(note int) {
	if e.mode == ModeMono {
		events := e.mono.NoteOff(note)
		e.applyEvents(events)
		e.mirrorMono(events)
		return
	}
	e.applyEvents(e.alloc.NoteOff(note))
}

// mirrorMono reflects mono-handler events into the allocator's slot table so
// the monitoring getters and the end-of-block reconciliation keep working
// while the allocator itself is bypassed.
func (e *Engine) mirrorMono(events []VoiceEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case EventNoteOn:
			e.alloc.Adopt(ev.Voice, ev.Note, ev.Velocity)
		case EventNoteOff:
			e.alloc.NoteOff(ev.Note)
		}
	}
}

// ProcessBlock renders one block of mono samples into out. An unprepared
// engine or an empty buffer is a no-op. Buffers longer than the prepared
// maximum are processed in maximum-sized chunks.
func (e *Engine) ProcessBlock(out []float32) {
	if !e.prepared || len(out) == 0 {
		return
	}
	for start := 0; start < len(out); start += e.maxBlock {
		end := start + e.maxBlock
		if end > len(out) {
			end = len(out)
		}
		e.renderBlock(out[start:end])
	}
}

// SetVoiceMode switches between polyphonic and monophonic handling.
// Entering Mono keeps the most recently activated voice and releases the
// rest; entering Poly re-seeds the allocator with whatever the mono slot is
// sounding.
func (e *Engine) SetVoiceMode(m VoiceMode) {
	if m != ModePoly && m != ModeMono {
		return
	}
	if m == e.mode {
		return
	}
	if m == ModeMono {
		kept, events := e.alloc.ReleaseAllExceptNewest()
		e.applyEvents(events)
		if kept >= 0 {
			e.mono.SetVoiceIndex(kept)
			e.mono.Adopt(e.alloc.slots[kept].note, e.alloc.slots[kept].velocity)
			e.monoFreq = e.tuner.Frequency(e.mono.SoundingNote())
		} else {
			e.mono.Reset()
			e.mono.SetVoiceIndex(0)
		}
		e.mode = ModeMono
		return
	}
	e.alloc.Reset()
	if e.mono.Sounding() {
		e.alloc.Adopt(e.mono.VoiceIndex(), e.mono.SoundingNote(), e.mono.lastVelocity)
	}
	e.mono.Reset()
	e.mode = ModePoly
}

// Mode returns the current voice mode.
func (e *Engine) Mode() VoiceMode {
	return e.mode
}

// SetVoiceCount changes the configured polyphony; events vacating
// out-of-range slots are applied immediately.
func (e *Engine) SetVoiceCount(n int) {
	e.applyEvents(e.alloc.SetVoiceCount(n))
}

// VoiceCount returns the configured polyphony.
func (e *Engine) VoiceCount() int {
	return e.alloc.VoiceCount()
}

// SetAllocationMode selects the allocation policy for future notes.
func (e *Engine) SetAllocationMode(m AllocationMode) {
	e.alloc.SetAllocationMode(m)
}

// SetStealMode selects how contention is resolved for future notes.
func (e *Engine) SetStealMode(m StealMode) {
	e.alloc.SetStealMode(m)
}

// SetUnisonCount sets the unison fan-out for future notes.
func (e *Engine) SetUnisonCount(n int) {
	e.alloc.SetUnisonCount(n)
}

// SetUnisonDetune sets the total unison spread in cents.
func (e *Engine) SetUnisonDetune(cents float32) {
	e.alloc.SetUnisonDetune(cents)
}

// SetPitchBend sets the global bend in semitones, effective on future
// allocations.
func (e *Engine) SetPitchBend(semitones float32) {
	e.tuner.SetPitchBend(semitones)
}

// SetTuningReference sets the A4 reference frequency.
func (e *Engine) SetTuningReference(hz float32) {
	e.tuner.SetTuningReference(hz)
}

// SetNotePriority selects which held note wins in mono mode.
func (e *Engine) SetNotePriority(p NotePriority) {
	e.mono.SetPriority(p)
}

// SetGlideTime sets the mono portamento time in seconds.
func (e *Engine) SetGlideTime(seconds float32) {
	e.mono.SetGlideTime(seconds)
}

// SetGlideCurve selects the mono portamento shape.
func (e *Engine) SetGlideCurve(c GlideCurve) {
	e.mono.SetGlideCurve(c)
}

// SetLegato enables legato play in mono mode.
func (e *Engine) SetLegato(on bool) {
	e.mono.SetLegato(on)
}

// SetOutputGain sets the master gain, clamped to [0,4]. Non-finite values
// are ignored.
func (e *Engine) SetOutputGain(gain float32) {
	if !isFinite(gain) {
		return
	}
	e.outputGain = clampf(gain, 0, 4)
}

// SetCutoff retunes the filter of every voice that has one. Non-finite or
// non-positive values are ignored.
func (e *Engine) SetCutoff(hz float32) {
	if !isFinite(hz) || hz <= 0 {
		return
	}
	for i := range e.voices {
		if fv, ok := e.voices[i].(FilteredVoice); ok {
			fv.SetCutoff(hz)
		}
	}
}

// SetWaveform switches the generator of every bundled voice; it takes
// effect on each voice's next note.
func (e *Engine) SetWaveform(w Waveform) {
	for i := range e.voices {
		if tv, ok := e.voices[i].(*ToneVoice); ok {
			tv.SetWaveform(w)
		}
	}
}

// SetEnvelope sets the amplitude envelope of every bundled voice. Times in
// seconds, sustain as a 0..1 level; non-finite components are ignored
// per-segment.
func (e *Engine) SetEnvelope(attack, decay, sustain, release float32) {
	for i := range e.voices {
		tv, ok := e.voices[i].(*ToneVoice)
		if !ok {
			continue
		}
		tv.SetAttack(attack)
		tv.SetDecay(decay)
		tv.SetSustain(sustain)
		tv.SetRelease(release)
	}
}

// SetSpaceIR configures the master-bus convolution impulse response from a
// caller-provided buffer. An empty buffer disables the space entirely.
func (e *Engine) SetSpaceIR(ir []float32) {
	if len(ir) == 0 {
		e.spaceOn = false
		e.space.SetIR(nil)
		return
	}
	e.space.SetIR(ir)
	e.spaceOn = true
}

// SetSpaceMix sets the wet amount in [0,1]. Non-finite values are ignored.
func (e *Engine) SetSpaceMix(mix float32) {
	if !isFinite(mix) {
		return
	}
	e.spaceMix = clampf(mix, 0, 1)
}

// SetSpaceGain sets the gain on the wet signal, clamped to [0,4].
func (e *Engine) SetSpaceGain(gain float32) {
	if !isFinite(gain) {
		return
	}
	e.spaceGain = clampf(gain, 0, 4)
}

// Reset silences every voice and clears all note bookkeeping.
func (e *Engine) Reset() {
	for i := range e.voices {
		if e.voices[i] != nil {
			e.voices[i].Steal()
		}
	}
	e.alloc.Reset()
	e.mono.Reset()
	e.space.Reset()
	e.monoFreq = 0
}

// SlotState returns the lifecycle state of one slot. Safe from a monitoring
// goroutine.
func (e *Engine) SlotState(voice int) VoiceState {
	return e.alloc.SlotState(voice)
}

// SlotNote returns the note held by a slot, or -1. Safe from a monitoring
// goroutine.
func (e *Engine) SlotNote(voice int) int {
	return e.alloc.SlotNote(voice)
}

// ActiveVoiceCount returns the number of sounding slots. Safe from a
// monitoring goroutine.
func (e *Engine) ActiveVoiceCount() int {
	return e.alloc.ActiveVoiceCount()
}

// applyEvents applies an allocator or mono event sequence to the voice
// pool, in order.
func (e *Engine) applyEvents(events []VoiceEvent) {
	for _, ev := range events {
		if ev.Voice < 0 || ev.Voice >= MaxVoices {
			continue
		}
		v := e.voices[ev.Voice]
		if v == nil {
			continue
		}
		switch ev.Kind {
		case EventNoteOn:
			v.NoteOn(ev.Note, ev.Velocity, ev.Frequency)
			if e.mode == ModeMono && ev.Voice == e.mono.VoiceIndex() {
				e.monoFreq = ev.Frequency
			}
		case EventNoteOff:
			v.NoteOff()
		case EventSteal:
			v.Steal()
		}
	}
}

// renderBlock renders one block of at most maxBlock samples. Rendering
// never calls back into the allocator; finished voices are reconciled only
// after every voice has rendered, so slot indices stay stable for the whole
// block.
func (e *Engine) renderBlock(out []float32) {
	for i := range out {
		out[i] = 0
	}

	if e.mode == ModeMono && e.mono.Sounding() {
		freq, _ := e.mono.Advance(len(out))
		if freq != e.monoFreq {
			if tv, ok := e.voices[e.mono.VoiceIndex()].(TunableVoice); ok {
				tv.SetFrequency(freq)
			}
			e.monoFreq = freq
		}
	}

	// Sum every slot, not just the configured ones: after a shrink, soft
	// release tails beyond the configured count keep sounding until their
	// voices finish.
	for i := 0; i < MaxVoices; i++ {
		if e.voices[i] != nil {
			e.voices[i].Render(out)
		}
	}

	// Loudness compensation uses the configured count, not the number of
	// sounding voices, so levels do not pump as notes start and stop.
	comp := e.outputGain / float32(math.Sqrt(float64(e.alloc.VoiceCount())))

	if e.spaceOn && e.spaceMix > 0 {
		wet := e.wet[:len(out)]
		e.space.ProcessTo(wet, out)
		wetGain := e.spaceMix * e.spaceGain
		for i := range out {
			out[i] = softLimit(sanitize((out[i] + wet[i]*wetGain) * comp))
		}
	} else {
		for i := range out {
			out[i] = softLimit(sanitize(out[i] * comp))
		}
	}

	for i := 0; i < MaxVoices; i++ {
		if e.alloc.SlotState(i) != StateReleasing {
			continue
		}
		if e.voices[i] == nil || !e.voices[i].Active() {
			e.alloc.VoiceFinished(i)
		}
	}
}
