package synth

import (
	"math"
	"testing"
)

// stubVoice renders a constant level while gated, so mixing math can be
// checked exactly.
type stubVoice struct {
	level    float32
	gated    bool
	tail     bool // keep reporting active after note-off
	noteOns  int
	noteOffs int
	steals   int
	lastFreq float32
}

func (v *stubVoice) NoteOn(note int, velocity int, frequency float32) {
	v.gated = true
	v.noteOns++
	v.lastFreq = frequency
}

func (v *stubVoice) NoteOff() {
	v.noteOffs++
	if !v.tail {
		v.gated = false
	}
}

func (v *stubVoice) Steal() {
	v.steals++
	v.gated = false
}

func (v *stubVoice) Active() bool { return v.gated }

func (v *stubVoice) Render(out []float32) {
	if !v.gated {
		return
	}
	for i := range out {
		out[i] += v.level
	}
}

func newStubEngine(voiceCount int) (*Engine, []*stubVoice) {
	stubs := make([]*stubVoice, MaxVoices)
	voices := make([]Voice, MaxVoices)
	for i := range stubs {
		stubs[i] = &stubVoice{level: 1.0}
		voices[i] = stubs[i]
	}
	p := NewDefaultParams()
	p.VoiceCount = voiceCount
	e := NewEngineWithVoices(48000, voices, p)
	e.Prepare(256)
	return e, stubs
}

func TestGainCompensationUsesConfiguredCount(t *testing.T) {
	e, _ := newStubEngine(4)
	e.NoteOn(60, 127)

	out := make([]float32, 256)
	e.ProcessBlock(out)

	// One unity voice over four configured slots: every sample is exactly
	// 1/sqrt(4), regardless of the three idle slots.
	want := float32(0.5)
	for i, s := range out {
		if s != want {
			t.Fatalf("sample %d = %g, want exactly %g", i, s, want)
		}
	}
}

func TestFullScaleSummationStaysUnderCeiling(t *testing.T) {
	e, _ := newStubEngine(4)
	for _, n := range []int{60, 64, 67, 71} {
		e.NoteOn(n, 127)
	}

	out := make([]float32, 256)
	e.ProcessBlock(out)

	// Unclipped sum is 4.0; compensated it is 2.0; the limiter must keep it
	// at or below 1.0 without collapsing the level.
	for i, s := range out {
		if s > 1.0 || s < 0.9 {
			t.Fatalf("sample %d = %g, want in (0.9, 1.0]", i, s)
		}
	}
}

func TestNonFiniteSettersAreNoOps(t *testing.T) {
	e, _ := newStubEngine(4)
	e.NoteOn(60, 127)

	ref := make([]float32, 128)
	e.ProcessBlock(ref)

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	e.SetOutputGain(nan)
	e.SetOutputGain(inf)
	e.SetSpaceMix(nan)
	e.SetSpaceGain(inf)
	e.SetUnisonDetune(nan)
	e.SetGlideTime(inf)
	e.SetTuningReference(nan)
	e.SetPitchBend(nan)
	e.SetCutoff(nan)

	out := make([]float32, 128)
	e.ProcessBlock(out)
	for i := range out {
		if out[i] != ref[i] {
			t.Fatalf("non-finite setters changed output at sample %d: %g vs %g", i, out[i], ref[i])
		}
	}
}

func TestVoiceFinishedDeferredToBlockBoundary(t *testing.T) {
	e, stubs := newStubEngine(4)
	e.NoteOn(60, 100)
	slot := -1
	for i := 0; i < 4; i++ {
		if stubs[i].noteOns > 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		t.Fatalf("note-on reached no voice")
	}

	stubs[slot].tail = true
	e.NoteOff(60)
	if e.SlotState(slot) != StateReleasing {
		t.Fatalf("slot %d not releasing after note-off", slot)
	}

	out := make([]float32, 64)
	e.ProcessBlock(out)
	// The voice still reports active; the slot must stay reserved.
	if e.SlotState(slot) != StateReleasing {
		t.Fatalf("slot %d reclaimed while its voice was still sounding", slot)
	}

	stubs[slot].gated = false
	e.ProcessBlock(out)
	if e.SlotState(slot) != StateIdle {
		t.Fatalf("slot %d not reclaimed after its voice went silent", slot)
	}
}

func TestHardStealNeverDoubleFreesSlot(t *testing.T) {
	e, stubs := newStubEngine(1)
	e.SetStealMode(StealHard)
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)

	if stubs[0].steals != 1 || stubs[0].noteOns != 2 {
		t.Fatalf("steal sequence wrong: steals=%d noteOns=%d", stubs[0].steals, stubs[0].noteOns)
	}
	// The slot belongs to note 64; rendering must not reconcile it away.
	out := make([]float32, 64)
	e.ProcessBlock(out)
	if e.SlotState(0) != StateActive || e.SlotNote(0) != 64 {
		t.Fatalf("slot 0 state=%v note=%d after hard steal, want active 64", e.SlotState(0), e.SlotNote(0))
	}
}

func TestPolyToMonoKeepsMostRecentVoice(t *testing.T) {
	e, stubs := newStubEngine(4)
	for _, n := range []int{60, 64, 67} {
		e.NoteOn(n, 100)
	}

	e.SetVoiceMode(ModeMono)

	active, releasing := 0, 0
	kept := -1
	for i := 0; i < 4; i++ {
		switch e.SlotState(i) {
		case StateActive:
			active++
			kept = i
		case StateReleasing:
			releasing++
		}
	}
	if active != 1 || releasing != 2 {
		t.Fatalf("after poly->mono: %d active, %d releasing, want 1 and 2", active, releasing)
	}
	if e.SlotNote(kept) != 67 {
		t.Fatalf("kept slot holds note %d, want most recent 67", e.SlotNote(kept))
	}
	offs := 0
	for _, v := range stubs[:4] {
		offs += v.noteOffs
	}
	if offs != 2 {
		t.Fatalf("%d voices received note-off, want 2", offs)
	}
}

func TestMonoToPolyResumesAllocation(t *testing.T) {
	e, _ := newStubEngine(4)
	e.SetVoiceMode(ModeMono)
	e.NoteOn(60, 100)

	e.SetVoiceMode(ModePoly)
	if e.ActiveVoiceCount() != 1 {
		t.Fatalf("sounding mono voice not adopted: active count %d", e.ActiveVoiceCount())
	}
	e.NoteOn(64, 100)
	e.NoteOn(67, 100)
	if e.ActiveVoiceCount() != 3 {
		t.Fatalf("poly allocation after mode switch gave %d active voices, want 3", e.ActiveVoiceCount())
	}
}

func TestModeSwitchRoutesDispatch(t *testing.T) {
	e, _ := newStubEngine(4)
	e.SetVoiceMode(ModeMono)
	e.NoteOn(60, 100)
	e.NoteOn(64, 100)
	e.NoteOn(67, 100)
	// Mono drives one slot no matter how many keys are held.
	if n := e.ActiveVoiceCount(); n > 1 {
		t.Fatalf("mono mode occupies %d slots", n)
	}
}

func TestZeroLengthBlockAndUnpreparedEngineAreNoOps(t *testing.T) {
	p := NewDefaultParams()
	e := NewEngineWithVoices(48000, []Voice{&stubVoice{level: 1}}, p)
	e.NoteOn(60, 100)
	e.ProcessBlock(make([]float32, 64)) // not prepared yet

	e.Prepare(64)
	e.ProcessBlock(nil)
	e.ProcessBlock([]float32{})
}

func TestLongBufferProcessedInChunks(t *testing.T) {
	e, _ := newStubEngine(4)
	e.NoteOn(60, 127)

	long := make([]float32, 1000) // not a multiple of the prepared block
	e.ProcessBlock(long)
	for i, s := range long {
		if s != 0.5 {
			t.Fatalf("chunked render wrong at sample %d: %g", i, s)
		}
	}
}

func TestProcessBlockDoesNotAllocate(t *testing.T) {
	p := NewDefaultParams()
	p.VoiceCount = 8
	e := NewEngine(48000, p)
	e.Prepare(256)
	for _, n := range []int{48, 60, 64, 67} {
		e.NoteOn(n, 100)
	}
	out := make([]float32, 256)
	e.ProcessBlock(out) // warm up

	allocs := testing.AllocsPerRun(50, func() {
		e.ProcessBlock(out)
	})
	if allocs != 0 {
		t.Fatalf("ProcessBlock allocates %.1f times per call", allocs)
	}
}

func TestLongRenderHasNoNaNOrInf(t *testing.T) {
	p := NewDefaultParams()
	p.VoiceCount = 8
	p.UnisonCount = 2
	p.UnisonDetune = 12
	e := NewEngine(48000, p)
	e.Prepare(256)

	out := make([]float32, 256)
	notes := []int{36, 48, 55, 60, 64, 67, 72, 79}
	for block := 0; block < 400; block++ {
		if block%20 == 0 {
			e.NoteOn(notes[(block/20)%len(notes)], 90)
		}
		if block%35 == 0 && block > 0 {
			e.NoteOff(notes[(block/35)%len(notes)])
		}
		e.ProcessBlock(out)
		for i, s := range out {
			f := float64(s)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				t.Fatalf("block %d sample %d is not finite: %v", block, i, s)
			}
			if s > 1.0 || s < -1.0 {
				t.Fatalf("block %d sample %d exceeds ceiling: %v", block, i, s)
			}
		}
	}
}

func TestShrinkTailsKeepSoundingUntilFinished(t *testing.T) {
	e, stubs := newStubEngine(4)
	e.SetStealMode(StealSoft)
	for _, n := range []int{60, 64, 67, 71} {
		e.NoteOn(n, 127)
	}
	for _, v := range stubs[:4] {
		v.tail = true
	}

	e.SetVoiceCount(2)
	out := make([]float32, 64)
	e.ProcessBlock(out)
	// All four voices still sound; compensation now uses the new count 2.
	want := 4.0 / float32(math.Sqrt(2))
	if want > 1.0 {
		want = softLimit(want)
	}
	if absf(out[0]-want) > 1e-5 {
		t.Fatalf("shrunk mix sample %g, want %g", out[0], want)
	}
}

func TestResetSilencesEverything(t *testing.T) {
	e, stubs := newStubEngine(4)
	for _, n := range []int{60, 64} {
		e.NoteOn(n, 100)
	}
	e.Reset()
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("active voices after reset: %d", e.ActiveVoiceCount())
	}
	out := make([]float32, 64)
	e.ProcessBlock(out)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d nonzero after reset: %g", i, s)
		}
	}
	for i, v := range stubs[:4] {
		if v.Active() {
			t.Fatalf("voice %d still active after reset", i)
		}
	}
}

func TestSpaceConvolverOnMasterBus(t *testing.T) {
	e, _ := newStubEngine(4)
	e.SetSpaceMix(1.0)
	e.SetSpaceGain(1.0)
	// An IR of a bare unit impulse doubles the signal when mixed wet on top
	// of dry.
	e.SetSpaceIR([]float32{1})
	e.NoteOn(60, 127)

	out := make([]float32, 128)
	e.ProcessBlock(out)
	want := softLimit(1.0)
	for i, s := range out {
		if absf(s-want) > 1e-4 {
			t.Fatalf("wet+dry sample %d = %g, want %g", i, s, want)
		}
	}

	e.SetSpaceIR(nil) // disable
	e.ProcessBlock(out)
	for i, s := range out {
		if absf(s-0.5) > 1e-6 {
			t.Fatalf("disabled space sample %d = %g, want 0.5", i, s)
		}
	}
}
