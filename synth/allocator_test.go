package synth

import (
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestCapacityInvariantUnderRandomDispatch(t *testing.T) {
	const voiceCount = 4
	a := NewAllocator(voiceCount, nil)
	a.SetAllocationMode(AllocRoundRobin)
	a.SetStealMode(StealHard)

	rng := uint32(0x9e3779b9)
	next := func(n uint32) uint32 {
		rng ^= rng << 13
		rng ^= rng >> 17
		rng ^= rng << 5
		return rng % n
	}

	for step := 0; step < 2000; step++ {
		note := int(36 + next(48))
		switch next(4) {
		case 0:
			a.NoteOff(note)
		case 1:
			if next(8) == 0 {
				a.VoiceFinished(int(next(voiceCount)))
			}
			a.NoteOn(note, int(1+next(127)))
		default:
			a.NoteOn(note, int(1+next(127)))
		}

		busy := 0
		for i := 0; i < voiceCount; i++ {
			if a.SlotState(i) != StateIdle {
				busy++
			}
		}
		if busy > voiceCount {
			t.Fatalf("step %d: %d busy slots exceeds voice count %d", step, busy, voiceCount)
		}
		if got := a.ActiveVoiceCount(); got != busy {
			t.Fatalf("step %d: ActiveVoiceCount=%d, slot scan says %d", step, got, busy)
		}
	}
}

func TestRetriggerReusesExistingSlot(t *testing.T) {
	a := NewAllocator(4, nil)

	first := a.NoteOn(60, 100)
	if len(first) != 1 || first[0].Kind != EventNoteOn {
		t.Fatalf("expected single note-on, got %v", first)
	}
	slot := first[0].Voice

	again := a.NoteOn(60, 80)
	if len(again) != 1 {
		t.Fatalf("re-trigger emitted %d events, want 1", len(again))
	}
	if again[0].Kind != EventNoteOn || again[0].Voice != slot {
		t.Fatalf("re-trigger event %+v does not reuse slot %d", again[0], slot)
	}
	if n := a.ActiveVoiceCount(); n != 1 {
		t.Fatalf("re-trigger allocated a new slot: active count %d", n)
	}
}

func TestRetriggerReclaimsReleasingSlot(t *testing.T) {
	a := NewAllocator(4, nil)
	slot := a.NoteOn(60, 100)[0].Voice
	a.NoteOff(60)
	if a.SlotState(slot) != StateReleasing {
		t.Fatalf("slot %d not releasing after note-off", slot)
	}

	events := a.NoteOn(60, 90)
	if len(events) != 1 || events[0].Voice != slot || events[0].Kind != EventNoteOn {
		t.Fatalf("re-trigger of releasing note gave %v, want note-on on slot %d", events, slot)
	}
	if a.SlotState(slot) != StateActive {
		t.Fatalf("slot %d not active after re-trigger", slot)
	}
}

func TestNoteOffForUnheldNoteIsEmpty(t *testing.T) {
	a := NewAllocator(4, nil)
	a.NoteOn(60, 100)
	if events := a.NoteOff(72); len(events) != 0 {
		t.Fatalf("note-off for unheld note emitted %v", events)
	}
}

func TestOldestPolicyStealsFirstNote(t *testing.T) {
	for _, steal := range []StealMode{StealHard, StealSoft} {
		t.Run(steal.String(), func(t *testing.T) {
			a := NewAllocator(4, nil)
			a.SetAllocationMode(AllocOldest)
			a.SetStealMode(steal)

			notes := []int{60, 64, 67, 71}
			slots := make(map[int]int)
			for _, n := range notes {
				events := a.NoteOn(n, 100)
				if len(events) != 1 {
					t.Fatalf("note %d: %d events, want 1", n, len(events))
				}
				slots[n] = events[0].Voice
			}

			events := a.NoteOn(74, 100)
			if len(events) != 2 {
				t.Fatalf("steal emitted %d events, want 2: %v", len(events), events)
			}
			wantKind := EventSteal
			if steal == StealSoft {
				wantKind = EventNoteOff
			}
			if events[0].Kind != wantKind || events[0].Note != 60 || events[0].Voice != slots[60] {
				t.Fatalf("first event %+v, want %v of note 60 on slot %d", events[0], wantKind, slots[60])
			}
			if events[1].Kind != EventNoteOn || events[1].Note != 74 || events[1].Voice != slots[60] {
				t.Fatalf("second event %+v, want note-on of 74 on slot %d", events[1], slots[60])
			}
		})
	}
}

func TestReleasingSlotsStolenBeforeActive(t *testing.T) {
	a := NewAllocator(2, nil)
	a.SetAllocationMode(AllocOldest)
	a.SetStealMode(StealHard)

	a.NoteOn(60, 100)
	releasing := a.NoteOn(64, 100)[0].Voice
	// Make the *newer* voice the releasing one so age cannot explain the pick.
	a.NoteOff(64)

	events := a.NoteOn(67, 100)
	if len(events) != 2 || events[0].Kind != EventSteal {
		t.Fatalf("expected steal+note-on, got %v", events)
	}
	if events[0].Voice != releasing {
		t.Fatalf("stole slot %d, want releasing slot %d", events[0].Voice, releasing)
	}
}

func TestPolicyVictimSelection(t *testing.T) {
	type press struct {
		note, velocity int
	}
	presses := []press{{60, 100}, {64, 80}, {67, 80}, {71, 90}}

	tests := []struct {
		mode       AllocationMode
		wantVictim int
	}{
		{AllocRoundRobin, 0},     // cursor wrapped past the last allocation
		{AllocOldest, 0},         // note 60 was first
		{AllocLowestVelocity, 1}, // velocity 80 tie between slots 1 and 2
		{AllocHighestNote, 3},    // note 71
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			a := NewAllocator(4, nil)
			a.SetAllocationMode(tt.mode)
			a.SetStealMode(StealHard)
			for _, p := range presses {
				a.NoteOn(p.note, p.velocity)
			}

			events := a.NoteOn(72, 127)
			if len(events) != 2 {
				t.Fatalf("%d events, want 2: %v", len(events), events)
			}
			if events[0].Voice != tt.wantVictim {
				t.Fatalf("stole slot %d, want %d", events[0].Voice, tt.wantVictim)
			}
		})
	}
}

func TestEqualVelocityTieGoesToLowestIndex(t *testing.T) {
	a := NewAllocator(4, nil)
	a.SetAllocationMode(AllocLowestVelocity)
	a.SetStealMode(StealHard)

	for _, n := range []int{60, 64, 67, 71} {
		a.NoteOn(n, 90)
	}
	events := a.NoteOn(72, 127)
	if events[0].Voice != 0 {
		t.Fatalf("equal-velocity tie stole slot %d, want lowest index 0", events[0].Voice)
	}
}

func TestRoundRobinCyclesSlots(t *testing.T) {
	a := NewAllocator(3, nil)
	a.SetAllocationMode(AllocRoundRobin)

	order := make([]int, 0, 6)
	for i, n := range []int{60, 62, 64, 65, 67, 69} {
		events := a.NoteOn(n, 100)
		order = append(order, events[len(events)-1].Voice)
		_ = i
	}
	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("allocation order %v, want %v", order, want)
		}
	}
}

func TestHardStealLeavesNoStaleRelease(t *testing.T) {
	a := NewAllocator(1, nil)
	a.SetAllocationMode(AllocOldest)
	a.SetStealMode(StealHard)

	a.NoteOn(60, 100)
	events := a.NoteOn(64, 100)
	if len(events) != 2 || events[0].Kind != EventSteal {
		t.Fatalf("expected steal+note-on, got %v", events)
	}

	// The stolen slot belongs to the new note outright; no release is owed
	// for note 60 and no slot anywhere still carries it.
	if a.SlotState(0) != StateActive || a.SlotNote(0) != 64 {
		t.Fatalf("slot 0 state=%v note=%d, want active 64", a.SlotState(0), a.SlotNote(0))
	}
	if events := a.NoteOff(60); len(events) != 0 {
		t.Fatalf("note-off of stolen note emitted %v", events)
	}
}

func TestVoiceFinishedIsIdempotent(t *testing.T) {
	a := NewAllocator(4, nil)
	slot := a.NoteOn(60, 100)[0].Voice
	a.NoteOff(60)

	a.VoiceFinished(slot)
	if a.SlotState(slot) != StateIdle {
		t.Fatalf("slot %d not idle after voice-finished", slot)
	}
	a.VoiceFinished(slot)
	a.VoiceFinished(-1)
	a.VoiceFinished(MaxVoices + 3)
	if a.SlotState(slot) != StateIdle || a.ActiveVoiceCount() != 0 {
		t.Fatalf("repeated voice-finished corrupted state")
	}
}

func TestUnisonFanOutWithSymmetricDetune(t *testing.T) {
	a := NewAllocator(8, nil)
	a.SetUnisonCount(3)
	a.SetUnisonDetune(20)

	events := a.NoteOn(60, 100)
	if len(events) != 3 {
		t.Fatalf("%d events, want 3", len(events))
	}
	seen := make(map[int]bool)
	base := NewNoteProcessor().Frequency(60)
	centsSum := 0.0
	for _, ev := range events {
		if ev.Kind != EventNoteOn || ev.Note != 60 {
			t.Fatalf("unexpected event %+v", ev)
		}
		if seen[ev.Voice] {
			t.Fatalf("voice %d used twice", ev.Voice)
		}
		seen[ev.Voice] = true
		centsSum += 1200 * math.Log2(float64(ev.Frequency)/float64(base))
	}
	if math.Abs(centsSum) > 0.5 {
		t.Fatalf("detune offsets sum to %.3f cents, want ~0", centsSum)
	}
}

func TestUnisonNoteOffReleasesAllSlots(t *testing.T) {
	a := NewAllocator(8, nil)
	a.SetUnisonCount(3)
	a.SetUnisonDetune(15)
	a.NoteOn(60, 100)

	offs := a.NoteOff(60)
	if len(offs) != 3 {
		t.Fatalf("note-off released %d slots, want 3", len(offs))
	}
	for _, ev := range offs {
		if ev.Kind != EventNoteOff {
			t.Fatalf("unexpected event %+v", ev)
		}
		if a.SlotState(ev.Voice) != StateReleasing {
			t.Fatalf("slot %d not releasing", ev.Voice)
		}
	}
}

func TestUnisonContentionStealsDistinctSlots(t *testing.T) {
	// A policy that would rank the incoming note as its own best victim
	// (quiet note under lowest-velocity, high note under highest-note)
	// must not let a later unison element steal the slot an earlier
	// element of the same dispatch just took.
	cases := []struct {
		name   string
		policy AllocationMode
		note   int
		vel    int
	}{
		{"lowest-velocity-quiet-note", AllocLowestVelocity, 64, 10},
		{"highest-note-high-note", AllocHighestNote, 96, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAllocator(2, nil)
			a.SetAllocationMode(tc.policy)
			a.SetStealMode(StealHard)
			a.NoteOn(60, 100)
			a.NoteOn(62, 100)

			a.SetUnisonCount(2)
			events := a.NoteOn(tc.note, tc.vel)
			if len(events) != 4 {
				t.Fatalf("%d events, want 2 steal+note-on pairs: %v", len(events), events)
			}
			stolen := make(map[int]bool)
			started := make(map[int]bool)
			for i := 0; i < 4; i += 2 {
				st, on := events[i], events[i+1]
				if st.Kind != EventSteal || on.Kind != EventNoteOn || st.Voice != on.Voice {
					t.Fatalf("pair %d: got %+v then %+v", i/2, st, on)
				}
				if st.Note == tc.note {
					t.Fatalf("stole note %d placed by this same dispatch", st.Note)
				}
				if stolen[st.Voice] {
					t.Fatalf("voice %d stolen twice in one dispatch", st.Voice)
				}
				stolen[st.Voice] = true
				started[on.Voice] = true
			}
			if len(started) != 2 {
				t.Fatalf("fan-out landed on %d distinct slots, want 2", len(started))
			}
			for v := 0; v < 2; v++ {
				if a.SlotNote(v) != tc.note {
					t.Fatalf("slot %d holds note %d, want %d", v, a.SlotNote(v), tc.note)
				}
			}
		})
	}
}

func TestUnisonCountClampedToVoiceCount(t *testing.T) {
	a := NewAllocator(2, nil)
	a.SetUnisonCount(8)
	if events := a.NoteOn(60, 100); len(events) != 2 {
		t.Fatalf("unison beyond pool gave %d events, want 2", len(events))
	}
}

func TestSetVoiceCountShrinkVacatesSlots(t *testing.T) {
	for _, steal := range []StealMode{StealHard, StealSoft} {
		t.Run(steal.String(), func(t *testing.T) {
			a := NewAllocator(4, nil)
			a.SetStealMode(steal)
			for _, n := range []int{60, 64, 67, 71} {
				a.NoteOn(n, 100)
			}

			events := a.SetVoiceCount(2)
			if len(events) != 2 {
				t.Fatalf("shrink emitted %d events, want 2: %v", len(events), events)
			}
			for _, ev := range events {
				if ev.Voice < 2 {
					t.Fatalf("shrink touched in-range slot %d", ev.Voice)
				}
				switch steal {
				case StealHard:
					if ev.Kind != EventSteal {
						t.Fatalf("hard shrink emitted %+v", ev)
					}
					if a.SlotState(ev.Voice) != StateIdle {
						t.Fatalf("hard-vacated slot %d not idle", ev.Voice)
					}
				case StealSoft:
					if ev.Kind != EventNoteOff {
						t.Fatalf("soft shrink emitted %+v", ev)
					}
				}
			}
			if a.VoiceCount() != 2 {
				t.Fatalf("voice count %d, want 2", a.VoiceCount())
			}
		})
	}
}

func TestSetVoiceCountGrowExtendsFreePool(t *testing.T) {
	a := NewAllocator(2, nil)
	a.NoteOn(60, 100)
	a.NoteOn(64, 100)

	if events := a.SetVoiceCount(4); len(events) != 0 {
		t.Fatalf("grow emitted %v", events)
	}
	events := a.NoteOn(67, 100)
	if len(events) != 1 || events[0].Kind != EventNoteOn {
		t.Fatalf("expected a free-slot allocation after grow, got %v", events)
	}
	if events[0].Voice < 2 {
		t.Fatalf("new note landed on busy slot %d", events[0].Voice)
	}
}

func TestSetVoiceCountClampsRange(t *testing.T) {
	a := NewAllocator(4, nil)
	a.SetVoiceCount(0)
	if a.VoiceCount() != 1 {
		t.Fatalf("count %d after clamp-low, want 1", a.VoiceCount())
	}
	a.SetVoiceCount(1000)
	if a.VoiceCount() != MaxVoices {
		t.Fatalf("count %d after clamp-high, want %d", a.VoiceCount(), MaxVoices)
	}
}

func TestReleaseAllExceptNewest(t *testing.T) {
	a := NewAllocator(4, nil)
	a.NoteOn(60, 100)
	a.NoteOn(64, 100)
	last := a.NoteOn(67, 100)[0].Voice

	kept, events := a.ReleaseAllExceptNewest()
	if kept != last {
		t.Fatalf("kept slot %d, want most recent %d", kept, last)
	}
	if len(events) != 2 {
		t.Fatalf("released %d slots, want 2", len(events))
	}
	if a.SlotState(kept) != StateActive {
		t.Fatalf("kept slot not active")
	}
	for _, ev := range events {
		if a.SlotState(ev.Voice) != StateReleasing {
			t.Fatalf("slot %d not releasing", ev.Voice)
		}
	}
}

func TestMonitoringGettersAreSafeConcurrently(t *testing.T) {
	a := NewAllocator(8, nil)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			total := 0
			for i := 0; i < MaxVoices; i++ {
				if a.SlotState(i) != StateIdle {
					total++
				}
				_ = a.SlotNote(i)
			}
			if got := a.ActiveVoiceCount(); got < 0 || got > MaxVoices {
				t.Errorf("ActiveVoiceCount out of range: %d", got)
				return
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		note := 40 + i%40
		a.NoteOn(note, 64+i%64)
		if i%3 == 0 {
			a.NoteOff(note)
		}
		if i%5 == 0 {
			a.VoiceFinished(i % 8)
		}
	}
	close(done)
	wg.Wait()
}

func TestConfigSettersIgnoreInvalidValues(t *testing.T) {
	a := NewAllocator(4, nil)
	a.SetAllocationMode(AllocOldest)
	a.SetAllocationMode(AllocationMode(99))
	if a.AllocationMode() != AllocOldest {
		t.Fatalf("invalid allocation mode was accepted")
	}
	a.SetStealMode(StealSoft)
	a.SetStealMode(StealMode(7))
	if a.StealModeConfigured() != StealSoft {
		t.Fatalf("invalid steal mode was accepted")
	}
	a.SetUnisonDetune(25)
	a.SetUnisonDetune(float32(math.NaN()))
	a.SetUnisonDetune(float32(math.Inf(1)))
	events := func() []VoiceEvent {
		a.SetUnisonCount(2)
		return a.NoteOn(60, 100)
	}()
	if len(events) != 2 {
		t.Fatalf("expected 2 unison events, got %v", events)
	}
	ratio := events[1].Frequency / events[0].Frequency
	wantRatio := float32(math.Pow(2, 25.0/1200.0))
	if absf(ratio-wantRatio) > 0.002 {
		t.Fatalf("detune ratio %.5f, want %.5f: NaN setter changed state", ratio, wantRatio)
	}
}

func TestSlotQueriesOutOfRange(t *testing.T) {
	a := NewAllocator(4, nil)
	for _, idx := range []int{-1, MaxVoices, MaxVoices + 10} {
		if s := a.SlotState(idx); s != StateIdle {
			t.Fatalf("SlotState(%d)=%v, want idle", idx, s)
		}
		if n := a.SlotNote(idx); n != -1 {
			t.Fatalf("SlotNote(%d)=%d, want -1", idx, n)
		}
	}
}

func TestEventOrderWithinOneDispatch(t *testing.T) {
	a := NewAllocator(1, nil)
	a.SetStealMode(StealSoft)
	a.NoteOn(60, 100)

	events := a.NoteOn(64, 100)
	if fmt.Sprintf("%v %v", events[0].Kind, events[1].Kind) != "note-off note-on" {
		t.Fatalf("soft steal order wrong: %v", events)
	}
}
