package synth

import "sync/atomic"

// MaxVoices is the hard upper bound on the voice pool size.
const MaxVoices = 32

// MaxUnison is the most slots a single note may fan out to.
const MaxUnison = 8

// AllocationMode selects which busy slot a new note reclaims when the pool
// is full. Releasing slots are always preferred over Active ones; the mode
// breaks ties within a category, and equal candidates resolve to the lowest
// voice index.
type AllocationMode int32

const (
	// AllocRoundRobin cycles through slots in index order.
	AllocRoundRobin AllocationMode = iota
	// AllocOldest reclaims the least recently activated slot.
	AllocOldest
	// AllocLowestVelocity reclaims the slot with the quietest recorded
	// velocity.
	AllocLowestVelocity
	// AllocHighestNote reclaims the slot holding the highest note number.
	AllocHighestNote
)

func (m AllocationMode) String() string {
	switch m {
	case AllocRoundRobin:
		return "round-robin"
	case AllocOldest:
		return "oldest"
	case AllocLowestVelocity:
		return "lowest-velocity"
	case AllocHighestNote:
		return "highest-note"
	default:
		return "unknown"
	}
}

// StealMode controls how a reclaimed slot is vacated.
type StealMode int32

const (
	// StealHard silences the outgoing note immediately (one Steal event).
	StealHard StealMode = iota
	// StealSoft releases the outgoing note gracefully (one NoteOff event);
	// its tail may overlap the incoming attack.
	StealSoft
)

func (m StealMode) String() string {
	switch m {
	case StealHard:
		return "hard"
	case StealSoft:
		return "soft"
	default:
		return "unknown"
	}
}

type voiceSlot struct {
	note     int
	velocity int
	state    VoiceState
	order    uint64 // activation counter, 0 while idle

	// Mirrors for lock-free monitoring reads.
	atomicState atomic.Int32
	atomicNote  atomic.Int32
}

// Allocator owns the voice slot table. It converts note dispatch calls into
// ordered VoiceEvent sequences and never touches audio itself.
//
// Dispatch methods (NoteOn, NoteOff, VoiceFinished, SetVoiceCount, Reset and
// the setters) must run on a single goroutine; the returned event slice is
// reused by the next dispatch call. The Slot* and ActiveVoiceCount getters
// are safe from a second goroutine concurrently with dispatch.
type Allocator struct {
	slots [MaxVoices]voiceSlot
	count int

	policy AllocationMode
	steal  StealMode

	unisonCount  int
	unisonDetune float32 // total spread in cents

	tuner     *NoteProcessor
	rrCursor  int
	nextOrder uint64

	// Orders above this mark were assigned by the dispatch in progress;
	// those slots are not steal candidates for its remaining unison
	// elements.
	dispatchFloor uint64

	events []VoiceEvent

	activeCount atomic.Int32
}

// NewAllocator creates an allocator with the given configured voice count
// (clamped to [1,MaxVoices]). A nil tuner gets the default A4=440 processor.
func NewAllocator(voiceCount int, tuner *NoteProcessor) *Allocator {
	if tuner == nil {
		tuner = NewNoteProcessor()
	}
	a := &Allocator{
		count:       clampi(voiceCount, 1, MaxVoices),
		unisonCount: 1,
		tuner:       tuner,
		events:      make([]VoiceEvent, 0, 2*MaxVoices),
	}
	for i := range a.slots {
		a.slots[i].note = -1
		a.slots[i].atomicNote.Store(-1)
	}
	return a
}

// NoteOn assigns the note to one or more slots (unison) and returns the
// events the caller must apply, in order. A note that is already sounding
// re-triggers its existing slots, bypassing the allocation policy.
func (a *Allocator) NoteOn(note int, velocity int) []VoiceEvent {
	a.events = a.events[:0]
	note = clampi(note, 0, 127)
	velocity = clampi(velocity, 0, 127)

	if a.retrigger(note, velocity) {
		a.publishActiveCount()
		return a.events
	}

	n := a.unisonCount
	if n > a.count {
		n = a.count
	}
	a.dispatchFloor = a.nextOrder
	for k := 0; k < n; k++ {
		cents := unisonOffsetCents(k, n, a.unisonDetune)
		a.allocateOne(note, velocity, a.tuner.DetunedFrequency(note, cents))
	}
	a.publishActiveCount()
	return a.events
}

// NoteOff releases every slot holding the note. The returned sequence is
// empty when the note is not held.
func (a *Allocator) NoteOff(note int) []VoiceEvent {
	a.events = a.events[:0]
	note = clampi(note, 0, 127)
	for i := 0; i < a.count; i++ {
		s := &a.slots[i]
		if s.state == StateActive && s.note == note {
			s.state = StateReleasing
			s.atomicState.Store(int32(StateReleasing))
			a.events = append(a.events, VoiceEvent{Kind: EventNoteOff, Voice: i, Note: note, Velocity: s.velocity})
		}
	}
	return a.events
}

// VoiceFinished reports that the voice reached silence. Releasing (or, for a
// forced stop, Active) slots return to Idle; calling it on an Idle slot is a
// no-op, so reporting the same voice twice is safe.
func (a *Allocator) VoiceFinished(voice int) {
	if voice < 0 || voice >= MaxVoices {
		return
	}
	if a.slots[voice].state == StateIdle {
		return
	}
	a.clearSlot(voice)
	a.publishActiveCount()
}

// SetVoiceCount changes the configured voice count, clamped to
// [1,MaxVoices]. Shrinking vacates the now out-of-range slots: Hard steal
// mode emits one Steal per sounding slot, Soft emits NoteOff and lets the
// tails decay (their VoiceFinished still reconciles them later). Growing
// extends the free pool.
func (a *Allocator) SetVoiceCount(n int) []VoiceEvent {
	a.events = a.events[:0]
	n = clampi(n, 1, MaxVoices)
	for i := n; i < a.count; i++ {
		s := &a.slots[i]
		if s.state == StateIdle {
			continue
		}
		if a.steal == StealHard {
			a.events = append(a.events, VoiceEvent{Kind: EventSteal, Voice: i, Note: s.note, Velocity: s.velocity})
			a.clearSlot(i)
			continue
		}
		if s.state == StateActive {
			a.events = append(a.events, VoiceEvent{Kind: EventNoteOff, Voice: i, Note: s.note, Velocity: s.velocity})
			s.state = StateReleasing
			s.atomicState.Store(int32(StateReleasing))
		}
	}
	a.count = n
	if a.rrCursor >= n {
		a.rrCursor = 0
	}
	a.publishActiveCount()
	return a.events
}

// Reset returns every slot to Idle without emitting events. The caller is
// responsible for silencing voices it still considers sounding.
func (a *Allocator) Reset() {
	for i := range a.slots {
		a.clearSlot(i)
	}
	a.rrCursor = 0
	a.publishActiveCount()
}

// ReleaseAllExceptNewest releases every Active slot except the most recently
// activated one and returns the NoteOff events plus the kept slot index (-1
// when nothing was active). Used when collapsing to mono.
func (a *Allocator) ReleaseAllExceptNewest() (int, []VoiceEvent) {
	a.events = a.events[:0]
	kept := -1
	for i := 0; i < a.count; i++ {
		s := &a.slots[i]
		if s.state != StateActive {
			continue
		}
		if kept < 0 || s.order > a.slots[kept].order {
			kept = i
		}
	}
	for i := 0; i < a.count; i++ {
		s := &a.slots[i]
		if i == kept || s.state != StateActive {
			continue
		}
		s.state = StateReleasing
		s.atomicState.Store(int32(StateReleasing))
		a.events = append(a.events, VoiceEvent{Kind: EventNoteOff, Voice: i, Note: s.note, Velocity: s.velocity})
	}
	return kept, a.events
}

// Adopt marks a slot Active for a note that is already sounding on it,
// refreshing its activation order. Used to re-seed bookkeeping after a mode
// switch.
func (a *Allocator) Adopt(voice int, note int, velocity int) {
	if voice < 0 || voice >= MaxVoices {
		return
	}
	s := &a.slots[voice]
	s.note = clampi(note, 0, 127)
	s.velocity = clampi(velocity, 0, 127)
	s.state = StateActive
	s.order = a.next()
	s.atomicNote.Store(int32(s.note))
	s.atomicState.Store(int32(StateActive))
	a.publishActiveCount()
}

// SetAllocationMode selects the policy used for future allocations.
func (a *Allocator) SetAllocationMode(m AllocationMode) {
	if m < AllocRoundRobin || m > AllocHighestNote {
		return
	}
	a.policy = m
}

// AllocationMode returns the current policy.
func (a *Allocator) AllocationMode() AllocationMode {
	return a.policy
}

// SetStealMode selects how future contention is resolved.
func (a *Allocator) SetStealMode(m StealMode) {
	if m != StealHard && m != StealSoft {
		return
	}
	a.steal = m
}

// StealModeConfigured returns the current steal mode.
func (a *Allocator) StealModeConfigured() StealMode {
	return a.steal
}

// SetUnisonCount sets how many slots future notes fan out to, clamped to
// [1,MaxUnison].
func (a *Allocator) SetUnisonCount(n int) {
	a.unisonCount = clampi(n, 1, MaxUnison)
}

// UnisonCount returns the configured unison fan-out.
func (a *Allocator) UnisonCount() int {
	return a.unisonCount
}

// SetUnisonDetune sets the total unison spread in cents. Non-finite values
// are ignored.
func (a *Allocator) SetUnisonDetune(cents float32) {
	if !isFinite(cents) {
		return
	}
	a.unisonDetune = clampf(cents, 0, 1200)
}

// SetPitchBend forwards the bend to the note processor; it affects future
// allocations only.
func (a *Allocator) SetPitchBend(semitones float32) {
	a.tuner.SetPitchBend(semitones)
}

// SetTuningReference forwards the A4 reference to the note processor; it
// affects future allocations only.
func (a *Allocator) SetTuningReference(hz float32) {
	a.tuner.SetTuningReference(hz)
}

// VoiceCount returns the configured voice count.
func (a *Allocator) VoiceCount() int {
	return a.count
}

// SlotState returns the lifecycle state of one slot. Safe from a monitoring
// goroutine.
func (a *Allocator) SlotState(voice int) VoiceState {
	if voice < 0 || voice >= MaxVoices {
		return StateIdle
	}
	return VoiceState(a.slots[voice].atomicState.Load())
}

// SlotNote returns the note held by a slot, or -1 when idle. Safe from a
// monitoring goroutine.
func (a *Allocator) SlotNote(voice int) int {
	if voice < 0 || voice >= MaxVoices {
		return -1
	}
	return int(a.slots[voice].atomicNote.Load())
}

// ActiveVoiceCount returns the number of in-range slots that are Active or
// Releasing. Safe from a monitoring goroutine.
func (a *Allocator) ActiveVoiceCount() int {
	return int(a.activeCount.Load())
}

func (a *Allocator) retrigger(note int, velocity int) bool {
	held := 0
	for i := 0; i < a.count; i++ {
		if a.slots[i].state != StateIdle && a.slots[i].note == note {
			held++
		}
	}
	if held == 0 {
		return false
	}
	j := 0
	for i := 0; i < a.count; i++ {
		s := &a.slots[i]
		if s.state == StateIdle || s.note != note {
			continue
		}
		cents := unisonOffsetCents(j, held, a.unisonDetune)
		s.velocity = velocity
		s.state = StateActive
		s.order = a.next()
		s.atomicState.Store(int32(StateActive))
		a.events = append(a.events, VoiceEvent{
			Kind:      EventNoteOn,
			Voice:     i,
			Note:      note,
			Velocity:  velocity,
			Frequency: a.tuner.DetunedFrequency(note, cents),
		})
		j++
	}
	return true
}

func (a *Allocator) allocateOne(note int, velocity int, freq float32) {
	idx := a.findIdle()
	if idx < 0 {
		idx = a.pickVictim(StateReleasing)
		if idx < 0 {
			idx = a.pickVictim(StateActive)
		}
		if idx < 0 {
			return
		}
		victim := &a.slots[idx]
		kind := EventSteal
		if a.steal == StealSoft {
			kind = EventNoteOff
		}
		a.events = append(a.events, VoiceEvent{Kind: kind, Voice: idx, Note: victim.note, Velocity: victim.velocity})
	}

	s := &a.slots[idx]
	s.note = note
	s.velocity = velocity
	s.state = StateActive
	s.order = a.next()
	s.atomicNote.Store(int32(note))
	s.atomicState.Store(int32(StateActive))
	a.events = append(a.events, VoiceEvent{Kind: EventNoteOn, Voice: idx, Note: note, Velocity: velocity, Frequency: freq})

	if a.policy == AllocRoundRobin {
		a.rrCursor = (idx + 1) % a.count
	}
}

func (a *Allocator) findIdle() int {
	if a.policy == AllocRoundRobin {
		for i := 0; i < a.count; i++ {
			idx := (a.rrCursor + i) % a.count
			if a.slots[idx].state == StateIdle {
				return idx
			}
		}
		return -1
	}
	for i := 0; i < a.count; i++ {
		if a.slots[i].state == StateIdle {
			return i
		}
	}
	return -1
}

// pickVictim selects the slot to reclaim among slots in the given state.
// Strict comparisons make every tie resolve to the lowest index. Slots
// taken earlier in the current dispatch are never candidates, so a unison
// fan-out cannot steal its own elements.
func (a *Allocator) pickVictim(state VoiceState) int {
	best := -1
	for i := 0; i < a.count; i++ {
		s := &a.slots[i]
		if s.state != state || s.order > a.dispatchFloor {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		switch a.policy {
		case AllocOldest:
			if s.order < a.slots[best].order {
				best = i
			}
		case AllocLowestVelocity:
			if s.velocity < a.slots[best].velocity {
				best = i
			}
		case AllocHighestNote:
			if s.note > a.slots[best].note {
				best = i
			}
		}
	}
	if a.policy == AllocRoundRobin && best >= 0 {
		for i := 0; i < a.count; i++ {
			idx := (a.rrCursor + i) % a.count
			if a.slots[idx].state == state && a.slots[idx].order <= a.dispatchFloor {
				return idx
			}
		}
	}
	return best
}

func (a *Allocator) clearSlot(i int) {
	s := &a.slots[i]
	s.note = -1
	s.velocity = 0
	s.state = StateIdle
	s.order = 0
	s.atomicNote.Store(-1)
	s.atomicState.Store(int32(StateIdle))
}

func (a *Allocator) next() uint64 {
	a.nextOrder++
	return a.nextOrder
}

func (a *Allocator) publishActiveCount() {
	n := 0
	for i := 0; i < a.count; i++ {
		if a.slots[i].state != StateIdle {
			n++
		}
	}
	a.activeCount.Store(int32(n))
}

// unisonOffsetCents returns the detune for unison element k of n, spreading
// the elements symmetrically around zero so the offsets sum to zero.
func unisonOffsetCents(k int, n int, spread float32) float32 {
	if n <= 1 {
		return 0
	}
	return spread * (float32(k)/float32(n-1) - 0.5)
}
