package synth

import (
	"fmt"
	"strings"
)

// Params holds every preset-settable engine and voice parameter.
type Params struct {
	// Voice tone.
	Waveform     Waveform
	CutoffHz     float32
	Resonance    float32
	PluckDamping float32

	// Amplitude envelope. Times in seconds, sustain as a 0..1 level.
	Attack  float32
	Decay   float32
	Sustain float32
	Release float32

	// Allocation.
	VoiceCount     int
	AllocationMode AllocationMode
	StealMode      StealMode
	UnisonCount    int
	UnisonDetune   float32 // total spread in cents

	// Tuning.
	TuningReference float32 // Hz for A4
	PitchBend       float32 // semitones

	// Mono behavior.
	VoiceMode    VoiceMode
	NotePriority NotePriority
	GlideTime    float32 // seconds
	GlideCurve   GlideCurve
	Legato       bool

	// Output.
	OutputGain float32

	// Space: master-bus convolution reverb.
	SpaceWavPath string
	SpaceMix     float32 // wet amount 0..1
	SpaceGain    float32 // gain on the wet signal
}

// NewDefaultParams creates default parameters: an eight-voice saw patch
// with a gentle envelope and no space.
func NewDefaultParams() *Params {
	return &Params{
		Waveform:        WaveSaw,
		CutoffHz:        8000,
		Resonance:       0.7071,
		PluckDamping:    0.996,
		Attack:          0.005,
		Decay:           0.12,
		Sustain:         0.7,
		Release:         0.25,
		VoiceCount:      8,
		AllocationMode:  AllocOldest,
		StealMode:       StealSoft,
		UnisonCount:     1,
		UnisonDetune:    10,
		TuningReference: 440,
		PitchBend:       0,
		VoiceMode:       ModePoly,
		NotePriority:    PriorityLast,
		GlideTime:       0,
		GlideCurve:      GlideLinear,
		Legato:          false,
		OutputGain:      1.0,
		SpaceMix:        0.25,
		SpaceGain:       1.0,
	}
}

// ParseWaveform maps a preset or flag string to a Waveform.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "sin":
		return WaveSine, nil
	case "saw", "sawtooth":
		return WaveSaw, nil
	case "square":
		return WaveSquare, nil
	case "triangle", "tri":
		return WaveTriangle, nil
	case "pluck":
		return WavePluck, nil
	default:
		return WaveSine, fmt.Errorf("unknown waveform %q", s)
	}
}

// ParseAllocationMode maps a preset or flag string to an AllocationMode.
func ParseAllocationMode(s string) (AllocationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "round-robin", "roundrobin", "rr":
		return AllocRoundRobin, nil
	case "oldest":
		return AllocOldest, nil
	case "lowest-velocity", "quietest":
		return AllocLowestVelocity, nil
	case "highest-note", "highest":
		return AllocHighestNote, nil
	default:
		return AllocRoundRobin, fmt.Errorf("unknown allocation mode %q", s)
	}
}

// ParseStealMode maps a preset or flag string to a StealMode.
func ParseStealMode(s string) (StealMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard":
		return StealHard, nil
	case "soft":
		return StealSoft, nil
	default:
		return StealHard, fmt.Errorf("unknown steal mode %q", s)
	}
}

// ParseNotePriority maps a preset or flag string to a NotePriority.
func ParseNotePriority(s string) (NotePriority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "last", "newest":
		return PriorityLast, nil
	case "lowest", "low":
		return PriorityLowest, nil
	case "highest", "high":
		return PriorityHighest, nil
	default:
		return PriorityLast, fmt.Errorf("unknown note priority %q", s)
	}
}

// ParseGlideCurve maps a preset or flag string to a GlideCurve.
func ParseGlideCurve(s string) (GlideCurve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "lin":
		return GlideLinear, nil
	case "exponential", "exp":
		return GlideExponential, nil
	default:
		return GlideLinear, fmt.Errorf("unknown glide curve %q", s)
	}
}

// ParseVoiceMode maps a preset or flag string to a VoiceMode.
func ParseVoiceMode(s string) (VoiceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poly", "polyphonic":
		return ModePoly, nil
	case "mono", "monophonic":
		return ModeMono, nil
	default:
		return ModePoly, fmt.Errorf("unknown voice mode %q", s)
	}
}
