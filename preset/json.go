// Package preset loads and saves engine presets as JSON. Fields are
// pointer-typed so a preset file only has to name the parameters it changes;
// everything else keeps its default.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/synth"
)

// File is the JSON schema for synth presets.
type File struct {
	// Voice tone.
	Waveform     string   `json:"waveform,omitempty"`
	CutoffHz     *float32 `json:"cutoff_hz,omitempty"`
	Resonance    *float32 `json:"resonance,omitempty"`
	PluckDamping *float32 `json:"pluck_damping,omitempty"`

	// Amplitude envelope.
	Attack  *float32 `json:"attack,omitempty"`
	Decay   *float32 `json:"decay,omitempty"`
	Sustain *float32 `json:"sustain,omitempty"`
	Release *float32 `json:"release,omitempty"`

	// Allocation.
	VoiceCount     *int     `json:"voice_count,omitempty"`
	AllocationMode string   `json:"allocation_mode,omitempty"`
	StealMode      string   `json:"steal_mode,omitempty"`
	UnisonCount    *int     `json:"unison_count,omitempty"`
	UnisonDetune   *float32 `json:"unison_detune,omitempty"`

	// Tuning.
	TuningReference *float32 `json:"tuning_reference,omitempty"`
	PitchBend       *float32 `json:"pitch_bend,omitempty"`

	// Mono behavior.
	VoiceMode    string   `json:"voice_mode,omitempty"`
	NotePriority string   `json:"note_priority,omitempty"`
	GlideTime    *float32 `json:"glide_time,omitempty"`
	GlideCurve   string   `json:"glide_curve,omitempty"`
	Legato       *bool    `json:"legato,omitempty"`

	// Output.
	OutputGain   *float32 `json:"output_gain,omitempty"`
	SpaceWavPath string   `json:"space_wav_path,omitempty"`
	SpaceMix     *float32 `json:"space_mix,omitempty"`
	SpaceGain    *float32 `json:"space_gain,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
// A relative space_wav_path is resolved against the preset file's directory.
func LoadJSON(path string) (*synth.Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	p := synth.NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, err
	}

	if p.SpaceWavPath != "" && !filepath.IsAbs(p.SpaceWavPath) {
		base := filepath.Dir(path)
		p.SpaceWavPath = filepath.Clean(filepath.Join(base, p.SpaceWavPath))
	}
	return p, nil
}

// SaveJSON writes params as a fully-populated preset file.
func SaveJSON(path string, p *synth.Params) error {
	if p == nil {
		return fmt.Errorf("nil params")
	}
	f := FromParams(p)
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// FromParams builds a preset file mirroring every field of p.
func FromParams(p *synth.Params) *File {
	return &File{
		Waveform:        p.Waveform.String(),
		CutoffHz:        &p.CutoffHz,
		Resonance:       &p.Resonance,
		PluckDamping:    &p.PluckDamping,
		Attack:          &p.Attack,
		Decay:           &p.Decay,
		Sustain:         &p.Sustain,
		Release:         &p.Release,
		VoiceCount:      &p.VoiceCount,
		AllocationMode:  p.AllocationMode.String(),
		StealMode:       p.StealMode.String(),
		UnisonCount:     &p.UnisonCount,
		UnisonDetune:    &p.UnisonDetune,
		TuningReference: &p.TuningReference,
		PitchBend:       &p.PitchBend,
		VoiceMode:       p.VoiceMode.String(),
		NotePriority:    p.NotePriority.String(),
		GlideTime:       &p.GlideTime,
		GlideCurve:      p.GlideCurve.String(),
		Legato:          &p.Legato,
		OutputGain:      &p.OutputGain,
		SpaceWavPath:    p.SpaceWavPath,
		SpaceMix:        &p.SpaceMix,
		SpaceGain:       &p.SpaceGain,
	}
}

// ApplyFile applies a parsed preset file onto an existing params object.
func ApplyFile(dst *synth.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	if f.Waveform != "" {
		w, err := synth.ParseWaveform(f.Waveform)
		if err != nil {
			return err
		}
		dst.Waveform = w
	}
	if f.CutoffHz != nil {
		if *f.CutoffHz <= 0 {
			return fmt.Errorf("cutoff_hz must be > 0")
		}
		dst.CutoffHz = *f.CutoffHz
	}
	if f.Resonance != nil {
		if *f.Resonance <= 0 {
			return fmt.Errorf("resonance must be > 0")
		}
		dst.Resonance = *f.Resonance
	}
	if f.PluckDamping != nil {
		if *f.PluckDamping <= 0 || *f.PluckDamping > 1 {
			return fmt.Errorf("pluck_damping must be in (0,1]")
		}
		dst.PluckDamping = *f.PluckDamping
	}

	if f.Attack != nil {
		if *f.Attack < 0 {
			return fmt.Errorf("attack must be >= 0")
		}
		dst.Attack = *f.Attack
	}
	if f.Decay != nil {
		if *f.Decay < 0 {
			return fmt.Errorf("decay must be >= 0")
		}
		dst.Decay = *f.Decay
	}
	if f.Sustain != nil {
		if *f.Sustain < 0 || *f.Sustain > 1 {
			return fmt.Errorf("sustain must be in [0,1]")
		}
		dst.Sustain = *f.Sustain
	}
	if f.Release != nil {
		if *f.Release < 0 {
			return fmt.Errorf("release must be >= 0")
		}
		dst.Release = *f.Release
	}

	if f.VoiceCount != nil {
		if *f.VoiceCount < 1 || *f.VoiceCount > synth.MaxVoices {
			return fmt.Errorf("voice_count must be in 1..%d", synth.MaxVoices)
		}
		dst.VoiceCount = *f.VoiceCount
	}
	if f.AllocationMode != "" {
		m, err := synth.ParseAllocationMode(f.AllocationMode)
		if err != nil {
			return err
		}
		dst.AllocationMode = m
	}
	if f.StealMode != "" {
		m, err := synth.ParseStealMode(f.StealMode)
		if err != nil {
			return err
		}
		dst.StealMode = m
	}
	if f.UnisonCount != nil {
		if *f.UnisonCount < 1 || *f.UnisonCount > synth.MaxUnison {
			return fmt.Errorf("unison_count must be in 1..%d", synth.MaxUnison)
		}
		dst.UnisonCount = *f.UnisonCount
	}
	if f.UnisonDetune != nil {
		if *f.UnisonDetune < 0 || *f.UnisonDetune > 1200 {
			return fmt.Errorf("unison_detune must be in 0..1200 cents")
		}
		dst.UnisonDetune = *f.UnisonDetune
	}

	if f.TuningReference != nil {
		if *f.TuningReference < 220 || *f.TuningReference > 880 {
			return fmt.Errorf("tuning_reference must be in 220..880 Hz")
		}
		dst.TuningReference = *f.TuningReference
	}
	if f.PitchBend != nil {
		if *f.PitchBend < -24 || *f.PitchBend > 24 {
			return fmt.Errorf("pitch_bend must be in -24..24 semitones")
		}
		dst.PitchBend = *f.PitchBend
	}

	if f.VoiceMode != "" {
		m, err := synth.ParseVoiceMode(f.VoiceMode)
		if err != nil {
			return err
		}
		dst.VoiceMode = m
	}
	if f.NotePriority != "" {
		p, err := synth.ParseNotePriority(f.NotePriority)
		if err != nil {
			return err
		}
		dst.NotePriority = p
	}
	if f.GlideTime != nil {
		if *f.GlideTime < 0 || *f.GlideTime > 10 {
			return fmt.Errorf("glide_time must be in 0..10 seconds")
		}
		dst.GlideTime = *f.GlideTime
	}
	if f.GlideCurve != "" {
		c, err := synth.ParseGlideCurve(f.GlideCurve)
		if err != nil {
			return err
		}
		dst.GlideCurve = c
	}
	if f.Legato != nil {
		dst.Legato = *f.Legato
	}

	if f.OutputGain != nil {
		if *f.OutputGain <= 0 {
			return fmt.Errorf("output_gain must be > 0")
		}
		dst.OutputGain = *f.OutputGain
	}
	if f.SpaceWavPath != "" {
		dst.SpaceWavPath = strings.TrimSpace(f.SpaceWavPath)
	}
	if f.SpaceMix != nil {
		if *f.SpaceMix < 0 || *f.SpaceMix > 1 {
			return fmt.Errorf("space_mix must be in [0,1]")
		}
		dst.SpaceMix = *f.SpaceMix
	}
	if f.SpaceGain != nil {
		if *f.SpaceGain < 0 {
			return fmt.Errorf("space_gain must be >= 0")
		}
		dst.SpaceGain = *f.SpaceGain
	}
	return nil
}
