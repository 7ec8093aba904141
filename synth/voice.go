package synth

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-synth/dsp"
)

// Waveform selects the tone generator a ToneVoice runs.
type Waveform int32

const (
	WaveSine Waveform = iota
	WaveSaw
	WaveSquare
	WaveTriangle
	// WavePluck excites a Karplus-Strong string instead of an oscillator.
	WavePluck
)

func (w Waveform) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSaw:
		return "saw"
	case WaveSquare:
		return "square"
	case WaveTriangle:
		return "triangle"
	case WavePluck:
		return "pluck"
	default:
		return "unknown"
	}
}

// Voice is the engine-facing contract for one sound generator. The engine
// applies allocation events to it and renders it once per block; all calls
// come from the audio thread.
type Voice interface {
	// NoteOn starts or re-triggers the voice at the given pitch.
	NoteOn(note int, velocity int, frequency float32)
	// NoteOff releases the voice. It keeps sounding through its tail and
	// reports Active until silent.
	NoteOff()
	// Steal silences the voice immediately.
	Steal()
	// Active reports whether the voice still produces audio.
	Active() bool
	// Render adds one block of samples into out.
	Render(out []float32)
}

// TunableVoice is implemented by voices whose pitch can move while they
// sound. The engine uses it to apply portamento in mono mode.
type TunableVoice interface {
	Voice
	SetFrequency(hz float32)
}

// FilteredVoice is implemented by voices with a tone filter the engine can
// adjust while notes sound.
type FilteredVoice interface {
	Voice
	SetCutoff(hz float32)
}

// ToneVoice is the bundled Voice implementation: a phase oscillator or a
// plucked string, through a lowpass filter and an ADSR envelope. It
// allocates only at construction time.
type ToneVoice struct {
	sampleRate float32

	wave     Waveform
	note     int
	freq     float32
	gain     float32
	phase    float32
	phaseInc float32

	env    *ADSR
	filter *dsp.Biquad
	cutoff float32
	q      float32

	pluck        *dsp.DelayLine
	interp       *dsp.LagrangeInterpolator
	pluckDelay   float32
	pluckPrev    float32
	pluckDamping float32
	noiseState   uint32

	active bool
}

// NewToneVoice creates a voice at the given rate, configured from p. A nil
// p uses the defaults.
func NewToneVoice(sampleRate float32, p *Params) *ToneVoice {
	if p == nil {
		p = NewDefaultParams()
	}
	v := &ToneVoice{
		sampleRate:   sampleRate,
		wave:         p.Waveform,
		note:         -1,
		cutoff:       p.CutoffHz,
		q:            p.Resonance,
		env:          NewADSR(sampleRate),
		filter:       dsp.NewLowpass(p.CutoffHz, sampleRate, p.Resonance),
		interp:       dsp.NewLagrangeInterpolator(3),
		pluckDamping: p.PluckDamping,
	}
	v.env.SetAttack(p.Attack)
	v.env.SetDecay(p.Decay)
	v.env.SetSustain(p.Sustain)
	v.env.SetRelease(p.Release)

	// Long enough for the lowest MIDI note at this rate.
	size := int(sampleRate/8.0) + 8
	v.pluck = dsp.NewDelayLine(size)
	return v
}

// NoteOn starts the voice. Starting from silence resets the oscillator
// phase and filter state; re-triggering a sounding voice keeps both for a
// click-free restart.
func (v *ToneVoice) NoteOn(note int, velocity int, frequency float32) {
	if !isFinite(frequency) || frequency <= 0 {
		return
	}
	v.note = clampi(note, 0, 127)
	v.gain = float32(clampi(velocity, 0, 127)) / 127.0
	v.freq = frequency
	v.phaseInc = frequency / v.sampleRate

	if !v.active {
		v.phase = 0
		v.filter.Reset()
	}
	if v.wave == WavePluck {
		v.excitePluck()
	}
	v.env.Trigger()
	v.active = true
}

// NoteOff releases the envelope; the voice stays active through its tail.
func (v *ToneVoice) NoteOff() {
	v.env.Release()
}

// Steal silences the voice at once.
func (v *ToneVoice) Steal() {
	v.env.Reset()
	v.filter.Reset()
	v.active = false
}

// Active reports whether the voice still produces audio.
func (v *ToneVoice) Active() bool {
	return v.active
}

// Note returns the note the voice was last started with, or -1.
func (v *ToneVoice) Note() int {
	return v.note
}

// SetFrequency moves the pitch of a sounding voice without re-triggering.
func (v *ToneVoice) SetFrequency(hz float32) {
	if !isFinite(hz) || hz <= 0 {
		return
	}
	v.freq = hz
	v.phaseInc = hz / v.sampleRate
	if v.wave == WavePluck {
		v.pluckDelay = v.stringDelay(hz)
	}
}

// SetCutoff retunes the lowpass while the voice sounds.
func (v *ToneVoice) SetCutoff(hz float32) {
	if !isFinite(hz) || hz <= 0 {
		return
	}
	v.cutoff = hz
	v.filter.SetLowpass(hz, v.sampleRate, v.q)
}

// SetAttack sets the envelope attack time in seconds.
func (v *ToneVoice) SetAttack(seconds float32) { v.env.SetAttack(seconds) }

// SetDecay sets the envelope decay time in seconds.
func (v *ToneVoice) SetDecay(seconds float32) { v.env.SetDecay(seconds) }

// SetSustain sets the envelope sustain level in [0,1].
func (v *ToneVoice) SetSustain(level float32) { v.env.SetSustain(level) }

// SetRelease sets the envelope release time in seconds.
func (v *ToneVoice) SetRelease(seconds float32) { v.env.SetRelease(seconds) }

// SetWaveform switches the generator. It takes effect on the next NoteOn.
func (v *ToneVoice) SetWaveform(w Waveform) {
	if w < WaveSine || w > WavePluck {
		return
	}
	v.wave = w
}

// Render adds one block into out.
func (v *ToneVoice) Render(out []float32) {
	if !v.active {
		return
	}
	if v.wave == WavePluck {
		v.renderPluck(out)
	} else {
		v.renderOsc(out)
	}
	if !v.env.Active() {
		v.active = false
	}
}

func (v *ToneVoice) renderOsc(out []float32) {
	for i := range out {
		var s float32
		switch v.wave {
		case WaveSaw:
			s = 2.0*v.phase - 1.0
		case WaveSquare:
			if v.phase < 0.5 {
				s = 1.0
			} else {
				s = -1.0
			}
		case WaveTriangle:
			s = 4.0*absf(v.phase-0.5) - 1.0
		default:
			s = float32(math.Sin(2.0 * math.Pi * float64(v.phase)))
		}
		v.phase += v.phaseInc
		if v.phase >= 1.0 {
			v.phase -= 1.0
		}

		s = v.filter.Process(s)
		out[i] += s * v.env.Next() * v.gain
	}
}

func (v *ToneVoice) renderPluck(out []float32) {
	for i := range out {
		cur := v.pluck.ReadInterpolated(v.pluckDelay, v.interp)
		fb := v.pluckDamping * 0.5 * (cur + v.pluckPrev)
		v.pluck.Write(float32(dspcore.FlushDenormals(float64(fb))))
		v.pluckPrev = cur

		s := v.filter.Process(cur)
		out[i] += s * v.env.Next() * v.gain
	}
}

// excitePluck reloads the string with a noise burst sized to the current
// pitch. The noise is seeded from the note so renders are repeatable.
func (v *ToneVoice) excitePluck() {
	v.pluckDelay = v.stringDelay(v.freq)
	v.pluck.Reset()
	v.pluckPrev = 0
	v.noiseState = uint32(v.note)*2654435761 + 1
	for i := 0; i < int(v.pluckDelay); i++ {
		v.pluck.Write(v.noise())
	}
}

func (v *ToneVoice) stringDelay(hz float32) float32 {
	d := v.sampleRate / hz
	return clampf(d, 2, float32(v.pluck.Size()-3))
}

// noise returns white noise in [-1,1) from a xorshift generator.
func (v *ToneVoice) noise() float32 {
	x := v.noiseState
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	v.noiseState = x
	return float32(int32(x)) / float32(math.MaxInt32+1)
}
