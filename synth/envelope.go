package synth

import "github.com/cwbudde/algo-approx"

// EnvelopeStage identifies the segment an ADSR envelope is currently in.
type EnvelopeStage int32

const (
	StageIdle EnvelopeStage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "unknown"
	}
}

const envSilence = 0.001

// ADSR is an exponential attack-decay-sustain-release amplitude envelope.
// Each segment runs a one-pole curve toward its target; stage transitions
// happen inside Next, so callers just pull values sample by sample.
type ADSR struct {
	sampleRate float32

	attack  float32 // seconds
	decay   float32 // seconds
	sustain float32 // level 0..1
	release float32 // seconds

	attackCoeff  float32
	decayCoeff   float32
	releaseCoeff float32

	stage  EnvelopeStage
	value  float32
	target float32
}

// NewADSR creates an envelope with moderate defaults at the given rate.
func NewADSR(sampleRate float32) *ADSR {
	e := &ADSR{
		sampleRate: sampleRate,
		attack:     0.005,
		decay:      0.12,
		sustain:    0.7,
		release:    0.25,
	}
	e.updateCoefficients()
	return e
}

// SetAttack sets the attack time in seconds. Non-finite values are ignored.
func (e *ADSR) SetAttack(seconds float32) {
	if !isFinite(seconds) {
		return
	}
	e.attack = clampf(seconds, 0.001, 30)
	e.updateCoefficients()
}

// SetDecay sets the decay time in seconds. Non-finite values are ignored.
func (e *ADSR) SetDecay(seconds float32) {
	if !isFinite(seconds) {
		return
	}
	e.decay = clampf(seconds, 0.001, 30)
	e.updateCoefficients()
}

// SetSustain sets the sustain level in [0,1]. Non-finite values are ignored.
func (e *ADSR) SetSustain(level float32) {
	if !isFinite(level) {
		return
	}
	e.sustain = clampf(level, 0, 1)
}

// SetRelease sets the release time in seconds. Non-finite values are
// ignored.
func (e *ADSR) SetRelease(seconds float32) {
	if !isFinite(seconds) {
		return
	}
	e.release = clampf(seconds, 0.001, 30)
	e.updateCoefficients()
}

// Trigger starts the attack from the current value, so re-triggering a
// sounding envelope does not click.
func (e *ADSR) Trigger() {
	e.stage = StageAttack
	e.target = 1.0
}

// Release moves a sounding envelope into its release segment.
func (e *ADSR) Release() {
	if e.stage == StageIdle {
		return
	}
	e.stage = StageRelease
	e.target = 0.0
}

// Reset silences the envelope immediately.
func (e *ADSR) Reset() {
	e.stage = StageIdle
	e.value = 0.0
	e.target = 0.0
}

// Active reports whether the envelope still produces output.
func (e *ADSR) Active() bool {
	return e.stage != StageIdle
}

// Stage returns the current segment.
func (e *ADSR) Stage() EnvelopeStage {
	return e.stage
}

// Next advances the envelope by one sample and returns its value.
func (e *ADSR) Next() float32 {
	switch e.stage {
	case StageAttack:
		e.value = e.target + (e.value-e.target)*e.attackCoeff
		if e.value >= 0.999 {
			e.value = 1.0
			e.stage = StageDecay
			e.target = e.sustain
		}
	case StageDecay:
		e.value = e.target + (e.value-e.target)*e.decayCoeff
		if e.value <= e.sustain+envSilence {
			e.value = e.sustain
			e.stage = StageSustain
		}
	case StageSustain:
		e.value = e.sustain
	case StageRelease:
		e.value = e.target + (e.value-e.target)*e.releaseCoeff
		if e.value <= envSilence {
			e.value = 0.0
			e.stage = StageIdle
		}
	case StageIdle:
		e.value = 0.0
	}
	return e.value
}

// ProcessMultiply scales the buffer in place by successive envelope values.
func (e *ADSR) ProcessMultiply(buf []float32) {
	for i := range buf {
		buf[i] *= e.Next()
	}
}

func (e *ADSR) updateCoefficients() {
	e.attackCoeff = envCoeff(e.attack, e.sampleRate)
	e.decayCoeff = envCoeff(e.decay, e.sampleRate)
	e.releaseCoeff = envCoeff(e.release, e.sampleRate)
}

// envCoeff returns the per-sample one-pole coefficient for a segment of the
// given duration.
func envCoeff(seconds, sampleRate float32) float32 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return approx.FastExp(-1.0 / (seconds * sampleRate))
}
