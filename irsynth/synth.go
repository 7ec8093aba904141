// Package irsynth generates synthetic mono impulse responses for the
// engine's master-bus space convolver: a direct impulse, an early-reflection
// cluster, a bed of decaying resonant modes, and a diffuse noise tail.
// Generation is deterministic for a given seed.
package irsynth

import (
	"fmt"
	"math"
	"math/rand"
)

// Config controls synthetic IR generation.
type Config struct {
	SampleRate int
	DurationS  float64
	Modes      int
	Seed       int64

	Brightness  float64
	Density     float64 // mode clustering: >1 biases low frequencies, <1 biases high
	DirectLevel float64
	EarlyCount  int
	LateLevel   float64

	LowDecayS  float64
	HighDecayS float64

	FadeOutS      float64 // cosine fade at the end; 0 = no fade
	NormalizePeak float64
}

// DefaultConfig returns defaults for a small, neutral space.
func DefaultConfig() Config {
	return Config{
		SampleRate:    48000,
		DurationS:     1.2,
		Modes:         96,
		Seed:          1,
		Brightness:    1.0,
		Density:       2.0,
		DirectLevel:   0.5,
		EarlyCount:    20,
		LateLevel:     0.05,
		LowDecayS:     1.4,
		HighDecayS:    0.25,
		FadeOutS:      0.01,
		NormalizePeak: 0.9,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.DurationS <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if c.Modes < 1 {
		return fmt.Errorf("modes must be >= 1")
	}
	if c.Brightness <= 0 {
		return fmt.Errorf("brightness must be > 0")
	}
	if c.Density <= 0 {
		return fmt.Errorf("density must be > 0")
	}
	if c.DirectLevel < 0 {
		return fmt.Errorf("direct level must be >= 0")
	}
	if c.EarlyCount < 0 {
		return fmt.Errorf("early count must be >= 0")
	}
	if c.LateLevel < 0 {
		return fmt.Errorf("late level must be >= 0")
	}
	if c.LowDecayS <= 0 || c.HighDecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if c.FadeOutS < 0 {
		return fmt.Errorf("fade-out must be >= 0")
	}
	if c.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// Generate synthesizes a mono IR according to cfg.
func Generate(cfg Config) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := int(math.Round(cfg.DurationS * float64(cfg.SampleRate)))
	if n < 1 {
		n = 1
	}
	buf := make([]float64, n)

	rng := rand.New(rand.NewSource(cfg.Seed))

	// Direct path impulse.
	buf[0] += cfg.DirectLevel

	maxF := 0.47 * float64(cfg.SampleRate)
	if maxF < 500.0 {
		maxF = 500.0
	}
	minF := 35.0
	if minF >= maxF {
		minF = maxF * 0.5
	}

	// Modal bed with deterministic log-spaced frequency placement; the RNG
	// only jitters amplitude and phase.
	brightnessExp := 0.7 + 0.9*cfg.Brightness
	for m := 0; m < cfg.Modes; m++ {
		fNorm := math.Pow((float64(m)+0.5)/float64(cfg.Modes), cfg.Density)
		f := minF * math.Pow(maxF/minF, fNorm)

		amp := 0.9 / math.Pow(1.0+f/120.0, brightnessExp)
		amp *= 0.7 + 0.6*rng.Float64()

		tau := lerp(cfg.LowDecayS, cfg.HighDecayS, math.Sqrt(f/maxF))
		decay := math.Exp(-1.0 / (tau * float64(cfg.SampleRate)))

		phi := rng.Float64() * 2.0 * math.Pi
		addModeRec(buf, amp, f, phi, decay, cfg.SampleRate)
	}

	// Early reflection cluster in the first 30 ms.
	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.001 + 0.030*rng.Float64()
		idx := int(t * float64(cfg.SampleRate))
		if idx <= 0 || idx >= n {
			continue
		}
		buf[idx] += (0.10 + 0.35*rng.Float64()) * math.Exp(-t*28.0)
	}

	// Diffuse late tail from lowpassed noise.
	if cfg.LateLevel > 0 {
		lp := 0.0
		for i := 0; i < n; i++ {
			t := float64(i) / float64(cfg.SampleRate)
			env := math.Exp(-t / (0.75 * cfg.LowDecayS))
			lp = 0.985*lp + 0.015*rng.NormFloat64()
			buf[i] += cfg.LateLevel * env * lp
		}
	}

	// Remove tiny DC drift.
	highpassDC(buf, 0.995)
	applyFadeOut(buf, cfg.FadeOutS, cfg.SampleRate)

	peak := maxAbs(buf)
	if peak < 1e-12 {
		peak = 1e-12
	}
	s := cfg.NormalizePeak / peak
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(buf[i] * s)
	}
	return out, nil
}

// addModeRec adds an exponentially decaying cosine using the recurrence
// x[n] = 2 cos(w) x[n-1] - x[n-2], avoiding per-sample trig calls.
func addModeRec(out []float64, amp float64, freq float64, phase float64, decay float64, sampleRate int) {
	if len(out) == 0 {
		return
	}
	w := 2.0 * math.Pi * freq / float64(sampleRate)
	cw := math.Cos(w)
	x0 := math.Cos(phase)
	x1 := math.Cos(phase + w)
	env := 1.0

	out[0] += amp * env * x0
	env *= decay
	if len(out) == 1 {
		return
	}
	out[1] += amp * env * x1
	env *= decay
	for i := 2; i < len(out); i++ {
		x2 := 2.0*cw*x1 - x0
		x0 = x1
		x1 = x2
		out[i] += amp * env * x2
		env *= decay
	}
}

func highpassDC(x []float64, r float64) {
	if len(x) == 0 {
		return
	}
	prevIn := 0.0
	prevOut := 0.0
	for i := range x {
		y := x[i] - prevIn + r*prevOut
		prevIn = x[i]
		prevOut = y
		x[i] = y
	}
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		a := math.Abs(v)
		if a > m {
			m = a
		}
	}
	return m
}

// applyFadeOut applies a cosine fade-out to the last fadeS seconds of buf.
func applyFadeOut(buf []float64, fadeS float64, sampleRate int) {
	if fadeS <= 0 || len(buf) == 0 {
		return
	}
	fadeSamples := int(math.Round(fadeS * float64(sampleRate)))
	if fadeSamples > len(buf) {
		fadeSamples = len(buf)
	}
	start := len(buf) - fadeSamples
	for i := 0; i < fadeSamples; i++ {
		t := float64(i) / float64(fadeSamples)
		buf[start+i] *= 0.5 * (1.0 + math.Cos(t*math.Pi))
	}
}

func lerp(a, b, t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return a + (b-a)*t
}
