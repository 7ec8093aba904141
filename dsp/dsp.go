// Package dsp provides the small building blocks the voice render path is
// made of: biquad filtering, delay lines with fractional reads, and Lagrange
// interpolation. Everything processes float32 and allocates only at
// construction time.
package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR section in Direct Form I. Process
// performs no heap allocations.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32

	x1, x2 float32 // input history
	y1, y2 float32 // output history
}

// NewBiquad creates a filter from normalized coefficients.
func NewBiquad(b0, b1, b2, a1, a2 float32) *Biquad {
	return &Biquad{
		b0: b0,
		b1: b1,
		b2: b2,
		a1: a1,
		a2: a2,
	}
}

// NewLowpass creates a lowpass section at the given cutoff.
func NewLowpass(cutoff, sampleRate, q float32) *Biquad {
	b := &Biquad{}
	b.SetLowpass(cutoff, sampleRate, q)
	return b
}

// SetLowpass retunes the section as a lowpass without touching its state,
// so cutoff changes mid-stream are click-free and allocation-free. The
// cutoff is clamped below Nyquist.
func (b *Biquad) SetLowpass(cutoff, sampleRate, q float32) {
	if sampleRate <= 0 {
		return
	}
	if q <= 0 {
		q = 0.7071
	}
	if cutoff < 10 {
		cutoff = 10
	}
	if max := 0.49 * sampleRate; cutoff > max {
		cutoff = max
	}

	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	alpha := math.Sin(w0) / (2.0 * float64(q))
	cosw0 := math.Cos(w0)

	b0 := (1.0 - cosw0) / 2.0
	b1 := 1.0 - cosw0
	b2 := (1.0 - cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	b.b0 = float32(b0 / a0)
	b.b1 = float32(b1 / a0)
	b.b2 = float32(b2 / a0)
	b.a1 = float32(a1 / a0)
	b.a2 = float32(a2 / a0)
}

// Process filters one sample. Denormals in the feedback path are flushed to
// zero to keep the filter fast when its input falls silent.
func (b *Biquad) Process(input float32) float32 {
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = float32(dspcore.FlushDenormals(float64(output)))

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// ProcessBlock filters a buffer in place.
func (b *Biquad) ProcessBlock(buf []float32) {
	for i := range buf {
		buf[i] = b.Process(buf[i])
	}
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// DelayLine is a circular buffer supporting integer and fractional reads.
type DelayLine struct {
	buffer   []float32
	writePos int
	size     int
}

// NewDelayLine creates a delay line holding size samples. Sizes below four
// are padded so interpolated reads always have enough history.
func NewDelayLine(size int) *DelayLine {
	if size < 4 {
		size = 4
	}
	return &DelayLine{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Size returns the capacity in samples.
func (d *DelayLine) Size() int {
	return d.size
}

// Write pushes one sample into the line.
func (d *DelayLine) Write(sample float32) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % d.size
}

// Read returns the sample written delay steps ago.
func (d *DelayLine) Read(delay int) float32 {
	readPos := (d.writePos - delay + d.size) % d.size
	return d.buffer[readPos]
}

// ReadFractional reads at a fractional delay using linear interpolation.
func (d *DelayLine) ReadFractional(delay float32) float32 {
	intDelay := int(delay)
	frac := delay - float32(intDelay)

	sample1 := d.Read(intDelay)
	sample2 := d.Read(intDelay + 1)

	return sample1 + frac*(sample2-sample1)
}

// ReadInterpolated reads at a fractional delay through the given
// interpolator. Near the buffer edges, where the interpolation window does
// not fit, it falls back to a linear read.
func (d *DelayLine) ReadInterpolated(delay float32, l *LagrangeInterpolator) float32 {
	intDelay := int(delay)
	frac := delay - float32(intDelay)

	if l == nil || l.order < 3 || intDelay < 1 || intDelay+2 >= d.size {
		return d.ReadFractional(delay)
	}

	window := [4]float32{
		d.Read(intDelay - 1),
		d.Read(intDelay),
		d.Read(intDelay + 1),
		d.Read(intDelay + 2),
	}
	return l.Interpolate(window[:], frac)
}

// Reset clears the delay line.
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}

// LagrangeInterpolator performs polynomial fractional-delay interpolation.
type LagrangeInterpolator struct {
	order int
}

// NewLagrangeInterpolator creates an interpolator of the given order.
// Supported orders are 1 (linear) and 3 (cubic); anything else degrades to
// linear.
func NewLagrangeInterpolator(order int) *LagrangeInterpolator {
	if order != 3 {
		order = 1
	}
	return &LagrangeInterpolator{order: order}
}

// Interpolate evaluates the polynomial at fractional position frac. For the
// cubic case, samples must hold four points and the result lies between
// samples[1] and samples[2].
func (l *LagrangeInterpolator) Interpolate(samples []float32, frac float32) float32 {
	if l.order == 3 && len(samples) >= 4 {
		d := frac
		c0 := samples[1]
		c1 := samples[2] - samples[0]/3.0 - samples[1]/2.0 - samples[3]/6.0
		c2 := samples[0]/2.0 - samples[1] + samples[2]/2.0
		c3 := samples[1]/2.0 - samples[2]/2.0 + (samples[3]-samples[0])/6.0

		return c0 + d*(c1+d*(c2+d*c3))
	}

	return samples[0] + frac*(samples[1]-samples[0])
}
