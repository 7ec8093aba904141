package synth

import (
	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
)

// SpaceConvolver runs a mono partitioned convolution on the master bus. The
// impulse response comes from caller-provided buffers; the engine mixes the
// wet result against the dry sum. With no IR set the convolver is a
// passthrough.
type SpaceConvolver struct {
	partSize int
	irLen    int

	ola *dspconv.StreamingOverlapAddT[float32, complex64]

	// Pre-allocated block buffers so ProcessTo never allocates.
	block    []float32
	blockOut []float32
}

// NewSpaceConvolver creates a convolver with a unity impulse response.
func NewSpaceConvolver() *SpaceConvolver {
	c := &SpaceConvolver{partSize: 128}
	c.SetIR([]float32{1.0})
	return c
}

// SetIR configures the mono impulse response. An empty IR restores the unity
// passthrough. The convolver history is cleared.
func (c *SpaceConvolver) SetIR(ir []float32) {
	if len(ir) == 0 {
		ir = []float32{1.0}
	}
	ola, err := dspconv.NewStreamingOverlapAdd32(ir, c.partSize)
	if err != nil {
		return
	}
	c.ola = ola
	c.irLen = len(ir)
	c.block = make([]float32, c.partSize)
	c.blockOut = make([]float32, c.partSize)
	c.Reset()
}

// IRLength returns the length of the configured impulse response in samples.
func (c *SpaceConvolver) IRLength() int {
	return c.irLen
}

// ProcessTo convolves input into dst. The two slices must have equal length
// and may not alias. Arbitrary lengths are handled by stepping through the
// partition size; a short final block is zero-padded.
func (c *SpaceConvolver) ProcessTo(dst, input []float32) {
	processed := 0
	for processed < len(input) {
		blockEnd := processed + c.partSize
		if blockEnd > len(input) {
			blockEnd = len(input)
		}
		blockLen := blockEnd - processed
		block := input[processed:blockEnd]

		if blockLen < c.partSize {
			for i := range c.block {
				c.block[i] = 0
			}
			copy(c.block, block)
			block = c.block
		}

		if err := c.ola.ProcessBlockTo(c.blockOut, block); err != nil {
			// Fallback: pass the dry block through.
			copy(dst[processed:blockEnd], input[processed:blockEnd])
			processed = blockEnd
			continue
		}
		copy(dst[processed:blockEnd], c.blockOut[:blockLen])
		processed = blockEnd
	}
}

// Reset clears convolver history and overlap buffers.
func (c *SpaceConvolver) Reset() {
	if c.ola != nil {
		c.ola.Reset()
	}
}
