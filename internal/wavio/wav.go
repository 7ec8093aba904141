// Package wavio reads and writes WAV files for the synth tools and
// resamples material to the engine rate when needed.
package wavio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// ReadMono reads a WAV file and folds all channels down to a single
// mono track. Returns the samples and the file's sample rate.
func ReadMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, 0, fmt.Errorf("empty wav data: %s", path)
	}
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out, buf.Format.SampleRate, nil
}

// ReadIR loads a mono impulse response and resamples it to targetRate.
func ReadIR(path string, targetRate int) ([]float32, error) {
	mono, srcRate, err := ReadMono(path)
	if err != nil {
		return nil, err
	}
	mono, err = ResampleIfNeeded(mono, srcRate, targetRate)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(mono))
	for i, v := range mono {
		out[i] = float32(v)
	}
	return out, nil
}

// ResampleIfNeeded converts in from fromRate to toRate; it returns the
// input unchanged when the rates already match.
func ResampleIfNeeded(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// WriteMono writes mono float32 samples as a 16-bit WAV file, creating
// parent directories as needed.
func WriteMono(path string, data []float32, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	defer enc.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

// Peak returns the largest absolute sample value.
func Peak(data []float32) float64 {
	var peak float64
	for _, s := range data {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root-mean-square level of the samples.
func RMS(data []float32) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, s := range data {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

// ToFloat64 widens a float32 buffer, for handing rendered audio to the
// analysis package.
func ToFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
