// Command synth-compare measures the distance between two WAV files
// with the analysis package and prints the metrics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/wavio"
)

func main() {
	refPath := flag.String("reference", "", "Reference WAV path")
	candPath := flag.String("candidate", "", "Candidate WAV path")
	sampleRate := flag.Int("sample-rate", 48000, "Analysis sample rate")
	jsonOut := flag.Bool("json", false, "Print metrics as JSON")
	flag.Parse()

	if *refPath == "" || *candPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: synth-compare -reference ref.wav -candidate cand.wav")
		os.Exit(2)
	}

	ref := loadMono(*refPath, *sampleRate)
	cand := loadMono(*candPath, *sampleRate)

	m := analysis.Compare(ref, cand, *sampleRate)
	if *jsonOut {
		b, err := json.MarshalIndent(&m, "", "  ")
		if err != nil {
			fatal("encoding metrics: %v", err)
		}
		fmt.Println(string(b))
		return
	}

	fmt.Printf("Reference: %d frames, Candidate: %d frames (aligned %d, lag %d)\n",
		m.ReferenceFrames, m.CandidateFrames, m.AlignedFrames, m.LagSamples)
	fmt.Printf("Time RMSE:      %.5f\n", m.TimeRMSE)
	fmt.Printf("Envelope RMSE:  %.2f dB\n", m.EnvelopeRMSEDB)
	fmt.Printf("Spectral RMSE:  %.2f dB\n", m.SpectralRMSEDB)
	fmt.Printf("Decay:          ref %.2f dB/s, cand %.2f dB/s (diff %.2f)\n",
		m.RefDecayDBPerS, m.CandDecayDBPerS, m.DecayDiffDBPerS)
	fmt.Printf("Score:          %.4f\n", m.Score)
	fmt.Printf("Similarity:     %.2f%%\n", m.Similarity*100.0)
}

func loadMono(path string, sampleRate int) []float64 {
	data, sr, err := wavio.ReadMono(path)
	if err != nil {
		fatal("reading %q: %v", path, err)
	}
	data, err = wavio.ResampleIfNeeded(data, sr, sampleRate)
	if err != nil {
		fatal("resampling %q: %v", path, err)
	}
	return data
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
