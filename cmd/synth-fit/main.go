// Command synth-fit searches the synth parameter space for the patch
// whose render best matches a reference recording. The search runs
// rounds of the Mayfly algorithm over normalized parameter knobs and
// scores candidates with the analysis package.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	IsInt bool
}

type candidate struct {
	Vals []float64
}

type runReport struct {
	ReferencePath  string             `json:"reference_path"`
	PresetPath     string             `json:"preset_path"`
	OutputPreset   string             `json:"output_preset"`
	SampleRate     int                `json:"sample_rate"`
	Note           int                `json:"note"`
	DurationSec    float64            `json:"elapsed_seconds"`
	Evaluations    int                `json:"evaluations"`
	MayflyVariant  string             `json:"mayfly_variant"`
	BestScore      float64            `json:"best_score"`
	BestSimilarity float64            `json:"best_similarity"`
	BestMetrics    analysis.Metrics   `json:"best_metrics"`
	BestKnobs      map[string]float64 `json:"best_knobs"`
}

func main() {
	referencePath := flag.String("reference", "reference/a4.wav", "Reference WAV path")
	presetPath := flag.String("preset", "", "Base preset JSON path (optional)")
	outputPreset := flag.String("output-preset", "out/fitted.json", "Path to write best fitted preset JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	note := flag.Int("note", 69, "MIDI note to fit")
	gate := flag.Float64("gate", 1.0, "Seconds before NoteOff for each evaluation render")
	sampleRate := flag.Int("sample-rate", 48000, "Render/analysis sample rate")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 120.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 5000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 20, "Print progress every N evaluations")
	decayDBFS := flag.Float64("decay-dbfs", -90.0, "Auto-stop threshold in dBFS for each render")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "Consecutive below-threshold blocks for stop")
	maxDuration := flag.Float64("max-duration", 10.0, "Maximum render duration in seconds")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	if *reportEvery < 1 {
		*reportEvery = 1
	}
	if *mayflyPop < 2 {
		*mayflyPop = 2
	}
	if *mayflyRoundEvals < *mayflyPop*2 {
		*mayflyRoundEvals = *mayflyPop * 2
	}

	baseParams := synth.NewDefaultParams()
	if *presetPath != "" {
		var err error
		baseParams, err = preset.LoadJSON(*presetPath)
		if err != nil {
			die("failed to load preset: %v", err)
		}
	}

	var spaceIR []float32
	if baseParams.SpaceWavPath != "" {
		var err error
		spaceIR, err = wavio.ReadIR(baseParams.SpaceWavPath, *sampleRate)
		if err != nil {
			die("failed to load space IR: %v", err)
		}
	}

	ref, refSR, err := wavio.ReadMono(*referencePath)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	ref, err = wavio.ResampleIfNeeded(ref, refSR, *sampleRate)
	if err != nil {
		die("failed to resample reference: %v", err)
	}

	defs, initCand := initCandidate(baseParams)

	evaluate := func(c candidate) (analysis.Metrics, error) {
		p, velocity := applyCandidate(baseParams, defs, c)
		mono, err := renderCandidate(p, spaceIR, *note, velocity, *sampleRate, *gate, *decayDBFS, *decayHoldBlocks, *maxDuration)
		if err != nil {
			return analysis.Metrics{}, err
		}
		return analysis.Compare(ref, mono, *sampleRate), nil
	}

	start := time.Now()
	deadline := start.Add(time.Duration(*timeBudget * float64(time.Second)))
	evals := 0
	bestImproves := 0

	best := initCand
	bestM, err := evaluate(best)
	if err != nil {
		die("initial evaluation failed: %v", err)
	}
	evals++
	fmt.Printf("Start score=%.4f similarity=%.2f%%\n", bestM.Score, bestM.Similarity*100.0)

	variant := strings.ToLower(*mayflyVariant)
	round := 0
	for evals < *maxEvals && time.Now().Before(deadline) {
		round++
		remaining := *maxEvals - evals
		budget := minInt(*mayflyRoundEvals, remaining)
		iters := maxInt(1, budget/(2*(*mayflyPop)))

		cfg, err := newMayflyConfig(variant, *mayflyPop, len(defs), iters)
		if err != nil {
			die("invalid mayfly variant: %v", err)
		}
		cfg.Rand = rand.New(rand.NewSource(*seed + int64(round)*7919))

		cfg.ObjectiveFunc = func(pos []float64) float64 {
			if evals >= *maxEvals || time.Now().After(deadline) {
				return bestM.Score + 1.0
			}
			cand := fromNormalized(pos, defs)
			m, err := evaluate(cand)
			evals++
			if err != nil {
				return bestM.Score + 0.8
			}
			if m.Score < bestM.Score {
				best = cand
				bestM = m
				bestImproves++
				fmt.Printf("Improved #%d eval=%d score=%.4f sim=%.2f%%\n", bestImproves, evals, bestM.Score, bestM.Similarity*100.0)
			}
			if evals%*reportEvery == 0 {
				fmt.Printf("Progress round=%d eval=%d elapsed=%.1fs best=%.4f\n", round, evals, time.Since(start).Seconds(), bestM.Score)
			}
			return m.Score
		}

		if _, err := runMayfly(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "mayfly round %d failed: %v\n", round, err)
			continue
		}
	}

	elapsed := time.Since(start).Seconds()
	if err := writeOutputs(*outputPreset, *reportPath, *referencePath, *presetPath, *sampleRate, *note, elapsed, evals, variant, defs, best, bestM, baseParams); err != nil {
		die("failed to write outputs: %v", err)
	}
	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f best_similarity=%.2f%% variant=%s\n",
		evals, elapsed, bestM.Score, bestM.Similarity*100.0, variant)
}

func initCandidate(base *synth.Params) ([]knobDef, candidate) {
	defs := []knobDef{
		{Name: "waveform", Min: 0, Max: 4, IsInt: true},
		{Name: "cutoff_hz", Min: 200, Max: 16000},
		{Name: "resonance", Min: 0.3, Max: 2.0},
		{Name: "pluck_damping", Min: 0.9, Max: 0.9995},
		{Name: "attack", Min: 0.001, Max: 0.5},
		{Name: "decay", Min: 0.01, Max: 2.0},
		{Name: "sustain", Min: 0.0, Max: 1.0},
		{Name: "release", Min: 0.02, Max: 3.0},
		{Name: "unison_count", Min: 1, Max: 8, IsInt: true},
		{Name: "unison_detune", Min: 0, Max: 40},
		{Name: "output_gain", Min: 0.2, Max: 2.0},
		{Name: "space_mix", Min: 0.0, Max: 1.0},
		{Name: "space_gain", Min: 0.2, Max: 2.0},
		{Name: "render.velocity", Min: 40, Max: 127, IsInt: true},
	}
	vals := []float64{
		float64(base.Waveform),
		float64(base.CutoffHz),
		float64(base.Resonance),
		float64(base.PluckDamping),
		float64(base.Attack),
		float64(base.Decay),
		float64(base.Sustain),
		float64(base.Release),
		float64(base.UnisonCount),
		float64(base.UnisonDetune),
		float64(base.OutputGain),
		float64(base.SpaceMix),
		float64(base.SpaceGain),
		100,
	}
	for i := range vals {
		vals[i] = clamp(vals[i], defs[i].Min, defs[i].Max)
	}
	return defs, candidate{Vals: vals}
}

func applyCandidate(base *synth.Params, defs []knobDef, c candidate) (*synth.Params, int) {
	p := *base
	velocity := 100
	for i, def := range defs {
		v := c.Vals[i]
		switch def.Name {
		case "waveform":
			p.Waveform = synth.Waveform(int(v))
		case "cutoff_hz":
			p.CutoffHz = float32(v)
		case "resonance":
			p.Resonance = float32(v)
		case "pluck_damping":
			p.PluckDamping = float32(v)
		case "attack":
			p.Attack = float32(v)
		case "decay":
			p.Decay = float32(v)
		case "sustain":
			p.Sustain = float32(v)
		case "release":
			p.Release = float32(v)
		case "unison_count":
			p.UnisonCount = int(v)
		case "unison_detune":
			p.UnisonDetune = float32(v)
		case "output_gain":
			p.OutputGain = float32(v)
		case "space_mix":
			p.SpaceMix = float32(v)
		case "space_gain":
			p.SpaceGain = float32(v)
		case "render.velocity":
			velocity = int(v)
		}
	}
	return &p, velocity
}

func renderCandidate(p *synth.Params, spaceIR []float32, note int, velocity int, sampleRate int, gate float64, decayDBFS float64, decayHoldBlocks int, maxDuration float64) ([]float64, error) {
	const blockSize = 128
	eng := synth.NewEngine(float32(sampleRate), p)
	eng.Prepare(blockSize)
	if len(spaceIR) > 0 {
		eng.SetSpaceIR(spaceIR)
	}

	eng.NoteOn(note, velocity)
	gateFrames := int(gate * float64(sampleRate))
	if gateFrames < 1 {
		gateFrames = 1
	}
	maxFrames := int(maxDuration * float64(sampleRate))
	if maxFrames < gateFrames+blockSize {
		maxFrames = gateFrames + blockSize
	}
	thresholdLin := math.Pow(10.0, decayDBFS/20.0)
	if decayHoldBlocks < 1 {
		decayHoldBlocks = 1
	}

	samples := make([]float32, 0, maxFrames)
	block := make([]float32, blockSize)
	released := false
	belowCount := 0
	rendered := 0
	for rendered < maxFrames {
		if !released && rendered >= gateFrames {
			eng.NoteOff(note)
			released = true
		}
		n := blockSize
		if rendered+n > maxFrames {
			n = maxFrames - rendered
		}
		eng.ProcessBlock(block[:n])
		samples = append(samples, block[:n]...)
		rendered += n

		if released {
			if wavio.RMS(block[:n]) < thresholdLin {
				belowCount++
				if belowCount >= decayHoldBlocks {
					break
				}
			} else {
				belowCount = 0
			}
		}
	}
	return wavio.ToFloat64(samples), nil
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	// Mayfly's implementation assumes NC/2 parent pairs are available from both
	// male and female populations.
	cfg.NC = 2 * pop
	// Keep at least one mutation to avoid stalling on small populations.
	cfg.NM = maxInt(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = clamp(pos[i], 0, 1)
		}
		v := defs[i].Min + x*(defs[i].Max-defs[i].Min)
		if defs[i].IsInt {
			v = math.Round(v)
		}
		vals[i] = v
	}
	return candidate{Vals: vals}
}

func writeOutputs(outputPreset, reportPath, referencePath, presetPath string, sampleRate, note int, elapsed float64, evals int, variant string, defs []knobDef, best candidate, bestM analysis.Metrics, base *synth.Params) error {
	p, _ := applyCandidate(base, defs, best)
	if err := os.MkdirAll(filepath.Dir(outputPreset), 0o755); err != nil {
		return err
	}
	if err := preset.SaveJSON(outputPreset, p); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(defs))
	for i, d := range defs {
		knobs[d.Name] = best.Vals[i]
	}
	rep := runReport{
		ReferencePath:  referencePath,
		PresetPath:     presetPath,
		OutputPreset:   outputPreset,
		SampleRate:     sampleRate,
		Note:           note,
		DurationSec:    elapsed,
		Evaluations:    evals,
		MayflyVariant:  variant,
		BestScore:      bestM.Score,
		BestSimilarity: bestM.Similarity,
		BestMetrics:    bestM,
		BestKnobs:      knobs,
	}
	if reportPath == "" {
		reportPath = outputPreset + ".report.json"
	}
	b, err := json.MarshalIndent(&rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(reportPath, append(b, '\n'), 0o644)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
