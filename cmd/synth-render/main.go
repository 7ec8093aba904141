// Command synth-render renders a note sequence offline to a WAV file.
//
// Notes are given as a comma-separated list of note[:velocity[:start]]
// entries, e.g. "60,64:90,67:100:0.5" plays a C major chord with the G
// entering half a second late.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/irsynth"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

type noteEvent struct {
	note     int
	velocity int
	startSec float64
}

func main() {
	notesFlag := flag.String("notes", "69", "Note sequence: note[:velocity[:start]] entries, comma separated")
	gate := flag.Float64("gate", 1.0, "Seconds each note is held before NoteOff")
	duration := flag.Float64("duration", 3.0, "Total render duration in seconds")
	decayDBFS := flag.Float64("decay-dbfs", math.Inf(1), "Auto-stop when block RMS falls below this dBFS (e.g. -90). Disabled by default")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "Consecutive below-threshold blocks required to stop in auto-decay mode")
	maxDuration := flag.Float64("max-duration", 30.0, "Maximum render duration in seconds when using -decay-dbfs")
	sampleRate := flag.Int("sample-rate", 48000, "Render sample rate in Hz")
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	waveform := flag.String("waveform", "", "Waveform override: sine, saw, square, triangle, pluck")
	mode := flag.String("mode", "", "Voice mode override: poly or mono")
	voiceCount := flag.Int("voices", 0, "Voice count override (1-32, 0 keeps preset)")
	spacePath := flag.String("space", "", "Space IR WAV path override (optional)")
	spaceSynth := flag.Bool("space-synth", false, "Synthesize a space IR instead of loading one")
	spaceSeed := flag.Int64("space-seed", 1, "Seed for the synthesized space IR")
	spaceMix := flag.Float64("space-mix", -1, "Space wet mix override 0..1 (negative keeps preset)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	flag.Parse()

	events, err := parseNotes(*notesFlag)
	if err != nil {
		fatal("parsing -notes: %v", err)
	}

	params := synth.NewDefaultParams()
	if *presetPath != "" {
		params, err = preset.LoadJSON(*presetPath)
		if err != nil {
			fatal("loading preset %q: %v", *presetPath, err)
		}
	}
	if *waveform != "" {
		w, err := synth.ParseWaveform(*waveform)
		if err != nil {
			fatal("%v", err)
		}
		params.Waveform = w
	}
	if *mode != "" {
		m, err := synth.ParseVoiceMode(*mode)
		if err != nil {
			fatal("%v", err)
		}
		params.VoiceMode = m
	}
	if *voiceCount > 0 {
		params.VoiceCount = *voiceCount
	}
	if *spacePath != "" {
		params.SpaceWavPath = *spacePath
	}
	if *spaceMix >= 0 {
		params.SpaceMix = float32(*spaceMix)
	}

	eng := synth.NewEngine(float32(*sampleRate), params)

	switch {
	case *spaceSynth:
		cfg := irsynth.DefaultConfig()
		cfg.SampleRate = *sampleRate
		cfg.Seed = *spaceSeed
		ir, err := irsynth.Generate(cfg)
		if err != nil {
			fatal("synthesizing space IR: %v", err)
		}
		eng.SetSpaceIR(ir)
	case params.SpaceWavPath != "":
		ir, err := wavio.ReadIR(params.SpaceWavPath, *sampleRate)
		if err != nil {
			fatal("loading space IR %q: %v", params.SpaceWavPath, err)
		}
		eng.SetSpaceIR(ir)
	}

	const blockSize = 128
	eng.Prepare(blockSize)

	autoStop := !math.IsInf(*decayDBFS, 1)
	totalFrames := int(float64(*sampleRate) * (*duration))
	if autoStop {
		totalFrames = int(float64(*sampleRate) * (*maxDuration))
	}
	if totalFrames < blockSize {
		totalFrames = blockSize
	}

	// Precompute note on/off frame positions.
	type timedEvent struct {
		frame int
		note  int
		vel   int // 0 means NoteOff
	}
	var timeline []timedEvent
	gateFrames := int(float64(*sampleRate) * (*gate))
	if gateFrames < 1 {
		gateFrames = 1
	}
	for _, ev := range events {
		on := int(ev.startSec * float64(*sampleRate))
		timeline = append(timeline, timedEvent{frame: on, note: ev.note, vel: ev.velocity})
		timeline = append(timeline, timedEvent{frame: on + gateFrames, note: ev.note})
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].frame < timeline[j].frame })

	thresholdLin := math.Pow(10.0, *decayDBFS/20.0)
	if *decayHoldBlocks < 1 {
		*decayHoldBlocks = 1
	}
	lastGateOff := 0
	for _, ev := range timeline {
		if ev.vel == 0 && ev.frame > lastGateOff {
			lastGateOff = ev.frame
		}
	}

	samples := make([]float32, 0, totalFrames)
	block := make([]float32, blockSize)
	nextEvent := 0
	belowCount := 0
	framesRendered := 0
	for framesRendered < totalFrames {
		for nextEvent < len(timeline) && timeline[nextEvent].frame <= framesRendered {
			ev := timeline[nextEvent]
			if ev.vel > 0 {
				eng.NoteOn(ev.note, ev.vel)
			} else {
				eng.NoteOff(ev.note)
			}
			nextEvent++
		}

		n := blockSize
		if framesRendered+n > totalFrames {
			n = totalFrames - framesRendered
		}
		eng.ProcessBlock(block[:n])
		samples = append(samples, block[:n]...)
		framesRendered += n

		if autoStop && framesRendered > lastGateOff {
			if wavio.RMS(block[:n]) < thresholdLin {
				belowCount++
				if belowCount >= *decayHoldBlocks {
					break
				}
			} else {
				belowCount = 0
			}
		}
	}

	if err := wavio.WriteMono(*output, samples, *sampleRate); err != nil {
		fatal("writing %q: %v", *output, err)
	}

	peak := wavio.Peak(samples)
	rms := wavio.RMS(samples)
	fmt.Printf("Wrote %s: %d frames (%.2f s), peak %.4f (%.1f dBFS), RMS %.4f\n",
		*output, len(samples), float64(len(samples))/float64(*sampleRate), peak, toDBFS(peak), rms)
}

func parseNotes(s string) ([]noteEvent, error) {
	parts := strings.Split(s, ",")
	events := make([]noteEvent, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) > 3 {
			return nil, fmt.Errorf("entry %q: want note[:velocity[:start]]", part)
		}
		ev := noteEvent{velocity: 100}
		var err error
		if ev.note, err = strconv.Atoi(fields[0]); err != nil {
			return nil, fmt.Errorf("entry %q: bad note: %w", part, err)
		}
		if ev.note < 0 || ev.note > 127 {
			return nil, fmt.Errorf("entry %q: note out of range 0-127", part)
		}
		if len(fields) > 1 {
			if ev.velocity, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("entry %q: bad velocity: %w", part, err)
			}
			if ev.velocity < 1 || ev.velocity > 127 {
				return nil, fmt.Errorf("entry %q: velocity out of range 1-127", part)
			}
		}
		if len(fields) > 2 {
			if ev.startSec, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("entry %q: bad start time: %w", part, err)
			}
			if ev.startSec < 0 {
				return nil, fmt.Errorf("entry %q: start time must be >= 0", part)
			}
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return events, nil
}

func toDBFS(lin float64) float64 {
	if lin <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(lin)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
