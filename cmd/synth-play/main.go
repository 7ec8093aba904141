// Command synth-play opens a small window and plays the synth live
// from the computer keyboard. The A row gives white keys and the row
// above the black keys, starting at C4; Z and X shift octaves.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cwbudde/algo-synth/internal/rtaudio"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/irsynth"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

const (
	windowW    = 640
	windowH    = 240
	sampleRate = 48000
	blockSize  = 256
)

// Chromatic layout from C: white keys on the home row, black keys above.
var keyNotes = map[ebiten.Key]int{
	ebiten.KeyA: 0, ebiten.KeyW: 1, ebiten.KeyS: 2, ebiten.KeyE: 3,
	ebiten.KeyD: 4, ebiten.KeyF: 5, ebiten.KeyT: 6, ebiten.KeyG: 7,
	ebiten.KeyY: 8, ebiten.KeyH: 9, ebiten.KeyU: 10, ebiten.KeyJ: 11,
	ebiten.KeyK: 12, ebiten.KeyO: 13, ebiten.KeyL: 14,
}

var waveOrder = []synth.Waveform{
	synth.WaveSine, synth.WaveSaw, synth.WaveSquare, synth.WaveTriangle, synth.WavePluck,
}

// lockedEngine serializes control changes from the UI loop against
// block rendering on the audio thread.
type lockedEngine struct {
	mu  sync.Mutex
	eng *synth.Engine
}

func (l *lockedEngine) Process(dst []float32) {
	l.mu.Lock()
	l.eng.ProcessBlock(dst)
	l.mu.Unlock()
}

func (l *lockedEngine) do(f func(*synth.Engine)) {
	l.mu.Lock()
	f(l.eng)
	l.mu.Unlock()
}

type game struct {
	le       *lockedEngine
	player   *rtaudio.Player
	octave   int // MIDI note of the layout's C
	velocity int
	waveIdx  int
	mono     bool
	held     map[ebiten.Key]int // pressed key -> sounding note
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyZ) && g.octave > 12 {
		g.octave -= 12
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyX) && g.octave < 96 {
		g.octave += 12
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		g.waveIdx = (g.waveIdx + 1) % len(waveOrder)
		g.le.do(func(e *synth.Engine) { e.SetWaveform(waveOrder[g.waveIdx]) })
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		g.mono = !g.mono
		g.le.do(func(e *synth.Engine) {
			if g.mono {
				e.SetVoiceMode(synth.ModeMono)
			} else {
				e.SetVoiceMode(synth.ModePoly)
			}
		})
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && g.velocity < 127 {
		g.velocity += 10
		if g.velocity > 127 {
			g.velocity = 127
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && g.velocity > 1 {
		g.velocity -= 10
		if g.velocity < 1 {
			g.velocity = 1
		}
	}

	for key, offset := range keyNotes {
		if inpututil.IsKeyJustPressed(key) {
			note := g.octave + offset
			if note <= 127 {
				g.held[key] = note
				g.le.do(func(e *synth.Engine) { e.NoteOn(note, g.velocity) })
			}
		}
		if inpututil.IsKeyJustReleased(key) {
			if note, ok := g.held[key]; ok {
				delete(g.held, key)
				g.le.do(func(e *synth.Engine) { e.NoteOff(note) })
			}
		}
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	mode := "poly"
	if g.mono {
		mode = "mono"
	}
	var active int
	g.le.do(func(e *synth.Engine) { active = e.ActiveVoiceCount() })
	lines := []string{
		"algo-synth live",
		"",
		fmt.Sprintf("octave C%d   velocity %d   wave %s   mode %s", g.octave/12-1, g.velocity, waveOrder[g.waveIdx], mode),
		fmt.Sprintf("active voices: %d", active),
		"",
		"keys A..L play, Z/X octave, Tab waveform, M poly/mono, Up/Down velocity",
	}
	ebitenutil.DebugPrint(screen, strings.Join(lines, "\n"))
}

func (g *game) Layout(int, int) (int, int) { return windowW, windowH }

func main() {
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	spacePath := flag.String("space", "", "Space IR WAV path (optional)")
	spaceSynth := flag.Bool("space-synth", false, "Synthesize a space IR")
	flag.Parse()

	params := synth.NewDefaultParams()
	if *presetPath != "" {
		var err error
		params, err = preset.LoadJSON(*presetPath)
		if err != nil {
			log.Fatalf("loading preset %q: %v", *presetPath, err)
		}
	}
	if *spacePath != "" {
		params.SpaceWavPath = *spacePath
	}

	eng := synth.NewEngine(sampleRate, params)
	eng.Prepare(blockSize)

	switch {
	case *spaceSynth:
		cfg := irsynth.DefaultConfig()
		cfg.SampleRate = sampleRate
		ir, err := irsynth.Generate(cfg)
		if err != nil {
			log.Fatalf("synthesizing space IR: %v", err)
		}
		eng.SetSpaceIR(ir)
	case params.SpaceWavPath != "":
		ir, err := wavio.ReadIR(params.SpaceWavPath, sampleRate)
		if err != nil {
			log.Fatalf("loading space IR %q: %v", params.SpaceWavPath, err)
		}
		eng.SetSpaceIR(ir)
	}

	le := &lockedEngine{eng: eng}
	player, err := rtaudio.NewPlayer(sampleRate, le, 0)
	if err != nil {
		log.Fatalf("opening audio output: %v", err)
	}
	player.Play()

	waveIdx := 0
	for i, w := range waveOrder {
		if w == params.Waveform {
			waveIdx = i
		}
	}

	g := &game{
		le:       le,
		player:   player,
		octave:   60,
		velocity: 100,
		waveIdx:  waveIdx,
		mono:     params.VoiceMode == synth.ModeMono,
		held:     make(map[ebiten.Key]int),
	}

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle("algo-synth")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
	if err := player.Stop(); err != nil {
		log.Printf("closing audio output: %v", err)
	}
}
