package synth

import "testing"

func TestParseEnums(t *testing.T) {
	if w, err := ParseWaveform("Saw"); err != nil || w != WaveSaw {
		t.Fatalf("ParseWaveform(Saw)=%v,%v", w, err)
	}
	if _, err := ParseWaveform("noise"); err == nil {
		t.Fatalf("unknown waveform accepted")
	}
	if m, err := ParseAllocationMode("rr"); err != nil || m != AllocRoundRobin {
		t.Fatalf("ParseAllocationMode(rr)=%v,%v", m, err)
	}
	if m, err := ParseStealMode(" soft "); err != nil || m != StealSoft {
		t.Fatalf("ParseStealMode(soft)=%v,%v", m, err)
	}
	if p, err := ParseNotePriority("highest"); err != nil || p != PriorityHighest {
		t.Fatalf("ParseNotePriority(highest)=%v,%v", p, err)
	}
	if c, err := ParseGlideCurve("exp"); err != nil || c != GlideExponential {
		t.Fatalf("ParseGlideCurve(exp)=%v,%v", c, err)
	}
	if m, err := ParseVoiceMode("mono"); err != nil || m != ModeMono {
		t.Fatalf("ParseVoiceMode(mono)=%v,%v", m, err)
	}
}

func TestDefaultParamsAreValidRanges(t *testing.T) {
	p := NewDefaultParams()
	if p.VoiceCount < 1 || p.VoiceCount > MaxVoices {
		t.Fatalf("default voice count %d out of range", p.VoiceCount)
	}
	if p.UnisonCount < 1 || p.UnisonCount > MaxUnison {
		t.Fatalf("default unison count %d out of range", p.UnisonCount)
	}
	if p.Sustain < 0 || p.Sustain > 1 {
		t.Fatalf("default sustain %g out of range", p.Sustain)
	}
}
