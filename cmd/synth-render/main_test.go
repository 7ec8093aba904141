package main

import "testing"

func TestParseNotesFormats(t *testing.T) {
	events, err := parseNotes("60,64:90,67:100:0.5")
	if err != nil {
		t.Fatalf("parseNotes: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].note != 60 || events[0].velocity != 100 || events[0].startSec != 0 {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].note != 64 || events[1].velocity != 90 {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[2].startSec != 0.5 {
		t.Fatalf("third event start = %f, want 0.5", events[2].startSec)
	}
}

func TestParseNotesRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"128",
		"-1",
		"60:0",
		"60:200",
		"60:100:-1",
		"60:100:0:9",
	}
	for _, in := range cases {
		if _, err := parseNotes(in); err == nil {
			t.Errorf("parseNotes(%q): expected error", in)
		}
	}
}

func TestParseNotesSkipsEmptyEntries(t *testing.T) {
	events, err := parseNotes(" 60 , , 64 ")
	if err != nil {
		t.Fatalf("parseNotes: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}
