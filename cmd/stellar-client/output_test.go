package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintTracks_Table(t *testing.T) {
	buf := captureStdout(t)
	jsonOut = false

	tracks := []track.Track{
		track.NewRemote("abc", "Song A", "Artist A", "http://x/a", "", 0),
		track.NewUploaded("b.mp3", "Song B.mp3", "http://localhost:8000"),
	}
	if err := printTracks(tracks, "empty"); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"TITLE", "Song A", "Song B", "Unknown Artist", "local"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintTracks_Empty(t *testing.T) {
	buf := captureStdout(t)

	jsonOut = false
	if err := printTracks(nil, "nothing here"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "nothing here" {
		t.Errorf("output = %q", got)
	}

	buf.Reset()
	jsonOut = true
	t.Cleanup(func() { jsonOut = false })
	if err := printTracks(nil, "nothing here"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("json output = %q, want []", got)
	}
}
