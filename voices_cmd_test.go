package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dgnsrekt/narrator/tts"
)

// TestBackendVoices tests voice listing for backends that need no
// platform tools.
func TestBackendVoices(t *testing.T) {
	cfg := tts.DefaultConfig()

	voices, err := backendVoices(context.Background(), tts.BackendOpenAI, cfg)
	if err != nil || len(voices) == 0 {
		t.Errorf("openai voices = %v, %v", voices, err)
	}
	voices, err = backendVoices(context.Background(), tts.BackendMock, cfg)
	if err != nil || len(voices) != 3 {
		t.Errorf("mock voices = %v, %v", voices, err)
	}
	if _, err := backendVoices(context.Background(), "festival", cfg); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

// TestWriteVoices tests the listing and the picked voice marker.
func TestWriteVoices(t *testing.T) {
	voices := []tts.Voice{
		{ID: "en-us", Name: "English (America)", Language: "en-US"},
		{ID: "Samantha", Name: "Samantha", Language: "en_US", Gender: "female"},
	}

	var buf bytes.Buffer
	writeVoices(&buf, "local", voices, "Samantha")
	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("output too short:\n%s", buf.String())
	}
	if !strings.Contains(lines[0], "2 voices") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "   English (America)") {
		t.Errorf("unpicked line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], " * Samantha") {
		t.Errorf("picked line = %q", lines[2])
	}

	buf.Reset()
	writeVoices(&buf, "local", nil, "")
	if !strings.Contains(buf.String(), "platform default") {
		t.Errorf("empty listing = %q", buf.String())
	}
}
