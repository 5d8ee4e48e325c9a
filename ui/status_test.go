package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/tts"
)

// TestCompactStatus tests the one-line status for each state.
func TestCompactStatus(t *testing.T) {
	tests := []struct {
		name   string
		status tts.Status
		want   []string
	}{
		{
			name:   "idle",
			status: tts.Status{State: tts.StateIdle},
		},
		{
			name:   "playing",
			status: tts.Status{State: tts.StatePlaying, Chunk: 2, TotalChunks: 5, Backend: "local"},
			want:   []string{"▶", "Playing", "chunk 3/5", "local"},
		},
		{
			name:   "fallback",
			status: tts.Status{State: tts.StatePlaying, TotalChunks: 2, Backend: "local", Fallback: true},
			want:   []string{"local (fallback)"},
		},
		{
			name:   "paused",
			status: tts.Status{State: tts.StatePaused, TotalChunks: 1},
			want:   []string{"⏸", "Paused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatusDisplay()
			s.Update(tt.status)
			got := s.CompactStatus()
			if len(tt.want) == 0 && got != "" {
				t.Errorf("CompactStatus() = %q, want empty", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("CompactStatus() = %q, missing %q", got, w)
				}
			}
		})
	}
}

// TestProgressLine tests the progress bar and times.
func TestProgressLine(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(tts.Status{
		State:       tts.StatePlaying,
		TotalChunks: 4,
		Progress:    25,
		Elapsed:     75 * time.Second,
		Estimated:   5 * time.Minute,
	})

	line := s.ProgressLine(60)
	if !strings.Contains(line, "25%") || !strings.Contains(line, "1:15 / 5:00") {
		t.Errorf("ProgressLine() = %q", line)
	}

	narrow := s.ProgressLine(12)
	if strings.Contains(narrow, "█") {
		t.Errorf("Narrow line should omit the bar: %q", narrow)
	}
}

// TestErrorLine tests that only user-visible errors are shown.
func TestErrorLine(t *testing.T) {
	s := NewStatusDisplay()

	s.Update(tts.Status{LastError: tts.ErrSuperseded})
	if got := s.ErrorLine(80); got != "" {
		t.Errorf("Aborts must stay silent, got %q", got)
	}

	s.Update(tts.Status{LastError: &tts.PlaybackError{Err: errors.New("boom")}})
	if got := s.ErrorLine(80); !strings.Contains(got, "Failed to play narration.") {
		t.Errorf("ErrorLine() = %q", got)
	}
}

// TestFormatDuration tests m:ss formatting.
func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{75 * time.Minute, "75:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
