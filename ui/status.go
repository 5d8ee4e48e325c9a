package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/narrator/tts"
)

// StatusDisplay renders a narration status snapshot.
type StatusDisplay struct {
	status tts.Status
	bar    progress.Model
}

// NewStatusDisplay creates a new status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Update replaces the displayed status.
func (s *StatusDisplay) Update(status tts.Status) {
	s.status = status
}

// Status returns the displayed status.
func (s *StatusDisplay) Status() tts.Status {
	return s.status
}

// CompactStatus returns a one-line status for the header.
func (s *StatusDisplay) CompactStatus() string {
	st := s.status
	if st.State == tts.StateIdle {
		return ""
	}

	status := lipgloss.NewStyle().Foreground(stateColor(st.State)).
		Render(fmt.Sprintf("%s %s", stateIcon(st.State), capitalize(st.State.String())))

	if st.TotalChunks > 0 {
		status += subtleStyle.Render(fmt.Sprintf("  chunk %d/%d", st.Chunk+1, st.TotalChunks))
	}
	if st.Backend != "" {
		backend := st.Backend
		if st.Fallback {
			backend += " (fallback)"
		}
		status += subtleStyle.Render("  " + backend)
	}
	return status
}

// ProgressLine returns the progress bar followed by elapsed and estimated
// time.
func (s *StatusDisplay) ProgressLine(width int) string {
	st := s.status
	times := fmt.Sprintf(" %3.0f%%  %s / %s", st.Progress, formatDuration(st.Elapsed), formatDuration(st.Estimated))
	barWidth := width - len(times)
	if st.TotalChunks == 0 || barWidth < 10 {
		return strings.TrimLeft(times, " ")
	}
	s.bar.Width = barWidth
	return s.bar.ViewAs(st.Progress/100) + subtleStyle.Render(times)
}

// ErrorLine returns the user-facing error, if any.
func (s *StatusDisplay) ErrorLine(width int) string {
	msg := tts.UserMessage(s.status.LastError)
	if msg == "" {
		return ""
	}
	if width > 3 {
		msg = truncate.StringWithTail(msg, uint(width), "...") //nolint:gosec
	}
	return errorStyle.Render(msg)
}

func stateColor(state tts.StateType) lipgloss.Color {
	switch state {
	case tts.StatePlaying:
		return lipgloss.Color("#04B575")
	case tts.StatePaused:
		return lipgloss.Color("#ECFD65")
	case tts.StateLoading:
		return lipgloss.Color("#00AAFF")
	case tts.StateFailed:
		return lipgloss.Color("#FF5F87")
	case tts.StateStopped:
		return lipgloss.Color("#FF8800")
	default:
		return lipgloss.Color("#888888")
	}
}

func stateIcon(state tts.StateType) string {
	switch state {
	case tts.StatePlaying:
		return "▶"
	case tts.StatePaused:
		return "⏸"
	case tts.StateLoading:
		return "⟳"
	case tts.StateCompleted:
		return "✓"
	case tts.StateFailed:
		return "✗"
	case tts.StateStopped:
		return "◼"
	default:
		return "○"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatDuration formats a duration as m:ss.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
