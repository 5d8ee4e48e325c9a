// Package ui provides the interactive narration player.
package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/segment"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#5A56E0")).Padding(0, 1)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

// Narrator is the part of tts.Controller the player drives.
type Narrator interface {
	Start(ctx context.Context, script segment.Script, opts tts.SpeechOptions) error
	Restart(ctx context.Context) error
	Pause()
	Resume()
	Stop()
	JumpToSegment(index int) error
	SetSpeed(speed float64) error
	SetVolume(volume float64) error
	State() tts.StateType
	Status() tts.Status
	Segments() []segment.Segment
}

// ReloadMsg replaces the narrated script and starts it from the top.
type ReloadMsg struct {
	Script segment.Script
}

type statusMsg tts.Status

type doneMsg struct {
	gen int
	err error
}

type noticeMsg string

type model struct {
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
	narrator Narrator
	script   segment.Script
	opts     tts.SpeechOptions
	reload   <-chan segment.Script

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	status  *StatusDisplay

	segments []segment.Segment
	width    int
	gen      int
	finished bool
	quitting bool
	notice   string
	err      error
}

// NewProgram creates the player program. Scripts received on reload restart
// narration with the new text.
func NewProgram(ctx context.Context, cfg Config, n Narrator, script segment.Script, opts tts.SpeechOptions, reload <-chan segment.Script) *tea.Program {
	log.Debug("Starting player", "path", cfg.Path, "watch", cfg.Watch)
	m := newModel(ctx, cfg, n, script, opts, reload)

	var progOpts []tea.ProgramOption
	if cfg.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	if cfg.InputTTY {
		progOpts = append(progOpts, tea.WithInputTTY())
	}
	return tea.NewProgram(m, progOpts...)
}

// Run runs the player until narration ends or the user stops it, and
// returns the narration error, if any.
func Run(ctx context.Context, cfg Config, n Narrator, script segment.Script, opts tts.SpeechOptions, reload <-chan segment.Script) error {
	final, err := NewProgram(ctx, cfg, n, script, opts, reload).Run()
	if err != nil {
		return fmt.Errorf("unable to run player: %w", err)
	}
	if m, ok := final.(model); ok {
		return m.err
	}
	return nil
}

func newModel(ctx context.Context, cfg Config, n Narrator, script segment.Script, opts tts.SpeechOptions, reload <-chan segment.Script) model {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	ctx, cancel := context.WithCancel(ctx)
	return model{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		narrator: n,
		script:   script,
		opts:     opts,
		reload:   reload,
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  sp,
		status:   NewStatusDisplay(),
		width:    80,
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	script, opts := m.script, m.opts
	return tea.Batch(
		m.narrate(func(ctx context.Context) error { return m.narrator.Start(ctx, script, opts) }),
		m.tick(),
		m.spinner.Tick,
		waitForReload(m.reload),
	)
}

// narrate runs fn as narration generation m.gen.
func (m model) narrate(fn func(ctx context.Context) error) tea.Cmd {
	gen, ctx := m.gen, m.ctx
	return func() tea.Msg {
		return doneMsg{gen: gen, err: fn(ctx)}
	}
}

func (m model) tick() tea.Cmd {
	n := m.narrator
	return tea.Tick(time.Duration(m.cfg.TickInterval)*time.Millisecond, func(time.Time) tea.Msg {
		return statusMsg(n.Status())
	})
}

func waitForReload(ch <-chan segment.Script) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		script, ok := <-ch
		if !ok {
			return nil
		}
		return ReloadMsg{Script: script}
	}
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.cfg.MaxWidth > 0 && m.width > m.cfg.MaxWidth {
			m.width = m.cfg.MaxWidth
		}
		m.help.Width = m.width

	case statusMsg:
		m.status.Update(tts.Status(msg))
		if m.segments == nil {
			m.segments = m.narrator.Segments()
		}
		return m, m.tick()

	case doneMsg:
		if msg.gen != m.gen {
			// Superseded by a restart or reload.
			return m, nil
		}
		m.finished = true
		m.status.Update(m.narrator.Status())
		if tts.IsUserVisible(msg.err) {
			m.err = msg.err
			log.Error("Narration failed", "error", msg.err)
		} else if msg.err != nil {
			log.Debug("Narration ended", "reason", msg.err)
		}
		if m.quitting || !m.cfg.Watch {
			return m, tea.Quit
		}

	case ReloadMsg:
		log.Debug("Reloading script", "path", m.cfg.Path)
		m.script = msg.Script
		m.segments = nil
		m.finished = false
		m.err = nil
		m.notice = "Reloaded " + m.cfg.Path
		m.gen++
		script, opts := m.script, m.opts
		n := m.narrator
		return m, tea.Batch(
			m.narrate(func(ctx context.Context) error {
				n.Stop()
				return n.Start(ctx, script, opts)
			}),
			waitForReload(m.reload),
		)

	case noticeMsg:
		m.notice = string(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := m.narrator
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		// A narration that has not reached Start yet sees the cancelled
		// context and never begins.
		m.cancel()
		if m.finished {
			return m, tea.Quit
		}
		n.Stop()

	case key.Matches(msg, m.keys.Pause):
		if n.State() == tts.StatePaused {
			n.Resume()
		} else {
			n.Pause()
		}

	case key.Matches(msg, m.keys.Restart):
		m.gen++
		m.finished = false
		m.err = nil
		m.notice = ""
		return m, m.narrate(n.Restart)

	case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Prev):
		delta := 1
		if key.Matches(msg, m.keys.Prev) {
			delta = -1
		}
		target := n.Status().Segment + delta
		if err := n.JumpToSegment(target); err != nil {
			log.Debug("Ignoring segment jump", "segment", target, "error", err)
		}

	case key.Matches(msg, m.keys.Faster), key.Matches(msg, m.keys.Slower):
		step := speedStep
		if key.Matches(msg, m.keys.Slower) {
			step = -speedStep
		}
		speed := clamp(m.opts.Speed+step, tts.MinSpeed, tts.MaxSpeed)
		if err := n.SetSpeed(speed); err != nil {
			return m, notice(err.Error())
		}
		m.opts.Speed = speed
		return m, notice(fmt.Sprintf("Speed %.1f× from the next chunk", speed))

	case key.Matches(msg, m.keys.Louder), key.Matches(msg, m.keys.Quieter):
		step := volumeStep
		if key.Matches(msg, m.keys.Quieter) {
			step = -volumeStep
		}
		volume := clamp(m.opts.VolumeOr(tts.DefaultVolume)+step, 0, 1)
		if err := n.SetVolume(volume); err != nil {
			return m, notice(err.Error())
		}
		m.opts.Volume = tts.Level(volume)
		return m, notice(fmt.Sprintf("Volume %.0f%% from the next chunk", volume*100))

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func notice(s string) tea.Cmd {
	return func() tea.Msg { return noticeMsg(s) }
}

// View implements tea.Model.
func (m model) View() string {
	var b strings.Builder

	title := m.script.Title
	if title == "" {
		title = "Narrator"
	}
	b.WriteString(titleStyle.Render(truncate.StringWithTail(title, uint(max(m.width-2, 4)), "…")) + "\n\n") //nolint:gosec

	st := m.status.Status()
	line := m.status.CompactStatus()
	if st.State == tts.StateLoading {
		line = m.spinner.View() + line
	}
	b.WriteString(line + "\n")
	b.WriteString(m.status.ProgressLine(m.width) + "\n\n")

	b.WriteString(m.segmentList(st.Segment))

	if e := m.status.ErrorLine(m.width); e != "" && m.err != nil {
		b.WriteString("\n" + e + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	if m.finished && m.cfg.Watch && !m.quitting {
		b.WriteString("\n" + subtleStyle.Render("Waiting for changes…") + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

// segmentList renders segment titles with the current one highlighted.
func (m model) segmentList(current int) string {
	if len(m.segments) == 0 {
		return ""
	}
	titleWidth := 0
	for _, s := range m.segments {
		titleWidth = max(titleWidth, runewidth.StringWidth(s.Title))
	}
	titleWidth = min(titleWidth, max(m.width-24, 10))

	var b strings.Builder
	for i, s := range m.segments {
		title := runewidth.FillRight(runewidth.Truncate(s.Title, titleWidth, "…"), titleWidth)
		row := fmt.Sprintf("%2d. %s  %s", i+1, title, s.Label)
		if i == current {
			b.WriteString(currentStyle.Render("› "+row) + "\n")
			continue
		}
		b.WriteString("  " + subtleStyle.Render(row) + "\n")
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	return math.Round(min(max(v, lo), hi)*10) / 10
}
