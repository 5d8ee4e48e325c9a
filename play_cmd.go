package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/segment"
	"github.com/dgnsrekt/narrator/ui"
)

var (
	playTitle    string
	playDuration time.Duration
	playVoice    string
	playSpeed    float64
	playVolume   float64
	playWatch    bool
	playStats    bool
	playPlain    bool
	playWidth    uint

	playCmd = &cobra.Command{
		Use:   "play [FILE|-]",
		Short: "Narrate a script",
		Long: paragraph(fmt.Sprintf("\n%s a script through the configured speech backend. "+
			"Press space to pause, n and b to move between segments, r to restart and q to stop.", keyword("Narrate"))),
		Example: paragraph("narrator play script.md\ncat notes.txt | narrator play\nnarrator play --watch --stats script.md"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().StringVar(&playTitle, "title", "", "narration title (default: first heading or file name)")
	playCmd.Flags().DurationVar(&playDuration, "duration", 0, "intended length of the narration")
	playCmd.Flags().StringVar(&playVoice, "voice", "", "voice name or id")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 0, fmt.Sprintf("speech rate multiplier (%.1f-%.1f)", tts.MinSpeed, tts.MaxSpeed))
	playCmd.Flags().Float64Var(&playVolume, "volume", -1, "output level (0.0-1.0)")
	playCmd.Flags().BoolVarP(&playWatch, "watch", "W", false, "restart narration when the file changes")
	playCmd.Flags().BoolVar(&playStats, "stats", false, "print narration metrics on exit")
	playCmd.Flags().BoolVar(&playPlain, "plain", false, "print progress lines instead of the interactive player")
	playCmd.Flags().UintVarP(&playWidth, "width", "w", 0, "maximum player width (0 uses the terminal width)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := sourceFromArgs(args)
	if err != nil {
		return err
	}
	script, err := src.script(playTitle, playDuration)
	if err != nil {
		return err
	}

	opts, err := playOptions(cmd, cfg)
	if err != nil {
		return err
	}

	var stats *observe.Stats
	metrics := observe.DefaultMetrics()
	if playStats {
		stats, err = observe.NewStats()
		if err != nil {
			return fmt.Errorf("unable to set up metrics: %w", err)
		}
		metrics = stats.Metrics
	}

	be, err := newBackends(cfg, metrics)
	if err != nil {
		return err
	}
	defer be.Close() //nolint:errcheck

	arbiter := tts.NewArbiter(be.cancelers()...)
	ctrl := tts.NewController(arbiter, be.primary, be.fallback, cfg.ToControllerConfig())
	ctrl.SetMetrics(metrics)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopOnSignal(ctx, cancel, arbiter)

	var reload <-chan segment.Script
	if playWatch {
		if src.path == "" {
			return fmt.Errorf("--watch needs a file, not stdin")
		}
		reload, err = watchScript(ctx, src.path, playTitle, playDuration)
		if err != nil {
			return err
		}
	}

	if interactive() {
		uiCfg, perr := env.ParseAs[ui.Config]()
		if perr != nil {
			return fmt.Errorf("error parsing config: %v", perr)
		}
		uiCfg.Path = src.path
		uiCfg.Watch = playWatch
		uiCfg.MaxWidth = int(playWidth) //nolint:gosec
		uiCfg.InputTTY = src.path == ""
		err = ui.Run(ctx, uiCfg, ctrl, script, opts, reload)
	} else {
		err = runPlain(ctx, os.Stderr, ctrl, script, opts, reload)
	}

	if stats != nil {
		if serr := printStats(os.Stderr, stats, be.cache); serr != nil {
			log.Warn("Could not print stats", "error", serr)
		}
	}
	if tts.IsAborted(err) {
		log.Debug("Narration aborted", "reason", err)
		return nil
	}
	return err
}

// playOptions applies command line overrides to the configured speech
// options.
func playOptions(cmd *cobra.Command, cfg tts.Config) (tts.SpeechOptions, error) {
	opts := cfg.SpeechOptions()
	if playVoice != "" {
		opts.Voice = playVoice
	}
	if cmd.Flags().Changed("speed") {
		if playSpeed < tts.MinSpeed || playSpeed > tts.MaxSpeed {
			return opts, fmt.Errorf("%w: speed must be between %.1f and %.1f", tts.ErrInvalidConfig, tts.MinSpeed, tts.MaxSpeed)
		}
		opts.Speed = playSpeed
	}
	if cmd.Flags().Changed("volume") {
		if playVolume < 0 || playVolume > 1 {
			return opts, fmt.Errorf("%w: volume must be between 0 and 1", tts.ErrInvalidConfig)
		}
		opts.Volume = tts.Level(playVolume)
	}
	return opts, nil
}

func interactive() bool {
	return !playPlain && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
}

// stopOnSignal silences all narration on SIGINT or SIGTERM.
func stopOnSignal(ctx context.Context, cancel context.CancelFunc, arbiter *tts.Arbiter) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			log.Debug("Stopping narration", "signal", sig)
			arbiter.GlobalCleanup()
			cancel()
		case <-ctx.Done():
		}
	}()
}

// runPlain narrates without the interactive player, printing segment
// changes and a progress line.
func runPlain(ctx context.Context, w io.Writer, ctrl *tts.Controller, script segment.Script, opts tts.SpeechOptions, reload <-chan segment.Script) error {
	line := newStatusLine(w)
	ctrl.OnSegmentChange(func(index int) {
		segments := ctrl.Segments()
		if index < 0 || index >= len(segments) {
			return
		}
		s := segments[index]
		line.println(fmt.Sprintf("%s %s %s", keyword(fmt.Sprintf("%d.", index+1)), s.Title, faint(s.Label)))
	})
	ctrl.OnProgress(func(percent float64) {
		st := ctrl.Status()
		line.print(fmt.Sprintf("%3.0f%%  chunk %d/%d  %s", percent, st.Chunk+1, st.TotalChunks, st.Backend))
	})
	ctrl.OnStateChange(func(state tts.StateType) {
		log.Debug("Narration state", "state", state)
		if state == tts.StatePaused || state == tts.StateFailed {
			line.println(state.String())
		}
	})
	ctrl.OnChunkStart(func(index, total int) {
		log.Debug("Chunk started", "chunk", index+1, "total", total)
	})

	next := make(chan segment.Script, 1)
	if reload != nil {
		go func() {
			for s := range reload {
				select {
				case <-next:
				default:
				}
				next <- s
				ctrl.Stop()
			}
		}()
	}

	for {
		err := ctrl.Start(ctx, script, opts)
		line.done()
		if reload == nil {
			return err
		}
		if tts.IsUserVisible(err) {
			line.println(errorStyle(errorMessage(err)))
		}
		select {
		case script = <-next:
			line.println(faint("Reloaded " + script.Title))
		case <-ctx.Done():
			return nil
		}
	}
}

// statusLine rewrites a single terminal line in place.
type statusLine struct {
	out   *termenv.Output
	tty   bool
	width int
	dirty bool
}

func newStatusLine(w io.Writer) *statusLine {
	l := &statusLine{out: termenv.NewOutput(w), width: 80}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
		l.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 { //nolint:gosec
			l.width = width
		}
	}
	return l
}

// print replaces the status line. Without a terminal it does nothing.
func (l *statusLine) print(s string) {
	if !l.tty {
		return
	}
	l.out.ClearLine()
	fmt.Fprint(l.out, "\r"+runewidth.Truncate(s, l.width-1, "…"))
	l.dirty = true
}

// println writes a permanent line above the status line.
func (l *statusLine) println(s string) {
	l.done()
	fmt.Fprintln(l.out, s)
}

// done ends the status line.
func (l *statusLine) done() {
	if l.dirty {
		l.out.ClearLine()
		fmt.Fprint(l.out, "\r")
		l.dirty = false
	}
}

// printStats prints the metrics recorded during the session and the cache
// state.
func printStats(w io.Writer, stats *observe.Stats, c *cache.Manager) error {
	ctx := context.Background()
	defer stats.Shutdown(ctx) //nolint:errcheck

	series, err := stats.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, s := range series {
		value := humanize.Comma(int64(s.Value))
		if s.Count > 0 {
			value = fmt.Sprintf("%s samples, %.2fs total", humanize.Comma(int64(s.Count)), s.Value) //nolint:gosec
		}
		fmt.Fprintf(w, "%s %s %s\n", keyword(s.Name), faint(s.Labels), value)
	}

	if c == nil {
		return nil
	}
	tiers := c.Stats()
	for _, tier := range []cache.Tier{cache.TierMemory, cache.TierDisk} {
		st, ok := tiers[tier]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s %s items, %s of %s, %.0f%% hits\n",
			keyword("cache."+string(tier)),
			humanize.Comma(int64(st.Items)),
			humanize.IBytes(uint64(st.Size)),     //nolint:gosec
			humanize.IBytes(uint64(st.Capacity)), //nolint:gosec
			st.HitRate()*100)
	}
	return nil
}
