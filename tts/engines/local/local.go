// Package local speaks through a speech synthesizer installed on the
// machine: say on macOS, espeak-ng or espeak elsewhere, or a configured
// command.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/narrator/tts"
)

// ErrNoEngine is returned when no local synthesizer can be found.
var ErrNoEngine = errors.New("no local speech engine found")

// errStopped is returned by Wait when an utterance was stopped early.
var errStopped = errors.New("local utterance stopped")

// Engine names a supported synthesizer program.
type Engine string

const (
	EngineSay      Engine = "say"
	EngineEspeakNG Engine = "espeak-ng"
	EngineEspeak   Engine = "espeak"
	EngineCustom   Engine = "custom"
)

// Base speaking rates in words per minute at rate 1.0.
const (
	sayWPM    = 175
	espeakWPM = 175
)

// Ensure Backend implements the tts.Backend interface.
var _ tts.Backend = (*Backend)(nil)

// Backend implements tts.Backend by running one synthesizer process per
// utterance. The end of an utterance is the exit of its process.
type Backend struct {
	engine  Engine
	program string
	args    []string // Fixed arguments of a custom command
	cfg     tts.LocalConfig

	voiceOnce sync.Once
	voice     string

	listMu sync.Mutex
	listed []tts.Voice // Installed voices, nil until listed

	mu     sync.Mutex
	active map[*utterance]struct{}
}

// New detects a synthesizer, preferring cfg.Command when set.
func New(cfg tts.LocalConfig) (*Backend, error) {
	b := &Backend{cfg: cfg, active: make(map[*utterance]struct{})}

	if cfg.Command != "" {
		args, err := shellwords.NewParser().Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse local speech command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("local speech command is empty")
		}
		b.engine, b.program, b.args = EngineCustom, args[0], args[1:]
		return b, nil
	}

	candidates := []Engine{EngineEspeakNG, EngineEspeak}
	if runtime.GOOS == "darwin" {
		candidates = append([]Engine{EngineSay}, candidates...)
	}
	for _, e := range candidates {
		if path, err := exec.LookPath(string(e)); err == nil {
			b.engine, b.program = e, path
			log.Debug("local speech engine", "engine", e, "path", path)
			return b, nil
		}
	}
	return nil, ErrNoEngine
}

// Name implements tts.Backend.
func (b *Backend) Name() string {
	return "local"
}

// Engine returns the detected synthesizer.
func (b *Backend) Engine() Engine {
	return b.engine
}

// Prepare implements tts.Backend. It only builds the command; nothing runs
// until Start.
func (b *Backend) Prepare(ctx context.Context, text string, opts tts.SpeechOptions) (tts.Utterance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args, input := b.command(text, b.resolveVoice(ctx, opts.Voice), opts)

	return &utterance{
		backend: b,
		cmd:     exec.Command(b.program, args...),
		input:   input,
		done:    make(chan struct{}),
	}, nil
}

// CancelAll implements tts.Backend.
func (b *Backend) CancelAll() {
	b.mu.Lock()
	active := make([]*utterance, 0, len(b.active))
	for u := range b.active {
		active = append(active, u)
	}
	b.mu.Unlock()

	for _, u := range active {
		_ = u.Stop()
	}
}

// resolveVoice returns the installed voice for a requested one. Requests
// the synthesizer cannot honour, such as a cloud voice carried over to the
// fallback, give way to the default voice.
func (b *Backend) resolveVoice(ctx context.Context, requested string) string {
	if requested == "" || b.engine == EngineCustom {
		return b.defaultVoice(ctx)
	}
	voices, err := b.installedVoices(ctx)
	if err != nil {
		log.Debug("listing local voices", "error", err)
		return b.defaultVoice(ctx)
	}
	for _, v := range voices {
		if strings.EqualFold(v.ID, requested) || strings.EqualFold(v.Name, requested) {
			return v.ID
		}
	}
	log.Debug("voice not installed, using default", "voice", requested)
	return b.defaultVoice(ctx)
}

// installedVoices lists the synthesizer's voices once. Failed listings are
// retried on the next call.
func (b *Backend) installedVoices(ctx context.Context) ([]tts.Voice, error) {
	b.listMu.Lock()
	defer b.listMu.Unlock()
	if b.listed != nil {
		return b.listed, nil
	}
	voices, err := b.Voices(ctx)
	if err != nil {
		return nil, err
	}
	b.listed = append([]tts.Voice{}, voices...)
	return b.listed, nil
}

// defaultVoice resolves the configured voice once, falling back to the
// voice heuristic.
func (b *Backend) defaultVoice(ctx context.Context) string {
	b.voiceOnce.Do(func() {
		if b.cfg.Voice != "" {
			b.voice = b.cfg.Voice
			return
		}
		voices, err := b.installedVoices(ctx)
		if err != nil {
			log.Debug("listing local voices", "error", err)
			return
		}
		if v, ok := tts.SelectVoice(voices, tts.DefaultVoicePreferences); ok {
			log.Debug("selected local voice", "voice", v.Name)
			b.voice = v.ID
		}
	})
	return b.voice
}

// command returns the arguments and stdin for speaking text.
func (b *Backend) command(text, voice string, opts tts.SpeechOptions) ([]string, string) {
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	rate := b.cfg.Rate * speed
	volume := opts.VolumeOr(b.cfg.Volume)
	pitch := b.cfg.Pitch
	if opts.Pitch > 0 {
		pitch *= opts.Pitch
	}

	switch b.engine {
	case EngineSay:
		args := []string{"-r", strconv.Itoa(round(sayWPM * rate))}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		// say has no volume or pitch flags; embedded commands carry them.
		input := fmt.Sprintf("[[volm %.2f]] [[pbas %+d]] %s", volume, round((pitch-1)*20), text)
		return append(args, "-f", "-"), input

	case EngineEspeakNG, EngineEspeak:
		args := []string{
			"-s", strconv.Itoa(round(espeakWPM * rate)),
			"-p", strconv.Itoa(clamp(round(50*pitch), 0, 99)),
			"-a", strconv.Itoa(clamp(round(100*volume), 0, 200)),
		}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return append(args, "--stdin"), text

	default:
		return append([]string(nil), b.args...), text
	}
}

// Voices lists the voices the synthesizer offers. Custom commands offer
// none.
func (b *Backend) Voices(ctx context.Context) ([]tts.Voice, error) {
	var args []string
	switch b.engine {
	case EngineSay:
		args = []string{"-v", "?"}
	case EngineEspeakNG, EngineEspeak:
		args = []string{"--voices"}
	default:
		return nil, nil
	}

	out, err := exec.CommandContext(ctx, b.program, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("listing %s voices: %w", b.engine, err)
	}
	if b.engine == EngineSay {
		return parseSayVoices(out), nil
	}
	return parseEspeakVoices(out), nil
}

// parseSayVoices parses lines like
// "Samantha            en_US    # Hello, my name is Samantha.".
func parseSayVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(string(out), "\n") {
		line, _, _ = strings.Cut(line, "#")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		lang := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Language: strings.ReplaceAll(lang, "_", "-"),
		})
	}
	return voices
}

// parseEspeakVoices parses the table printed by --voices:
// "Pty Language Age/Gender VoiceName File Other Languages".
func parseEspeakVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	for i, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 5 {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch g {
			case "M":
				gender = "male"
			case "F":
				gender = "female"
			}
		}
		voices = append(voices, tts.Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}

func round(f float64) int {
	return int(math.Round(f))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

type utterance struct {
	backend *Backend
	cmd     *exec.Cmd
	input   string

	once    sync.Once
	done    chan struct{}
	err     error
	stopped bool
}

// Start implements tts.Utterance.
func (u *utterance) Start() error {
	b := u.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-u.done:
		return errStopped
	default:
	}

	var stderr bytes.Buffer
	u.cmd.Stdin = strings.NewReader(u.input)
	u.cmd.Stderr = &stderr
	if err := u.cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", b.engine, err)
	}
	b.active[u] = struct{}{}

	go func() {
		err := u.cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		u.finish(err, false)
	}()
	return nil
}

// Wait implements tts.Utterance.
func (u *utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		u.backend.mu.Lock()
		defer u.backend.mu.Unlock()
		if u.stopped {
			return errStopped
		}
		return u.err
	case <-ctx.Done():
		_ = u.Stop()
		return ctx.Err()
	}
}

// Stop implements tts.Utterance.
func (u *utterance) Stop() error {
	b := u.backend
	b.mu.Lock()
	_, running := b.active[u]
	if running {
		u.stopped = true
		if err := u.cmd.Process.Kill(); err != nil {
			log.Debug("killing local speech", "error", err)
		}
	}
	b.mu.Unlock()

	if running {
		<-u.done
		return nil
	}
	u.finish(nil, true)
	return nil
}

func (u *utterance) finish(err error, stopped bool) {
	u.once.Do(func() {
		b := u.backend
		b.mu.Lock()
		delete(b.active, u)
		u.err = err
		if stopped {
			u.stopped = true
		}
		b.mu.Unlock()
		close(u.done)
	})
}
