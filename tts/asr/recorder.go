package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/narrator/tts"
)

// ErrNoRecorder is returned when no recording program can be found.
var ErrNoRecorder = errors.New("no audio recorder found")

// RecordingName is the file name reported for recorded audio.
const RecordingName = "speech.wav"

// stopGrace is how long a recorder may take to flush after being
// interrupted.
const stopGrace = 2 * time.Second

// recorders are tried in order. Each writes 16kHz mono WAV to stdout.
var recorders = [][]string{
	{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-"},
	{"rec", "-q", "-t", "wav", "-r", "16000", "-c", "1", "-b", "16", "-"},
}

// deniedMarkers are stderr fragments that mean the microphone is not
// accessible to this process.
var deniedMarkers = []string{
	"permission denied",
	"not permitted",
	"audio open error",
	"can't open input device",
}

// Recorder captures microphone audio through an external program.
type Recorder struct {
	program     string
	args        []string
	maxDuration time.Duration
}

// NewRecorder detects a recorder, preferring cfg.RecordCommand when set.
func NewRecorder(cfg tts.ASRConfig) (*Recorder, error) {
	r := &Recorder{maxDuration: cfg.MaxDuration}

	if cfg.RecordCommand != "" {
		args, err := shellwords.NewParser().Parse(cfg.RecordCommand)
		if err != nil {
			return nil, fmt.Errorf("parse record command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("record command is empty")
		}
		r.program, r.args = args[0], args[1:]
		return r, nil
	}

	for _, cmd := range recorders {
		if path, err := exec.LookPath(cmd[0]); err == nil {
			r.program, r.args = path, cmd[1:]
			return r, nil
		}
	}
	return nil, ErrNoRecorder
}

// Record captures audio until ctx is done or the maximum duration passes.
// A cancelled context is the normal way to finish a recording.
func (r *Recorder) Record(ctx context.Context) ([]byte, error) {
	if r.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.maxDuration)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.program, r.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	log.Debug("recording", "program", r.program)
	err := cmd.Run()
	if denied(stderr.String()) {
		return nil, fmt.Errorf("%w: %s", tts.ErrMicrophoneDenied, strings.TrimSpace(stderr.String()))
	}
	if err != nil && ctx.Err() == nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", tts.ErrMicrophoneDenied, err)
		}
		return nil, tts.NewError(err, "recorder", "record").WithContext("program", r.program)
	}
	if stdout.Len() == 0 {
		return nil, &tts.TranscriptionError{Empty: true}
	}
	log.Debug("recorded audio", "bytes", stdout.Len())
	return stdout.Bytes(), nil
}

func denied(stderr string) bool {
	stderr = strings.ToLower(stderr)
	for _, m := range deniedMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}
