package local

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/engines/mock"
	"github.com/dgnsrekt/narrator/tts/segment"
)

func newCustom(t *testing.T, command string) *Backend {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	cfg := tts.DefaultLocalConfig()
	cfg.Command = command
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// TestNewCustomCommand tests that configured commands are split like a
// shell would.
func TestNewCustomCommand(t *testing.T) {
	cfg := tts.DefaultLocalConfig()
	cfg.Command = `piper --model "en us.onnx" --output-raw`
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if b.Engine() != EngineCustom || b.program != "piper" {
		t.Errorf("engine=%s program=%s", b.Engine(), b.program)
	}
	want := []string{"--model", "en us.onnx", "--output-raw"}
	if !slices.Equal(b.args, want) {
		t.Errorf("args = %q, want %q", b.args, want)
	}

	cfg.Command = `say "unterminated`
	if _, err := New(cfg); err == nil {
		t.Error("Expected a parse error")
	}
}

// TestCommandArgs tests the arguments built for each engine.
func TestCommandArgs(t *testing.T) {
	cfg := tts.LocalConfig{Rate: 1.0, Pitch: 1.0, Volume: 0.8}
	tests := []struct {
		name      string
		engine    Engine
		opts      tts.SpeechOptions
		wantArgs  []string
		wantInput string
	}{
		{
			name:      "espeak",
			engine:    EngineEspeakNG,
			opts:      tts.SpeechOptions{Speed: 1.2},
			wantArgs:  []string{"-s", "210", "-p", "50", "-a", "80", "-v", "en-us", "--stdin"},
			wantInput: "Hello.",
		},
		{
			name:      "espeak volume override",
			engine:    EngineEspeak,
			opts:      tts.SpeechOptions{Speed: 1, Volume: tts.Level(0.5)},
			wantArgs:  []string{"-s", "175", "-p", "50", "-a", "50", "-v", "en-us", "--stdin"},
			wantInput: "Hello.",
		},
		{
			name:      "say",
			engine:    EngineSay,
			opts:      tts.SpeechOptions{Speed: 1},
			wantArgs:  []string{"-r", "175", "-v", "en-us", "-f", "-"},
			wantInput: "[[volm 0.80]] [[pbas +0]] Hello.",
		},
		{
			name:      "espeak muted",
			engine:    EngineEspeakNG,
			opts:      tts.SpeechOptions{Speed: 1, Volume: tts.Level(0)},
			wantArgs:  []string{"-s", "175", "-p", "50", "-a", "0", "-v", "en-us", "--stdin"},
			wantInput: "Hello.",
		},
		{
			name:      "say muted",
			engine:    EngineSay,
			opts:      tts.SpeechOptions{Speed: 1, Volume: tts.Level(0)},
			wantArgs:  []string{"-r", "175", "-v", "en-us", "-f", "-"},
			wantInput: "[[volm 0.00]] [[pbas +0]] Hello.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{engine: tt.engine, cfg: cfg}
			args, input := b.command("Hello.", "en-us", tt.opts)
			if !slices.Equal(args, tt.wantArgs) {
				t.Errorf("args = %q, want %q", args, tt.wantArgs)
			}
			if input != tt.wantInput {
				t.Errorf("input = %q, want %q", input, tt.wantInput)
			}
		})
	}
}

// TestParseSayVoices tests parsing of say -v ? output.
func TestParseSayVoices(t *testing.T) {
	out := []byte("Alex                en_US    # Most people recognize me by my voice.\n" +
		"Bad News            en_US    # The light you see at the end of the tunnel.\n" +
		"Amelie              fr_CA    # Bonjour, je m'appelle Amelie.\n\n")

	voices := parseSayVoices(out)
	if len(voices) != 3 {
		t.Fatalf("len = %d, want 3", len(voices))
	}
	if voices[1].Name != "Bad News" || voices[1].Language != "en-US" {
		t.Errorf("Unexpected voice: %+v", voices[1])
	}
}

// TestParseEspeakVoices tests parsing of the espeak voice table.
func TestParseEspeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-us            --/F      English_(America)  gmw/en-US            (en 3)
`)
	voices := parseEspeakVoices(out)
	if len(voices) != 2 {
		t.Fatalf("len = %d, want 2", len(voices))
	}
	v := voices[1]
	if v.ID != "en-us" || v.Gender != "female" || v.Name != "English (America)" {
		t.Errorf("Unexpected voice: %+v", v)
	}
}

// TestUtteranceRunsToExit tests that an utterance ends when its process
// exits.
func TestUtteranceRunsToExit(t *testing.T) {
	b := newCustom(t, "cat")

	u, err := b.Prepare(context.Background(), "Hello.", tts.SpeechOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.Wait(ctx); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

// TestUtteranceStop tests that Stop kills the process and Wait reports it.
func TestUtteranceStop(t *testing.T) {
	b := newCustom(t, "sleep 30")

	u, _ := b.Prepare(context.Background(), "x", tts.SpeechOptions{})
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- u.Wait(context.Background()) }()

	if err := u.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, errStopped) {
			t.Errorf("Wait = %v, want errStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}
	if err := u.Start(); err == nil {
		t.Error("Start after Stop should fail")
	}
}

// TestStopBeforeStart tests that an unstarted utterance can be stopped.
func TestStopBeforeStart(t *testing.T) {
	b := newCustom(t, "sleep 30")

	u, _ := b.Prepare(context.Background(), "x", tts.SpeechOptions{})
	_ = u.Stop()
	if err := u.Start(); !errors.Is(err, errStopped) {
		t.Errorf("Start = %v, want errStopped", err)
	}
}

// TestCancelAll tests that every running utterance is killed.
func TestCancelAll(t *testing.T) {
	b := newCustom(t, "sleep 30")

	var us []tts.Utterance
	for range 2 {
		u, _ := b.Prepare(context.Background(), "x", tts.SpeechOptions{})
		if err := u.Start(); err != nil {
			t.Fatal(err)
		}
		us = append(us, u)
	}

	b.CancelAll()

	for i, u := range us {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := u.Wait(ctx)
		cancel()
		if !errors.Is(err, errStopped) {
			t.Errorf("utterance %d: Wait = %v, want errStopped", i, err)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.active) != 0 {
		t.Errorf("active = %d, want 0", len(b.active))
	}
}

// TestWaitContextCancel tests that a cancelled wait kills the process.
func TestWaitContextCancel(t *testing.T) {
	b := newCustom(t, "sleep 30")

	u, _ := b.Prepare(context.Background(), "x", tts.SpeechOptions{})
	_ = u.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := u.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

// TestConfiguredVoice tests that the configured voice beats the heuristic.
func TestConfiguredVoice(t *testing.T) {
	b := &Backend{engine: EngineCustom, cfg: tts.LocalConfig{Voice: "Samantha"}}
	if got := b.defaultVoice(context.Background()); got != "Samantha" {
		t.Errorf("defaultVoice = %q, want Samantha", got)
	}
}

// fakeEspeak is an espeak-ng stand-in offering two voices and refusing any
// other, like the real program does.
const fakeEspeak = `#!/bin/sh
if [ "$1" = "--voices" ]; then
	echo "Pty Language       Age/Gender VoiceName          File                 Other Languages"
	echo " 5  af              --/M      Afrikaans          gmw/af"
	echo " 2  en-us           --/F      English_(America)  gmw/en-US            (en 3)"
	exit 0
fi
voice=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-v" ]; then
		voice="$2"
	fi
	shift
done
case "$voice" in
"" | af | en-us)
	cat >/dev/null
	;;
*)
	echo "Failed to read voice '$voice'" >&2
	exit 1
	;;
esac
`

func newFakeEspeak(t *testing.T) *Backend {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "espeak-ng")
	if err := os.WriteFile(path, []byte(fakeEspeak), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	return &Backend{
		engine:  EngineEspeakNG,
		program: path,
		cfg:     tts.LocalConfig{Rate: 1, Pitch: 1, Volume: 0.8},
		active:  make(map[*utterance]struct{}),
	}
}

// TestResolveVoice tests that only installed voices reach the synthesizer.
func TestResolveVoice(t *testing.T) {
	b := newFakeEspeak(t)

	tests := []struct {
		requested string
		want      string
	}{
		{"", "en-us"},
		{"af", "af"},
		{"Afrikaans", "af"},
		{"EN-US", "en-us"},
		{"nova", "en-us"},
		{"alloy", "en-us"},
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			if got := b.resolveVoice(context.Background(), tt.requested); got != tt.want {
				t.Errorf("resolveVoice(%q) = %q, want %q", tt.requested, got, tt.want)
			}
		})
	}
}

// TestCloudVoiceOnFallback tests that a cloud voice name does not break
// narration when the local backend takes over.
func TestCloudVoiceOnFallback(t *testing.T) {
	fallback := newFakeEspeak(t)
	primary := mock.New("openai")
	primary.SetFailure(errors.New("quota exceeded"))
	c := tts.NewController(nil, primary, fallback, tts.ControllerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.Start(ctx, segment.Script{Text: "Hello world."}, tts.SpeechOptions{Voice: "nova"})
	if err != nil {
		t.Fatalf("Expected the fallback to narrate, got %v", err)
	}
	if st := c.Status(); !st.Fallback || st.Backend != "local" {
		t.Errorf("Expected narration on the local fallback, got %+v", st)
	}
}
