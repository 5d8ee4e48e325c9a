package engines_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/audio"
	"github.com/dgnsrekt/narrator/tts/engines"
	"github.com/dgnsrekt/narrator/tts/engines/mock"
	"github.com/dgnsrekt/narrator/tts/segment"
)

// fakeSynth returns fixed-length audio and counts calls.
type fakeSynth struct {
	mu       sync.Mutex
	calls    int
	duration time.Duration
	err      error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts tts.SpeechOptions) (*tts.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Audio{
		Data:       []byte(text),
		Format:     tts.FormatPCM16,
		SampleRate: 24000,
		Channels:   1,
		Duration:   f.duration,
	}, nil
}

func (f *fakeSynth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newCloud(t *testing.T, d time.Duration) (*engines.Cloud, *fakeSynth, *audio.MockPlayer) {
	t.Helper()
	synth := &fakeSynth{duration: d}
	player := audio.NewMockPlayer()
	mgr, err := cache.NewManager(cache.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return engines.NewCloud(synth, player, mgr), synth, player
}

// TestCloudPlaysToEnd tests a full utterance.
func TestCloudPlaysToEnd(t *testing.T) {
	cloud, _, player := newCloud(t, 30*time.Millisecond)

	u, err := cloud.Prepare(context.Background(), "Hello world.", tts.SpeechOptions{Volume: tts.Level(0.5)})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if player.IsPlaying() {
		t.Error("Player should be idle after Wait")
	}
	if player.Volume() != 0.5 {
		t.Errorf("Volume = %v, want 0.5", player.Volume())
	}
}

// TestCloudCachesChunks tests that repeated text is synthesized once.
func TestCloudCachesChunks(t *testing.T) {
	cloud, synth, _ := newCloud(t, time.Millisecond)
	opts := tts.SpeechOptions{Voice: "nova", Speed: 1}

	for range 3 {
		if _, err := cloud.Prepare(context.Background(), "Same text.", opts); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
	}
	if synth.Calls() != 1 {
		t.Errorf("Synthesize calls = %d, want 1", synth.Calls())
	}

	opts.Speed = 1.2
	_, _ = cloud.Prepare(context.Background(), "Same text.", opts)
	if synth.Calls() != 2 {
		t.Errorf("A different speed must synthesize again, calls = %d", synth.Calls())
	}
}

// TestCloudSynthesisError tests that failures surface from Prepare.
func TestCloudSynthesisError(t *testing.T) {
	boom := errors.New("quota exceeded")
	synth := &fakeSynth{err: boom}
	cloud := engines.NewCloud(synth, audio.NewMockPlayer(), nil)

	if _, err := cloud.Prepare(context.Background(), "x", tts.SpeechOptions{}); !errors.Is(err, boom) {
		t.Errorf("Expected synthesis error, got %v", err)
	}
}

// TestCloudPlayError tests that a player failure surfaces from Start.
func TestCloudPlayError(t *testing.T) {
	player := audio.NewMockPlayer()
	player.InjectPlayError(errors.New("no device"))
	cloud := engines.NewCloud(&fakeSynth{duration: time.Second}, player, nil)

	u, _ := cloud.Prepare(context.Background(), "x", tts.SpeechOptions{})
	if err := u.Start(); err == nil {
		t.Error("Expected Start to fail")
	}
}

// TestCloudWaitCancel tests that cancelling Wait silences the player.
func TestCloudWaitCancel(t *testing.T) {
	cloud, _, player := newCloud(t, time.Minute)

	u, _ := cloud.Prepare(context.Background(), "Long.", tts.SpeechOptions{})
	_ = u.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := u.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
	if player.IsPlaying() {
		t.Error("Player should be stopped")
	}
}

// TestCloudCancelAll tests that CancelAll interrupts the current utterance.
func TestCloudCancelAll(t *testing.T) {
	cloud, _, player := newCloud(t, time.Minute)

	u, _ := cloud.Prepare(context.Background(), "Long.", tts.SpeechOptions{})
	_ = u.Start()

	errc := make(chan error, 1)
	go func() { errc <- u.Wait(context.Background()) }()

	cloud.CancelAll()
	select {
	case err := <-errc:
		if err == nil {
			t.Error("Wait should report the interruption")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after CancelAll")
	}
	if player.IsPlaying() {
		t.Error("Player should be stopped")
	}
}

// TestCloudStaleStop tests that stopping a replaced utterance leaves the new
// one playing.
func TestCloudStaleStop(t *testing.T) {
	cloud, _, player := newCloud(t, time.Minute)

	first, _ := cloud.Prepare(context.Background(), "First.", tts.SpeechOptions{})
	second, _ := cloud.Prepare(context.Background(), "Second.", tts.SpeechOptions{})
	_ = first.Start()
	_ = second.Start()
	_ = first.Stop()

	if !player.IsPlaying() {
		t.Error("Second utterance should still be playing")
	}
	_ = second.Stop()
	if err := second.Start(); err == nil {
		t.Error("Start after Stop should fail")
	}
}

// TestCloudMutedVolume tests that a volume of zero is applied to the
// player.
func TestCloudMutedVolume(t *testing.T) {
	cloud, _, player := newCloud(t, 10*time.Millisecond)

	u, err := cloud.Prepare(context.Background(), "Quiet.", tts.SpeechOptions{Volume: tts.Level(0)})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if player.Volume() != 0 {
		t.Errorf("Volume = %v, want 0", player.Volume())
	}
	_ = u.Stop()
}

// TestCloudDeviceError tests that a playback failing after Start surfaces
// from Wait.
func TestCloudDeviceError(t *testing.T) {
	cloud, _, player := newCloud(t, time.Minute)

	u, _ := cloud.Prepare(context.Background(), "Long.", tts.SpeechOptions{})
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	boom := errors.New("device unplugged")
	player.InjectDeviceError(boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := u.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("Expected device error, got %v", err)
	}
}

// TestCloudDeviceErrorFallsBack tests that the controller moves to the
// fallback backend when cloud playback dies mid-chunk.
func TestCloudDeviceErrorFallsBack(t *testing.T) {
	cloud, _, player := newCloud(t, time.Minute)
	fallback := mock.New("local")
	c := tts.NewController(nil, cloud, fallback, tts.ControllerConfig{})

	done := make(chan error, 1)
	go func() {
		done <- c.Start(context.Background(), segment.Script{Text: "Hello world."}, tts.SpeechOptions{})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !player.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("cloud playback never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	player.InjectDeviceError(errors.New("device unplugged"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected the fallback to finish the narration, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("narration did not finish")
	}
	if got := fallback.Recorder().Count(mock.EventStart); got != 1 {
		t.Errorf("Expected the fallback to speak once, got %d", got)
	}
	if st := c.Status(); st.Backend != "local" {
		t.Errorf("Expected status backend local, got %q", st.Backend)
	}
}
