package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/narrator/tts"
)

// MockPlayer implements tts.AudioPlayer for testing. It simulates playback
// time without audio output.
type MockPlayer struct {
	mu      sync.Mutex
	current *tts.Audio
	started time.Time
	playing bool
	err     error
	volume  float64
	history []PlaybackEvent

	// Test control
	speedMultiplier float64
	playError       error
	deviceError     error
}

// PlaybackEvent records an event for testing verification.
type PlaybackEvent struct {
	Type      string
	Timestamp time.Time
	Audio     *tts.Audio
}

// NewMockPlayer creates a new mock audio player for testing.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{speedMultiplier: 1.0, volume: 1.0}
}

// Play starts playing the given audio, replacing anything already playing.
func (mp *MockPlayer) Play(audio *tts.Audio) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.playError != nil {
		return mp.playError
	}
	if audio == nil {
		return errors.New("audio data is empty")
	}

	mp.current = audio
	mp.started = time.Now()
	mp.playing = true
	mp.err = nil
	mp.record("play")
	return nil
}

// Stop halts playback.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.playing {
		mp.record("stop")
	}
	mp.playing = false
	return nil
}

// IsPlaying reports whether the simulated audio is still running.
func (mp *MockPlayer) IsPlaying() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.activeLocked()
}

// Err returns the injected device error that ended the last playback.
func (mp *MockPlayer) Err() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.err
}

func (mp *MockPlayer) activeLocked() bool {
	if !mp.playing {
		return false
	}
	if mp.deviceError != nil {
		mp.playing = false
		mp.err, mp.deviceError = mp.deviceError, nil
		mp.record("error")
		return false
	}
	if mp.positionLocked() < mp.current.Duration {
		return true
	}
	mp.playing = false
	mp.record("end")
	return false
}

// GetPosition returns the simulated playback position.
func (mp *MockPlayer) GetPosition() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if !mp.playing {
		return 0
	}
	return min(mp.positionLocked(), mp.current.Duration)
}

func (mp *MockPlayer) positionLocked() time.Duration {
	elapsed := time.Since(mp.started)
	return time.Duration(float64(elapsed) * mp.speedMultiplier)
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return errors.New("volume must be between 0.0 and 1.0")
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Volume returns the last volume set.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// SetSpeedMultiplier speeds up simulated time.
func (mp *MockPlayer) SetSpeedMultiplier(multiplier float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.speedMultiplier = multiplier
}

// InjectPlayError makes Play fail with err until cleared with nil.
func (mp *MockPlayer) InjectPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playError = err
}

// InjectDeviceError makes the current playback fail with err the next time
// IsPlaying is checked.
func (mp *MockPlayer) InjectDeviceError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.deviceError = err
}

// GetHistory returns a copy of the recorded events.
func (mp *MockPlayer) GetHistory() []PlaybackEvent {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]PlaybackEvent(nil), mp.history...)
}

func (mp *MockPlayer) record(kind string) {
	mp.history = append(mp.history, PlaybackEvent{Type: kind, Timestamp: time.Now(), Audio: mp.current})
}
