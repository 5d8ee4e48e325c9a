// Package tts narrates scripts through cloud or local speech backends while
// guaranteeing that only one narration is audible at a time.
package tts

import (
	"context"
	"time"
)

// Backend is one path for turning text into audible speech.
type Backend interface {
	// Name identifies the backend in logs and status.
	Name() string

	// Prepare does everything needed before audio can be emitted, such as
	// synthesizing the chunk. It does not touch the audio output.
	Prepare(ctx context.Context, text string, opts SpeechOptions) (Utterance, error)

	// CancelAll stops every utterance this backend is emitting.
	CancelAll()
}

// Utterance is a prepared chunk of speech.
type Utterance interface {
	// Start begins emitting audio and returns without waiting for it.
	Start() error

	// Wait blocks until the audio ends. When ctx is done first, the audio
	// is stopped before Wait returns.
	Wait(ctx context.Context) error

	// Stop halts audio emission immediately.
	Stop() error
}

// Synthesizer converts text to audio data, as cloud speech services do.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, opts SpeechOptions) (*Audio, error)
}

// AudioPlayer defines the interface for audio playback.
type AudioPlayer interface {
	// Play starts playing the given audio and returns immediately.
	Play(audio *Audio) error

	// Stop halts playback and releases the current audio.
	Stop() error

	// IsPlaying returns true while audio is still being emitted.
	IsPlaying() bool

	// Err returns the error that cut the last playback short, if any.
	Err() error

	// SetVolume sets the output level between 0 and 1.
	SetVolume(volume float64) error
}

// Canceler is anything holding speech that can be silenced at once.
type Canceler interface {
	CancelAll()
}

// SpeechOptions describes how a chunk should sound.
type SpeechOptions struct {
	Voice    string  // Voice identifier or name
	Speed    float64 // Rate multiplier (1.0 = normal)
	Pitch    float64 // Pitch multiplier (1.0 = normal)
	Volume   *float64 // Output level (0.0 to 1.0), nil for the default
	Language string   // BCP 47 language tag
}

// DefaultVolume is the output level used when none is set.
const DefaultVolume = 0.8

// Level returns a volume for SpeechOptions. Zero mutes.
func Level(v float64) *float64 {
	return &v
}

// VolumeOr returns the set volume, or def when none is set.
func (o SpeechOptions) VolumeOr(def float64) float64 {
	if o.Volume == nil {
		return def
	}
	return *o.Volume
}

// DefaultSpeechOptions returns the options used when a caller sets none.
func DefaultSpeechOptions() SpeechOptions {
	return SpeechOptions{
		Speed:    1.0,
		Pitch:    1.0,
		Volume:   Level(DefaultVolume),
		Language: "en",
	}
}

// withDefaults fills zero fields from DefaultSpeechOptions.
func (o SpeechOptions) withDefaults() SpeechOptions {
	d := DefaultSpeechOptions()
	if o.Speed <= 0 {
		o.Speed = d.Speed
	}
	if o.Pitch <= 0 {
		o.Pitch = d.Pitch
	}
	if o.Volume == nil {
		o.Volume = d.Volume
	}
	if o.Language == "" {
		o.Language = d.Language
	}
	return o
}

// Audio represents generated audio data.
type Audio struct {
	Data       []byte        // Raw audio data
	Format     AudioFormat   // Audio format (PCM16, etc.)
	SampleRate int           // Sample rate in Hz
	Channels   int           // Number of audio channels
	Duration   time.Duration // Duration of the audio
}

// PCMDuration computes the duration of 16-bit PCM data.
func PCMDuration(size, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := size / (channels * 2)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// AudioFormat represents the format of audio data.
type AudioFormat int

// FormatPCM16 represents 16-bit little endian PCM audio.
const FormatPCM16 AudioFormat = iota

// Voice represents a speech voice.
type Voice struct {
	ID       string // Voice identifier
	Name     string // Human-readable name
	Language string // Language code (e.g., "en-US")
	Gender   string // Voice gender, when the platform reports one
}
