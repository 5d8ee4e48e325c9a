package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dgnsrekt/narrator/tts"
)

// TestErrorMessage tests what the user sees for command errors.
func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "playback",
			err:  &tts.PlaybackError{Chunk: 2, Backends: []string{"openai"}, Err: errors.New("device busy")},
			want: "Failed to play narration.",
		},
		{
			name: "transcription",
			err:  &tts.TranscriptionError{Err: errors.New("503")},
			want: "Failed to transcribe audio, please type instead.",
		},
		{
			name: "microphone",
			err:  fmt.Errorf("%w: arecord", tts.ErrMicrophoneDenied),
			want: "Microphone access denied.",
		},
		{
			name: "empty script",
			err:  tts.ErrEmptyInput,
			want: "There is nothing to narrate.",
		},
		{
			name: "other",
			err:  errors.New("unable to open file"),
			want: "unable to open file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(tt.err); got != tt.want {
				t.Errorf("errorMessage(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

// TestPlayOptions tests command line overrides of speech options.
func TestPlayOptions(t *testing.T) {
	reset := func() {
		playVoice, playSpeed, playVolume = "", 0, -1
		for _, name := range []string{"speed", "volume"} {
			playCmd.Flags().Lookup(name).Changed = false
		}
	}
	t.Cleanup(reset)

	cfg := tts.DefaultConfig()

	t.Run("defaults", func(t *testing.T) {
		reset()
		opts, err := playOptions(playCmd, cfg)
		if err != nil {
			t.Fatalf("playOptions: %v", err)
		}
		want := cfg.SpeechOptions()
		if opts.Voice != want.Voice || opts.Speed != want.Speed || opts.VolumeOr(-1) != cfg.Volume {
			t.Errorf("opts = %+v, want %+v", opts, want)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		reset()
		for flag, value := range map[string]string{"voice": "alloy", "speed": "1.3", "volume": "0.5"} {
			if err := playCmd.Flags().Set(flag, value); err != nil {
				t.Fatal(err)
			}
		}
		opts, err := playOptions(playCmd, cfg)
		if err != nil {
			t.Fatalf("playOptions: %v", err)
		}
		if opts.Voice != "alloy" || opts.Speed != 1.3 || opts.VolumeOr(-1) != 0.5 {
			t.Errorf("opts = %+v", opts)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for flag, value := range map[string]string{"speed": "2", "volume": "1.5"} {
			reset()
			if err := playCmd.Flags().Set(flag, value); err != nil {
				t.Fatal(err)
			}
			if _, err := playOptions(playCmd, cfg); !errors.Is(err, tts.ErrInvalidConfig) {
				t.Errorf("%s=%s: error = %v, want ErrInvalidConfig", flag, value, err)
			}
		}
	})
}
