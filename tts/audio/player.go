// Package audio plays synthesized speech through the system audio device.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/narrator/tts"
)

// Oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoConfig  PlayerConfig
	otoErr     error
)

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int           // Hz, must match synthesized audio
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // Device buffer length, 0 for the driver default
}

// DefaultPlayerConfig returns the format of cloud speech PCM.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 24000,
		Channels:   1,
	}
}

// Validate checks the player configuration.
func (c PlayerConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	if c.BufferSize < 0 {
		return errors.New("buffer size cannot be negative")
	}
	return nil
}

// Player implements tts.AudioPlayer on top of oto.
type Player struct {
	context *oto.Context
	config  PlayerConfig

	mu     sync.Mutex
	player *oto.Player
	data   []byte // Keeps the PCM alive while oto reads it
	err    error
	volume float64
}

// NewPlayer opens the audio device. Every Player in a process shares one
// device context, so later calls must ask for the same format.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext, otoConfig = ctx, config
		log.Debug("audio device ready", "rate", config.SampleRate, "channels", config.Channels)
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoConfig.SampleRate != config.SampleRate || otoConfig.Channels != config.Channels {
		return nil, fmt.Errorf("%w: device opened at %d Hz/%d ch", tts.ErrInvalidAudioFormat, otoConfig.SampleRate, otoConfig.Channels)
	}

	return &Player{context: otoContext, config: config, volume: 1.0}, nil
}

// Play starts playback of audio, replacing anything already playing.
func (p *Player) Play(audio *tts.Audio) error {
	if err := p.check(audio); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeLocked()
	p.data = append([]byte(nil), audio.Data...)
	p.player = p.context.NewPlayer(bytes.NewReader(p.data))
	p.player.SetVolume(p.volume)
	p.err = nil
	p.player.Play()
	return nil
}

func (p *Player) check(audio *tts.Audio) error {
	if audio == nil || len(audio.Data) == 0 {
		return errors.New("audio data is empty")
	}
	if audio.Format != tts.FormatPCM16 {
		return fmt.Errorf("%w: only 16-bit PCM is supported", tts.ErrInvalidAudioFormat)
	}
	if audio.SampleRate != p.config.SampleRate || audio.Channels != p.config.Channels {
		return fmt.Errorf("%w: got %d Hz/%d ch, want %d Hz/%d ch", tts.ErrInvalidAudioFormat,
			audio.SampleRate, audio.Channels, p.config.SampleRate, p.config.Channels)
	}
	return nil
}

// Stop halts playback and releases the current audio.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Player) closeLocked() {
	if p.player == nil {
		return
	}
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		log.Debug("closing audio player", "err", err)
	}
	p.player = nil
	p.data = nil
}

// IsPlaying reports whether audio is still being emitted. Once it returns
// false, Err tells whether the audio ended or failed.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return false
	}
	if p.player.IsPlaying() {
		return true
	}
	if err := p.player.Err(); err != nil {
		log.Warn("audio playback failed", "err", err)
		p.err = err
	}
	p.closeLocked()
	return false
}

// Err returns the device error that ended the last playback, if any.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	return nil
}

// Close stops playback. The device context stays open for the process.
func (p *Player) Close() error {
	return p.Stop()
}
