// Package engines provides speech backends built from a synthesizer and an
// audio player.
package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/tts"
)

// pollInterval is how often Wait checks whether the player has drained.
const pollInterval = 20 * time.Millisecond

// errInterrupted is returned by Wait when the utterance was stopped early.
var errInterrupted = errors.New("utterance interrupted")

// AudioCache stores synthesized chunks between utterances.
type AudioCache interface {
	Lookup(ctx context.Context, key cache.Key) (*tts.Audio, bool)
	Store(key cache.Key, audio *tts.Audio) error
}

// Cloud is a tts.Backend that synthesizes whole chunks remotely and plays
// the returned audio locally.
type Cloud struct {
	synth  tts.Synthesizer
	player tts.AudioPlayer
	cache  AudioCache

	mu      sync.Mutex
	current *cloudUtterance
}

// NewCloud creates a cloud backend. The cache may be nil.
func NewCloud(synth tts.Synthesizer, player tts.AudioPlayer, c AudioCache) *Cloud {
	return &Cloud{synth: synth, player: player, cache: c}
}

// Name implements tts.Backend.
func (c *Cloud) Name() string {
	return c.synth.Name()
}

// Prepare synthesizes text, or reuses a cached rendition of it.
func (c *Cloud) Prepare(ctx context.Context, text string, opts tts.SpeechOptions) (tts.Utterance, error) {
	key := cache.Key{Text: text, Voice: opts.Voice, Speed: opts.Speed, Model: c.synth.Name()}

	if c.cache != nil {
		if audio, ok := c.cache.Lookup(ctx, key); ok {
			log.Debug("using cached audio", "backend", c.Name(), "chars", len(text))
			return c.newUtterance(audio, opts), nil
		}
	}

	audio, err := c.synth.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, fmt.Errorf("%s synthesis: %w", c.Name(), err)
	}

	if c.cache != nil {
		if err := c.cache.Store(key, audio); err != nil {
			log.Warn("failed to cache audio", "backend", c.Name(), "error", err)
		}
	}
	return c.newUtterance(audio, opts), nil
}

// CancelAll implements tts.Backend.
func (c *Cloud) CancelAll() {
	c.mu.Lock()
	u := c.current
	c.mu.Unlock()
	if u != nil {
		_ = u.Stop()
	}
}

func (c *Cloud) newUtterance(audio *tts.Audio, opts tts.SpeechOptions) *cloudUtterance {
	return &cloudUtterance{cloud: c, audio: audio, volume: opts.Volume, done: make(chan struct{})}
}

type cloudUtterance struct {
	cloud  *Cloud
	audio  *tts.Audio
	volume *float64

	once    sync.Once
	done    chan struct{}
	started bool
	stopped bool
}

// Start implements tts.Utterance. Starting an utterance replaces whatever
// the player was emitting.
func (u *cloudUtterance) Start() error {
	c := u.cloud
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-u.done:
		return errInterrupted
	default:
	}

	if u.volume != nil {
		if err := c.player.SetVolume(*u.volume); err != nil {
			log.Debug("ignoring volume", "volume", *u.volume, "error", err)
		}
	}
	if err := c.player.Play(u.audio); err != nil {
		return fmt.Errorf("playing audio: %w", err)
	}
	u.started = true
	c.current = u
	return nil
}

// Wait implements tts.Utterance.
func (u *cloudUtterance) Wait(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			if u.wasStopped() {
				return errInterrupted
			}
			return nil
		case <-ctx.Done():
			_ = u.Stop()
			return ctx.Err()
		case <-ticker.C:
			player := u.cloud.player
			if player.IsPlaying() {
				continue
			}
			u.finish(false)
			if err := player.Err(); err != nil {
				return fmt.Errorf("playing audio: %w", err)
			}
		}
	}
}

// Stop implements tts.Utterance.
func (u *cloudUtterance) Stop() error {
	u.finish(true)
	return nil
}

func (u *cloudUtterance) wasStopped() bool {
	u.cloud.mu.Lock()
	defer u.cloud.mu.Unlock()
	return u.stopped
}

func (u *cloudUtterance) finish(stopped bool) {
	u.once.Do(func() {
		c := u.cloud
		c.mu.Lock()
		u.stopped = stopped
		if c.current == u {
			c.current = nil
			if stopped {
				if err := c.player.Stop(); err != nil {
					log.Debug("stopping player", "error", err)
				}
			}
		}
		c.mu.Unlock()
		close(u.done)
	})
}
