package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/audio"
	"github.com/dgnsrekt/narrator/tts/engines"
	"github.com/dgnsrekt/narrator/tts/engines/local"
	"github.com/dgnsrekt/narrator/tts/engines/mock"
	"github.com/dgnsrekt/narrator/tts/engines/openai"
)

// backends holds the speech backends of one process and what they own.
type backends struct {
	primary  tts.Backend
	fallback tts.Backend
	cache    *cache.Manager
	closers  []func() error
}

// newBackends builds the configured primary and fallback backends. A
// primary that cannot be built leaves the fallback to narrate alone.
func newBackends(cfg tts.Config, metrics *observe.Metrics) (*backends, error) {
	b := &backends{}

	primary, err := b.build(cfg.Backend, cfg, metrics)
	if err != nil {
		if cfg.Fallback == tts.BackendNone {
			_ = b.Close()
			return nil, fmt.Errorf("%w: %w", tts.ErrBackendUnavailable, err)
		}
		log.Warn("Primary backend unavailable", "backend", cfg.Backend, "error", err)
	}
	b.primary = primary

	if cfg.Fallback != tts.BackendNone {
		fallback, err := b.build(cfg.Fallback, cfg, metrics)
		if err != nil {
			log.Warn("Fallback backend unavailable", "backend", cfg.Fallback, "error", err)
		}
		b.fallback = fallback
	}

	if b.primary == nil && b.fallback == nil {
		_ = b.Close()
		return nil, tts.ErrNoBackend
	}
	return b, nil
}

func (b *backends) build(name string, cfg tts.Config, metrics *observe.Metrics) (tts.Backend, error) {
	switch name {
	case tts.BackendOpenAI:
		return b.buildCloud(cfg, metrics)
	case tts.BackendLocal:
		lb, err := local.New(cfg.Local)
		if err != nil {
			return nil, err
		}
		return lb, nil
	case tts.BackendMock:
		return mock.New(tts.BackendMock), nil
	case tts.BackendNone, "":
		return nil, errors.New("no backend selected")
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func (b *backends) buildCloud(cfg tts.Config, metrics *observe.Metrics) (tts.Backend, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	synth, err := openai.NewFromConfig(cfg.OpenAI)
	if err != nil {
		return nil, err
	}

	player, err := audio.NewPlayer(audio.PlayerConfig{
		SampleRate: openai.SampleRate,
		Channels:   openai.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	b.closers = append(b.closers, player.Close)

	var audioCache engines.AudioCache
	if cfg.Cache.Enabled {
		mgr, err := cache.NewManager(cacheConfig(cfg.Cache), metrics)
		if err != nil {
			log.Warn("Audio cache disabled", "error", err)
		} else {
			b.cache = mgr
			b.closers = append(b.closers, mgr.Close)
			audioCache = mgr
		}
	}

	return engines.NewCloud(synth, player, audioCache), nil
}

// cacheConfig converts narration cache settings to cache settings.
func cacheConfig(c tts.CacheConfig) cache.Config {
	return cache.Config{
		MemoryCapacity:   int64(c.MaxMemoryMB) << 20,
		DiskCapacity:     int64(c.MaxDiskMB) << 20,
		Dir:              c.Dir,
		CompressionLevel: c.CompressionLevel,
		TTL:              c.TTL,
	}
}

// cancelers returns the backends the arbiter silences on ownership
// changes.
func (b *backends) cancelers() []tts.Canceler {
	var out []tts.Canceler
	for _, be := range []tts.Backend{b.primary, b.fallback} {
		if be != nil {
			out = append(out, be)
		}
	}
	return out
}

// Close releases audio devices and flushes the cache.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
