package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts"
)

var audioMagic = [4]byte{'N', 'R', 'A', '1'}

// audioHeader precedes the sample data of every cached entry.
type audioHeader struct {
	Magic      [4]byte
	SampleRate uint32
	Channels   uint16
	Format     uint16
	Duration   int64
}

// Manager looks synthesized audio up in memory first, then on disk, and
// promotes disk hits into memory.
type Manager struct {
	memory  *MemoryCache
	disk    *DiskCache // nil when the disk tier is disabled
	metrics *observe.Metrics
}

// NewManager creates a cache manager. An empty cfg.Dir or zero
// cfg.DiskCapacity disables the disk tier.
func NewManager(cfg Config, metrics *observe.Metrics) (*Manager, error) {
	m := &Manager{
		memory:  NewMemoryCache(cfg.MemoryCapacity),
		metrics: metrics,
	}
	if cfg.Dir != "" && cfg.DiskCapacity > 0 {
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		if n := disk.Prune(); n > 0 {
			log.Debug("pruned expired audio", "entries", n)
		}
		m.disk = disk
	}
	return m, nil
}

// Lookup returns the audio stored under key.
func (m *Manager) Lookup(ctx context.Context, key Key) (*tts.Audio, bool) {
	k := key.String()

	if data, ok := m.memory.Get(k); ok {
		m.metrics.RecordCacheLookup(ctx, string(TierMemory), true)
		return m.decodeOrDrop(k, data)
	}
	m.metrics.RecordCacheLookup(ctx, string(TierMemory), false)

	if m.disk == nil {
		return nil, false
	}
	data, ok := m.disk.Get(k)
	m.metrics.RecordCacheLookup(ctx, string(TierDisk), ok)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(k, data); err != nil {
		log.Debug("not promoting audio to memory", "err", err)
	}
	return m.decodeOrDrop(k, data)
}

func (m *Manager) decodeOrDrop(k string, data []byte) (*tts.Audio, bool) {
	audio, err := decodeAudio(data)
	if err != nil {
		log.Warn("dropping cached audio", "key", k, "err", err)
		m.memory.Delete(k)
		return nil, false
	}
	return audio, true
}

// Store saves audio under key in every tier.
func (m *Manager) Store(key Key, audio *tts.Audio) error {
	k := key.String()
	data, err := encodeAudio(audio)
	if err != nil {
		return err
	}

	if err := m.memory.Put(k, data); err != nil {
		log.Debug("audio not kept in memory", "err", err)
	}
	if m.disk != nil {
		if err := m.disk.Put(k, data); err != nil {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// Stats returns statistics per tier.
func (m *Manager) Stats() map[Tier]Stats {
	stats := map[Tier]Stats{TierMemory: m.memory.Stats()}
	if m.disk != nil {
		stats[TierDisk] = m.disk.Stats()
	}
	return stats
}

// Clear empties every tier.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// Close flushes the disk index.
func (m *Manager) Close() error {
	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}

func encodeAudio(audio *tts.Audio) ([]byte, error) {
	if audio == nil || len(audio.Data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrCacheCorrupted)
	}
	var buf bytes.Buffer
	buf.Grow(binary.Size(audioHeader{}) + len(audio.Data))
	h := audioHeader{
		Magic:      audioMagic,
		SampleRate: uint32(audio.SampleRate), //nolint:gosec
		Channels:   uint16(audio.Channels),   //nolint:gosec
		Format:     uint16(audio.Format),     //nolint:gosec
		Duration:   int64(audio.Duration),
	}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	buf.Write(audio.Data)
	return buf.Bytes(), nil
}

func decodeAudio(data []byte) (*tts.Audio, error) {
	var h audioHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil || h.Magic != audioMagic {
		return nil, ErrCacheCorrupted
	}
	return &tts.Audio{
		Data:       data[len(data)-r.Len():],
		Format:     tts.AudioFormat(h.Format),
		SampleRate: int(h.SampleRate),
		Channels:   int(h.Channels),
		Duration:   time.Duration(h.Duration),
	}, nil
}
