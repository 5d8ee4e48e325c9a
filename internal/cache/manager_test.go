package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/tts"
)

func testAudio() *tts.Audio {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 1200)
	return &tts.Audio{
		Data:       data,
		Format:     tts.FormatPCM16,
		SampleRate: 24000,
		Channels:   1,
		Duration:   tts.PCMDuration(len(data), 24000, 1),
	}
}

func newTestManager(t *testing.T, withDisk bool) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	if withDisk {
		cfg.Dir = t.TempDir()
	}
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// TestManager_StoreLookup tests that audio and its format survive a round
// trip.
func TestManager_StoreLookup(t *testing.T) {
	m := newTestManager(t, true)
	key := Key{Text: "Hello world.", Voice: "nova", Speed: 1.1, Model: "tts-1-hd"}
	want := testAudio()

	if _, ok := m.Lookup(context.Background(), key); ok {
		t.Fatal("Expected a miss before Store")
	}
	if err := m.Store(key, want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := m.Lookup(context.Background(), key)
	if !ok {
		t.Fatal("Expected a hit after Store")
	}
	if !bytes.Equal(got.Data, want.Data) {
		t.Error("Audio data differs")
	}
	if got.SampleRate != 24000 || got.Channels != 1 || got.Format != tts.FormatPCM16 {
		t.Errorf("Format lost: %+v", got)
	}
	if got.Duration != want.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, want.Duration)
	}
}

// TestManager_Promotion tests that disk hits are promoted to memory.
func TestManager_Promotion(t *testing.T) {
	m := newTestManager(t, true)
	key := Key{Text: "promote"}
	_ = m.Store(key, testAudio())
	m.memory.Clear()

	if _, ok := m.Lookup(context.Background(), key); !ok {
		t.Fatal("Expected a disk hit")
	}
	if _, ok := m.memory.Get(key.String()); !ok {
		t.Error("Disk hit should be promoted to memory")
	}

	stats := m.Stats()
	if stats[TierDisk].Hits != 1 {
		t.Errorf("Disk hits = %d, want 1", stats[TierDisk].Hits)
	}
}

// TestManager_MemoryOnly tests a manager without a disk tier.
func TestManager_MemoryOnly(t *testing.T) {
	m := newTestManager(t, false)
	key := Key{Text: "memory"}
	_ = m.Store(key, testAudio())

	if _, ok := m.Lookup(context.Background(), key); !ok {
		t.Error("Expected a memory hit")
	}
	if _, ok := m.Stats()[TierDisk]; ok {
		t.Error("Disk tier should be absent")
	}
	if err := m.Clear(); err != nil {
		t.Errorf("Clear: %v", err)
	}
	if _, ok := m.Lookup(context.Background(), key); ok {
		t.Error("Expected a miss after Clear")
	}
}

// TestManager_RejectsEmptyAudio tests that empty audio is not cached.
func TestManager_RejectsEmptyAudio(t *testing.T) {
	m := newTestManager(t, false)
	if err := m.Store(Key{Text: "x"}, &tts.Audio{}); err == nil {
		t.Error("Expected an error for empty audio")
	}
}

// TestManager_CorruptEntry tests that undecodable data is dropped.
func TestManager_CorruptEntry(t *testing.T) {
	m := newTestManager(t, false)
	key := Key{Text: "corrupt"}
	_ = m.memory.Put(key.String(), []byte("nope"))

	if _, ok := m.Lookup(context.Background(), key); ok {
		t.Error("Corrupt entry should miss")
	}
	if _, ok := m.memory.Get(key.String()); ok {
		t.Error("Corrupt entry should be removed")
	}
}

// TestKeyString tests that every key component changes the hash.
func TestKeyString(t *testing.T) {
	base := Key{Text: "Hello", Voice: "nova", Speed: 1.1, Model: "tts-1-hd"}
	variants := []Key{
		{Text: "Hello!", Voice: "nova", Speed: 1.1, Model: "tts-1-hd"},
		{Text: "Hello", Voice: "alloy", Speed: 1.1, Model: "tts-1-hd"},
		{Text: "Hello", Voice: "nova", Speed: 1.2, Model: "tts-1-hd"},
		{Text: "Hello", Voice: "nova", Speed: 1.1, Model: "tts-1"},
	}

	same := base
	if same.String() != base.String() {
		t.Fatal("Key hash is not stable")
	}
	if len(base.String()) != 32 {
		t.Errorf("Key length = %d, want 32", len(base.String()))
	}
	for _, v := range variants {
		if v.String() == base.String() {
			t.Errorf("Key %+v collides with base", v)
		}
	}
}

// TestManager_ExpiredOnOpen tests that stale disk entries are pruned when a
// manager opens.
func TestManager_ExpiredOnOpen(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	dc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	data, _ := encodeAudio(testAudio())
	_ = dc.Put(Key{Text: "stale"}.String(), data)
	_ = dc.Close()

	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.TTL = time.Hour
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close() //nolint:errcheck

	if s := m.Stats()[TierDisk]; s.Items != 0 {
		t.Errorf("Expected stale entry pruned, %d remain", s.Items)
	}
}
