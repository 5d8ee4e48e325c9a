package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache is a persistent cache that stores zstd-compressed entries, one
// file per key, with a gob index of sizes and access times.
type DiskCache struct {
	dir      string
	capacity int64
	ttl      time.Duration
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	index map[string]*diskEntry
	stats Stats

	now func() time.Time
}

// diskEntry is persisted in the index, so its fields are exported.
type diskEntry struct {
	File       string
	Size       int64 // Compressed size on disk
	Created    time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates a disk cache in dir. A ttl of zero keeps
// entries until they are evicted for space.
func NewDiskCache(dir string, capacity int64, compressionLevel int, ttl time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		ttl:      ttl,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
		now:      time.Now,
	}
	if err := dc.loadIndex(); err != nil {
		log.Warn("ignoring unreadable cache index", "dir", dir, "err", err)
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}
	return dc, nil
}

// Get retrieves a value. Expired, missing or corrupt entries count as misses
// and are removed.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}
	if dc.expired(entry) {
		dc.remove(key)
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		log.Debug("dropping cache entry", "key", key, "err", err)
		dc.remove(key)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = dc.now()
	dc.stats.Hits++
	return data, true
}

// Put compresses and stores a value.
func (dc *DiskCache) Put(key string, value []byte) error {
	compressed := dc.encoder.EncodeAll(value, nil)
	size := int64(len(compressed))
	if size > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if _, ok := dc.index[key]; ok {
		dc.remove(key)
	}
	for dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	file := key + ".zst"
	if err := writeFile(filepath.Join(dc.dir, file), compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	now := dc.now()
	dc.index[key] = &diskEntry{File: file, Size: size, Created: now, LastAccess: now}
	dc.size += size
	return dc.saveIndex()
}

// Prune removes expired entries and returns how many were dropped.
func (dc *DiskCache) Prune() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if dc.expired(entry) {
			dc.remove(key)
			removed++
		}
	}
	if removed > 0 {
		if err := dc.saveIndex(); err != nil {
			log.Warn("saving cache index", "err", err)
		}
	}
	return removed
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key := range dc.index {
		dc.remove(key)
	}
	return dc.saveIndex()
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	s := dc.stats
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// Close saves the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	err := dc.saveIndex()
	dc.decoder.Close()
	return errors.Join(err, dc.encoder.Close())
}

func (dc *DiskCache) expired(e *diskEntry) bool {
	return dc.ttl > 0 && dc.now().Sub(e.Created) > dc.ttl
}

func (dc *DiskCache) remove(key string) {
	entry := dc.index[key]
	if err := os.Remove(filepath.Join(dc.dir, entry.File)); err != nil && !os.IsNotExist(err) {
		log.Debug("removing cache file", "file", entry.File, "err", err)
	}
	dc.size -= entry.Size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldest() {
	var oldest string
	var oldestTime time.Time
	for key, e := range dc.index {
		if oldest == "" || e.LastAccess.Before(oldestTime) {
			oldest, oldestTime = key, e.LastAccess
		}
	}
	if oldest != "" {
		dc.remove(oldest)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck
	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeFile writes to a temporary file and renames it into place.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
