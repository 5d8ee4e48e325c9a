package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cached data cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Tier names a cache level in stats and metrics.
type Tier string

const (
	TierMemory Tier = "memory"
	TierDisk   Tier = "disk"
)

// Stats holds cache performance counters.
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	Items     int   // Number of entries
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds configuration for a Manager.
type Config struct {
	MemoryCapacity   int64         // Bytes
	DiskCapacity     int64         // Bytes, 0 disables the disk tier
	Dir              string        // Directory for cache files
	CompressionLevel int           // Zstd level (1-22)
	TTL              time.Duration // Age after which disk entries expire
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 << 20,
		DiskCapacity:     256 << 20,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
	}
}

// Key identifies one synthesized chunk.
type Key struct {
	Text  string
	Voice string
	Speed float64
	Model string
}

// String returns a stable hash of the key suitable for file names.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f|%s", k.Text, k.Voice, k.Speed, k.Model)))
	return hex.EncodeToString(sum[:16])
}
