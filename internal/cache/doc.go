// Package cache keeps synthesized narration chunks so that replays, restarts
// and resumes do not synthesize the same text twice. It layers an in-memory
// LRU over a zstd-compressed disk store that expires entries after a TTL.
package cache
