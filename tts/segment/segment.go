// Package segment turns a narration script into the two views the player
// needs: speakable chunks sized for speech backends, and titled display
// segments for progress reporting.
package segment

import (
	"errors"
	"math"
	"time"
)

// DefaultMaxChunkLength is the largest chunk, in characters, handed to a
// speech backend in one request.
const DefaultMaxChunkLength = 4000

const (
	// charsPerMinute is the reading speed used to estimate section length.
	charsPerMinute = 200
	// fallbackCharsPerMinute is used when the script has no sections at all.
	fallbackCharsPerMinute = 150
)

// FallbackTitle names the single segment of a script without headings.
const FallbackTitle = "Complete Narration"

// ErrEmptyInput is returned when a script has nothing left to say after
// markup has been removed.
var ErrEmptyInput = errors.New("narration script is empty")

// Script is an immutable narration request.
type Script struct {
	Text           string
	Title          string
	TargetDuration time.Duration
}

// Chunk is a run of whole sentences small enough for one backend request.
type Chunk struct {
	Index int
	Text  string
	Start int // byte offset into the cleaned script
	End   int
}

// Segment is a titled section of a script, used for display only.
type Segment struct {
	Index     int
	Title     string
	Content   string
	Label     string        // human readable duration, e.g. "3-5 minutes"
	Duration  time.Duration // annotated duration, or the estimate
	Estimate  time.Duration // length based estimate used for timing
	Start     time.Duration // cumulative estimate of where the segment begins
	Annotated bool
}

// estimateMinutes returns ceil(chars/perMinute), never less than one minute.
func estimateMinutes(chars, perMinute int) int {
	m := int(math.Ceil(float64(chars) / float64(perMinute)))
	if m < 1 {
		return 1
	}
	return m
}

// TotalEstimate sums the timing estimates of all segments.
func TotalEstimate(segments []Segment) time.Duration {
	var total time.Duration
	for _, s := range segments {
		total += s.Estimate
	}
	return total
}

// Locate returns the index of the segment playing at the given estimated
// elapsed time: the last segment whose start is not after elapsed.
func Locate(segments []Segment, elapsed time.Duration) int {
	idx := 0
	for i, s := range segments {
		if s.Start <= elapsed {
			idx = i
		}
	}
	return idx
}

// ChunkElapsed maps a chunk position onto the estimated timeline. The
// mapping is approximate since chunks and segments partition the text
// independently.
func ChunkElapsed(chunk, totalChunks int, total time.Duration) time.Duration {
	if totalChunks <= 0 {
		return 0
	}
	return time.Duration(float64(total) * float64(chunk) / float64(totalChunks))
}

// ChunkForSegment returns the first chunk whose estimated start falls at or
// after the start of segment idx.
func ChunkForSegment(segments []Segment, idx, totalChunks int) int {
	if idx <= 0 || len(segments) == 0 || totalChunks <= 0 {
		return 0
	}
	if idx >= len(segments) {
		idx = len(segments) - 1
	}
	total := TotalEstimate(segments)
	if total <= 0 {
		return 0
	}
	c := int(math.Ceil(float64(segments[idx].Start) * float64(totalChunks) / float64(total)))
	if c >= totalChunks {
		c = totalChunks - 1
	}
	return c
}
