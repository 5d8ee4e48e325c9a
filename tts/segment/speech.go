package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// sentencePattern matches a sentence with its terminators and any closing
// quote or bracket, or a trailing run without a terminator. Consecutive
// matches cover the whole input.
var sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+["'”’)\]]*|[^.!?]+$`)

// ForSpeech cleans text and greedily packs whole sentences into chunks of at
// most maxLen characters. A sentence longer than maxLen becomes a chunk of
// its own rather than being split. A non-positive maxLen selects
// DefaultMaxChunkLength.
func ForSpeech(text string, maxLen int) ([]Chunk, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLength
	}

	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}

	var chunks []Chunk
	start, end := -1, -1
	flush := func() {
		if start < 0 {
			return
		}
		raw := cleaned[start:end]
		t := strings.TrimSpace(raw)
		if t != "" {
			lead := len(raw) - len(strings.TrimLeft(raw, " "))
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  t,
				Start: start + lead,
				End:   start + lead + len(t),
			})
		}
		start = -1
	}

	for _, span := range sentencePattern.FindAllStringIndex(cleaned, -1) {
		if start >= 0 && utf8.RuneCountInString(strings.TrimSpace(cleaned[start:span[1]])) > maxLen {
			flush()
		}
		if start < 0 {
			start = span[0]
		}
		end = span[1]
	}
	flush()

	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}
	return chunks, nil
}
