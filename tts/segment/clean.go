package segment

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	headingMarkerPattern = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	ruleLinePattern      = regexp.MustCompile(`(?m)^[ \t]*(?:[-*_=][ \t]*){3,}$`)
	boldPattern          = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicPattern        = regexp.MustCompile(`\*([^*\n]+)\*`)
	emojiPattern         = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F900}-\x{1F9FF}\x{1FA70}-\x{1FAFF}\x{1F1E0}-\x{1F1FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{FE0F}\x{200D}]`)
	timingPattern        = regexp.MustCompile(`(?i)[(\[]\s*\d+(?:\s*-\s*\d+)?\s*(?:minutes?|mins?|seconds?|secs?)\s*[)\]]`)
	ellipsisPattern      = regexp.MustCompile(`\.{3,}|…`)
	blankLinePattern     = regexp.MustCompile(`\n[ \t]*\n`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
	spaceBeforePunct     = regexp.MustCompile(`\s+([.!?,;:])`)
	repeatedStopPattern  = regexp.MustCompile(`([.!?])(?:\s*\.)+`)
)

// Clean strips markup from a script and normalises it into plain prose:
// bold and italic markers, emoji and timing annotations are removed,
// ellipses and blank lines become sentence pauses and whitespace is
// collapsed.
func Clean(text string) string {
	s := norm.NFC.String(text)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = headingMarkerPattern.ReplaceAllString(s, "")
	s = ruleLinePattern.ReplaceAllString(s, "")
	s = stripEmphasis(s)
	s = emojiPattern.ReplaceAllString(s, "")
	s = timingPattern.ReplaceAllString(s, "")
	s = ellipsisPattern.ReplaceAllString(s, ". ")

	paragraphs := blankLinePattern.Split(s, -1)
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(whitespacePattern.ReplaceAllString(p, " "))
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return ""
	}
	for i := 0; i < len(parts)-1; i++ {
		if !endsSentence(parts[i]) {
			parts[i] += "."
		}
	}

	s = strings.Join(parts, " ")
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = repeatedStopPattern.ReplaceAllString(s, "$1")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func stripEmphasis(s string) string {
	s = boldPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := boldPattern.FindStringSubmatch(m)
		if sub[1] != "" {
			return sub[1]
		}
		return sub[2]
	})
	return italicPattern.ReplaceAllString(s, "$1")
}

func endsSentence(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}
