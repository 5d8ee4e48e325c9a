package segment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// IntroductionTitle names the text that precedes the first heading.
const IntroductionTitle = "Introduction"

const (
	maxBoldHeadingLength  = 80
	maxShortHeadingLength = 60
)

var (
	boldHeadingPattern = regexp.MustCompile(`^(?:\*\*(.+?)\*\*|__(.+?)__)[:.]?\s*(.*)$`)
	durationPattern    = regexp.MustCompile(`(?i)\(\s*(\d+)(?:\s*-\s*(\d+))?\s*(?:minutes?|mins?)\s*\)`)
	titleCaser         = cases.Title(language.English)
)

type heading struct {
	title    string
	rest     string
	label    string
	duration time.Duration
}

type draft struct {
	heading
	lines []string
}

// ForDisplay splits a script into titled segments. A line opens a new
// segment when it is a markdown heading, a short bold line, a short
// emoji-prefixed line or a short ALL-CAPS line. A script without any
// heading becomes a single segment.
func ForDisplay(script Script) ([]Segment, error) {
	cleaned := Clean(script.Text)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}

	src := strings.ReplaceAll(norm.NFC.String(script.Text), "\r\n", "\n")
	lines := strings.Split(src, "\n")
	marked := markdownHeadingLines(src)

	var (
		drafts   []draft
		preamble []string
	)
	for i, line := range lines {
		if h, ok := parseHeading(line, marked[i]); ok {
			d := draft{heading: h}
			if h.rest != "" {
				d.lines = append(d.lines, h.rest)
			}
			drafts = append(drafts, d)
			continue
		}
		if len(drafts) == 0 {
			preamble = append(preamble, line)
			continue
		}
		drafts[len(drafts)-1].lines = append(drafts[len(drafts)-1].lines, line)
	}

	var segments []Segment
	if len(drafts) > 0 {
		if intro := Clean(strings.Join(preamble, "\n")); intro != "" {
			title := script.Title
			if title == "" {
				title = IntroductionTitle
			}
			segments = append(segments, newSegment(title, intro, heading{}, charsPerMinute))
		}
	}
	for _, d := range drafts {
		content := Clean(strings.Join(d.lines, "\n"))
		if content == "" {
			continue
		}
		segments = append(segments, newSegment(d.title, content, d.heading, charsPerMinute))
	}

	if len(segments) == 0 {
		title := script.Title
		if title == "" {
			title = FallbackTitle
		}
		h := heading{}
		if script.TargetDuration > 0 {
			h.duration = script.TargetDuration
			h.label = durationLabel(int(script.TargetDuration.Round(time.Minute)/time.Minute), 0)
		}
		segments = append(segments, newSegment(title, cleaned, h, fallbackCharsPerMinute))
	}

	var start time.Duration
	for i := range segments {
		segments[i].Index = i
		segments[i].Start = start
		start += segments[i].Estimate
	}
	return segments, nil
}

func newSegment(title, content string, h heading, perMinute int) Segment {
	minutes := estimateMinutes(utf8.RuneCountInString(content), perMinute)
	s := Segment{
		Title:    title,
		Content:  content,
		Estimate: time.Duration(minutes) * time.Minute,
	}
	if h.duration > 0 {
		s.Duration = h.duration
		s.Label = h.label
		s.Annotated = true
	} else {
		s.Duration = s.Estimate
		s.Label = durationLabel(minutes, 0)
	}
	return s
}

// markdownHeadingLines reports which lines of src goldmark parses as ATX or
// setext headings.
func markdownHeadingLines(src string) map[int]bool {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	lines := make(map[int]bool)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if segs := h.Lines(); segs != nil && segs.Len() > 0 {
			off := segs.At(0).Start
			if off <= len(source) {
				lines[strings.Count(src[:off], "\n")] = true
			}
		}
		return ast.WalkSkipChildren, nil
	})
	return lines
}

func parseHeading(line string, markdown bool) (heading, bool) {
	t := strings.TrimSpace(line)
	if t == "" {
		return heading{}, false
	}

	var h heading
	n := utf8.RuneCountInString(t)
	switch {
	case markdown:
		h.title = strings.Trim(headingMarkerPattern.ReplaceAllString(t, ""), "# ")
	case strings.HasPrefix(t, "**") || strings.HasPrefix(t, "__"):
		sub := boldHeadingPattern.FindStringSubmatch(t)
		if sub == nil || n >= maxBoldHeadingLength {
			return heading{}, false
		}
		h.title = sub[1] + sub[2]
		h.rest = strings.TrimSpace(sub[3])
	case isEmojiPrefixed(t) && n <= maxShortHeadingLength && !endsWithStop(t):
		h.title = t
	case isAllCaps(t) && n <= maxShortHeadingLength && !endsWithStop(t):
		h.title = titleCaser.String(strings.ToLower(t))
	default:
		return heading{}, false
	}

	if m := durationPattern.FindStringSubmatch(t); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		h.label = durationLabel(lo, hi)
		if hi > lo {
			h.duration = time.Duration(float64(lo+hi) / 2 * float64(time.Minute))
		} else {
			h.duration = time.Duration(lo) * time.Minute
		}
	}

	h.title = durationPattern.ReplaceAllString(h.title, "")
	h.title = timingPattern.ReplaceAllString(h.title, "")
	h.title = emojiPattern.ReplaceAllString(stripEmphasis(h.title), "")
	h.title = strings.Trim(whitespacePattern.ReplaceAllString(h.title, " "), " :-–—")
	if h.title == "" {
		return heading{}, false
	}
	return h, true
}

func endsWithStop(s string) bool {
	return strings.ContainsAny(s[len(s)-1:], ".!?")
}

func isEmojiPrefixed(s string) bool {
	loc := emojiPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsLower(r) {
			return false
		}
		letters++
	}
	return letters >= 3
}

func durationLabel(lo, hi int) string {
	switch {
	case hi > lo:
		return fmt.Sprintf("%d-%d minutes", lo, hi)
	case lo == 1:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", lo)
	}
}
