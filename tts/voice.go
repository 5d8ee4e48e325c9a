package tts

import (
	"slices"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

// VoicePreference is one rank of the voice heuristic. A voice matches when
// its name contains Match and none of Exclude, compared case-insensitively.
type VoicePreference struct {
	Match   string
	Exclude []string
}

// DefaultVoicePreferences favours soft, young sounding female voices. Voice
// names differ between platforms so a match is never guaranteed.
var DefaultVoicePreferences = []VoicePreference{
	{Match: "jenny"},
	{Match: "aria"},
	{Match: "samantha"},
	{Match: "girl"},
	{Match: "child"},
	{Match: "female", Exclude: []string{"microsoft", "adult"}},
	{Match: "zira"},
	{Match: "eva"},
}

// maleMarkers flag voices the fallback rule skips. They match whole words
// of the voice name.
var maleMarkers = []string{"male", "man", "adult", "mature", "deep", "david", "mark", "james", "microsoft"}

// SelectVoice picks a voice by walking prefs in rank order, then settles
// for any English voice without a male marker. It reports false when
// nothing qualifies and the platform default should be used.
func SelectVoice(voices []Voice, prefs []VoicePreference) (Voice, bool) {
	english := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if isEnglish(v) {
			english = append(english, v)
		}
	}

	for _, p := range prefs {
		for _, v := range english {
			if p.matches(v) {
				return v, true
			}
		}
	}

	for _, v := range english {
		if !soundsMale(v) {
			return v, true
		}
	}
	return Voice{}, false
}

func (p VoicePreference) matches(v Voice) bool {
	name := strings.ToLower(v.Name)
	if !strings.Contains(name, p.Match) {
		return false
	}
	for _, ex := range p.Exclude {
		if strings.Contains(name, ex) {
			return false
		}
	}
	return true
}

func isEnglish(v Voice) bool {
	lang := strings.ToLower(v.Language)
	if lang == "" {
		return strings.Contains(strings.ToLower(v.Name), "english")
	}
	return strings.HasPrefix(lang, "en")
}

func soundsMale(v Voice) bool {
	switch strings.ToLower(v.Gender) {
	case "male":
		return true
	case "female":
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(v.Name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, m := range maleMarkers {
		if slices.Contains(words, m) {
			return true
		}
	}
	return false
}

type voiceSource []Voice

func (s voiceSource) String(i int) string { return s[i].Name }
func (s voiceSource) Len() int            { return len(s) }

// MatchVoice resolves a user supplied voice name. Exact ID or name matches
// win, otherwise the best fuzzy match on the name is used.
func MatchVoice(voices []Voice, query string) (Voice, error) {
	if query == "" {
		return Voice{}, ErrVoiceNotFound
	}
	for _, v := range voices {
		if strings.EqualFold(v.ID, query) || strings.EqualFold(v.Name, query) {
			return v, nil
		}
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	if len(matches) == 0 {
		return Voice{}, ErrVoiceNotFound
	}
	return voices[matches[0].Index], nil
}
