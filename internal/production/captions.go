package production

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"halcyon.studio/cinema/internal/domain"
)

// Fixed on-screen time per caption unit.
const (
	WordCueDuration     = 500 * time.Millisecond
	PhraseCueDuration   = 3 * time.Second
	SentenceCueDuration = 5 * time.Second

	maxPhraseWords = 6
)

// Cue is one caption line.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Segment splits script into timed cues. Cues are back to back and
// never overlap.
func Segment(script string, style domain.CaptionStyle) []Cue {
	script = norm.NFC.String(strings.Join(strings.Fields(script), " "))
	if script == "" {
		return nil
	}

	var parts []string
	var each time.Duration
	switch style {
	case domain.CaptionWord:
		parts, each = strings.Fields(script), WordCueDuration
	case domain.CaptionPhrase:
		parts, each = phrases(script), PhraseCueDuration
	default:
		parts, each = sentences(script), SentenceCueDuration
	}

	cues := make([]Cue, 0, len(parts))
	for _, text := range parts {
		start := time.Duration(len(cues)) * each
		cues = append(cues, Cue{Index: len(cues) + 1, Start: start, End: start + each, Text: text})
	}
	return cues
}

// sentences splits after '.', '!' or '?' runs.
func sentences(s string) []string {
	return splitAfter(s, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
}

// phrases splits at clause punctuation and caps each phrase's length.
func phrases(s string) []string {
	var out []string
	for _, clause := range splitAfter(s, func(r rune) bool { return strings.ContainsRune(".!?,;:", r) }) {
		words := strings.Fields(clause)
		for len(words) > maxPhraseWords {
			out = append(out, strings.Join(words[:maxPhraseWords], " "))
			words = words[maxPhraseWords:]
		}
		if len(words) > 0 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return out
}

func splitAfter(s string, isBreak func(rune) bool) []string {
	var out []string
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		b.WriteRune(r)
		next := i + 1
		if isBreak(r) && (next == len(runes) || !isBreak(runes[next])) {
			if t := strings.TrimSpace(b.String()); t != "" && hasText(t) {
				out = append(out, t)
			}
			b.Reset()
		}
	}
	if t := strings.TrimSpace(b.String()); t != "" && hasText(t) {
		out = append(out, t)
	}
	return out
}

func hasText(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0
}

// RenderVTT renders cues as a WebVTT document.
func RenderVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.Index, timestamp(c.Start, '.'), timestamp(c.End, '.'), c.Text)
	}
	return b.String()
}

// RenderSRT renders cues as SubRip.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for _, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.Index, timestamp(c.Start, ','), timestamp(c.End, ','), c.Text)
	}
	return b.String()
}

func timestamp(d time.Duration, sep byte) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
