package provider

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	MaxPromptRunes    = 4000
	MaxVoiceoverRunes = 4096

	MinMusicSeconds     = 5
	MaxMusicSeconds     = 60
	DefaultMusicSeconds = 30

	MinClipSeconds     = 2
	MaxClipSeconds     = 10
	DefaultClipSeconds = 5
)

// Allow-lists. Anything outside them is rejected before a provider call.
var (
	ImageSizes       = []string{"1024x1024", "1792x1024", "1024x1792"}
	ImageQualities   = []string{"standard", "hd"}
	Voices           = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	MusicGenres      = []string{"cinematic", "ambient", "electronic", "orchestral", "jazz", "rock", "lofi", "folk"}
	MusicMoods       = []string{"epic", "calm", "tense", "uplifting", "melancholic", "mysterious", "playful"}
	VideoResolutions = []string{"720p", "1080p"}
	VideoMotions     = []string{"low", "medium", "high"}
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether s is usable as a project, scene or prediction ID.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

func oneOf(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return invalid(field, "must be one of %s", strings.Join(allowed, ", "))
	}
	return nil
}

func checkPrompt(field, prompt string, limit int) error {
	if strings.TrimSpace(prompt) == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(prompt) > limit {
		return invalid(field, "must be at most %d characters", limit)
	}
	return nil
}

func checkIDs(projectID, sceneID string) error {
	if !ValidID(projectID) {
		return invalid("projectId", "must be 1-64 letters, digits, '_' or '-'")
	}
	if sceneID != "" && !ValidID(sceneID) {
		return invalid("sceneId", "must be 1-64 letters, digits, '_' or '-'")
	}
	return nil
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid(field, "must be between %d and %d", lo, hi)
	}
	return nil
}
