package production

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/provider"
)

// ClipPlan is one video generation call.
type ClipPlan struct {
	SceneID string `json:"sceneId"`
	Prompt  string `json:"prompt"`
	Seconds int    `json:"seconds"`
}

// Plan is what a production will do, derived from the request and profile.
type Plan struct {
	Profile      Profile             `json:"profile"`
	Clips        []ClipPlan          `json:"clips"`
	DroppedClips int                 `json:"droppedClips,omitempty"`
	Music        bool                `json:"music"`
	MusicGenre   string              `json:"musicGenre,omitempty"`
	MusicMood    string              `json:"musicMood,omitempty"`
	MusicSeconds int                 `json:"musicSeconds,omitempty"`
	Voiceover    bool                `json:"voiceover"`
	Voice        string              `json:"voice,omitempty"`
	Captions     bool                `json:"captions"`
	CaptionStyle domain.CaptionStyle `json:"captionStyle,omitempty"`
	Script       string              `json:"-"`
}

// Seconds is the total video length.
func (p Plan) Seconds() int {
	total := 0
	for _, c := range p.Clips {
		total += c.Seconds
	}
	return total
}

// BuildPlan expands req against profile. A prompt-only request is cut
// into as many clips as the target duration needs, up to the profile's
// clip limit; explicit scenes map one clip each.
func BuildPlan(req domain.ProductionRequest, profile Profile) (Plan, error) {
	if err := ValidateSettings(req.Settings); err != nil {
		return Plan{}, err
	}
	scenes := req.EffectiveScenes()
	if len(scenes) == 0 {
		return Plan{}, &provider.ValidationError{Field: "prompt", Message: "prompt or scenes are required"}
	}
	plan := Plan{Profile: profile}
	clipSeconds := profile.Video.ClipSeconds

	if len(req.Scenes) == 0 {
		n := 1
		if req.TargetDuration > 0 {
			n = int(math.Ceil(req.TargetDuration / float64(clipSeconds)))
		}
		if n > profile.Video.MaxClips {
			plan.DroppedClips = n - profile.Video.MaxClips
			n = profile.Video.MaxClips
		}
		for i := range n {
			plan.Clips = append(plan.Clips, ClipPlan{
				SceneID: fmt.Sprintf("scene-%d", i+1),
				Prompt:  scenes[0].Prompt,
				Seconds: clampClip(clipSeconds),
			})
		}
	} else {
		for i, s := range scenes {
			if i >= profile.Video.MaxClips {
				plan.DroppedClips = len(scenes) - profile.Video.MaxClips
				break
			}
			if strings.TrimSpace(s.Prompt) == "" {
				return Plan{}, &provider.ValidationError{Field: "scenes", Message: fmt.Sprintf("scene %s has no prompt", s.ID)}
			}
			seconds := clipSeconds
			if s.Duration > 0 {
				seconds = int(math.Round(s.Duration))
			}
			plan.Clips = append(plan.Clips, ClipPlan{SceneID: s.ID, Prompt: s.Prompt, Seconds: clampClip(seconds)})
		}
	}

	settings := req.Settings
	script := strings.TrimSpace(req.Script)
	plan.Script = script

	if settings.IncludeMusic {
		plan.Music = true
		plan.MusicGenre = orDefault(settings.MusicGenre, profile.Music.Genre)
		plan.MusicMood = orDefault(settings.MusicMood, profile.Music.Mood)
		limit := max(profile.Music.Seconds, provider.MinMusicSeconds)
		plan.MusicSeconds = min(max(plan.Seconds(), provider.MinMusicSeconds), limit, provider.MaxMusicSeconds)
	}
	if settings.IncludeVoiceover && script != "" {
		plan.Voiceover = true
		plan.Voice = orDefault(settings.Voice, profile.Voice)
	}
	if settings.IncludeCaptions && script != "" {
		plan.Captions = true
		plan.CaptionStyle = settings.CaptionStyle
		if plan.CaptionStyle == "" {
			plan.CaptionStyle = profile.CaptionStyle
		}
	}
	return plan, nil
}

func clampClip(seconds int) int {
	return min(max(seconds, provider.MinClipSeconds), provider.MaxClipSeconds)
}

// pick returns requested when allowed, otherwise fallback.
// ValidateSettings rejects genres, moods, voices and caption styles the
// providers do not offer. Empty values are filled from the profile.
func ValidateSettings(s domain.ProductionSettings) error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"settings.musicGenre", s.MusicGenre, provider.MusicGenres},
		{"settings.musicMood", s.MusicMood, provider.MusicMoods},
		{"settings.voice", s.Voice, provider.Voices},
		{"settings.captionStyle", string(s.CaptionStyle), captionStyles},
	}
	for _, c := range checks {
		if c.value != "" && !slices.Contains(c.allowed, c.value) {
			return &provider.ValidationError{
				Field:   c.field,
				Message: fmt.Sprintf("%q is not one of %s", c.value, strings.Join(c.allowed, ", ")),
			}
		}
	}
	return nil
}

var captionStyles = []string{string(domain.CaptionWord), string(domain.CaptionPhrase), string(domain.CaptionSentence)}

func orDefault(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

// StageEstimate is the cost of one stage.
type StageEstimate struct {
	Stage   domain.Stage `json:"stage"`
	Calls   int          `json:"calls"`
	Credits int64        `json:"credits"`
}

// CostEstimate is the predicted credit cost of a production.
type CostEstimate struct {
	ProfileID string          `json:"profileId"`
	Clips     int             `json:"clips"`
	Seconds   int             `json:"seconds"`
	Stages    []StageEstimate `json:"stages"`
	Total     int64           `json:"total"`
}

// Estimate prices req as if every adapter call succeeds.
func Estimate(req domain.ProductionRequest, profile Profile, pricing provider.Pricing) (CostEstimate, error) {
	plan, err := BuildPlan(req, profile)
	if err != nil {
		return CostEstimate{}, err
	}
	return plan.Estimate(pricing), nil
}

// Estimate prices the plan.
func (p Plan) Estimate(pricing provider.Pricing) CostEstimate {
	est := CostEstimate{ProfileID: p.Profile.ID, Clips: len(p.Clips), Seconds: p.Seconds()}
	add := func(stage domain.Stage, calls int, credits int64) {
		est.Stages = append(est.Stages, StageEstimate{Stage: stage, Calls: calls, Credits: credits})
		est.Total += credits
	}
	add(domain.StageGeneratingVideo, len(p.Clips), int64(len(p.Clips))*pricing.VideoClipCost)
	if p.Music {
		add(domain.StageGeneratingAudio, 1, pricing.MusicClipCost)
	}
	if p.Voiceover {
		add(domain.StageGeneratingVoiceover, 1, pricing.VoiceoverCost(p.Script))
	}
	if p.Captions {
		add(domain.StageGeneratingCaptions, 0, 0)
	}
	return est
}
