package production

import (
	"time"

	"halcyon.studio/cinema/internal/domain"
)

// Track places one asset on the episode timeline.
type Track struct {
	Kind     domain.MediaKind `json:"kind"`
	URL      string           `json:"url"`
	SceneID  string           `json:"sceneId,omitempty"`
	Start    float64          `json:"start"`
	Duration float64          `json:"duration"`
}

// Manifest is the mixing timeline: clips back to back, with music,
// voiceover and captions laid from zero.
type Manifest struct {
	ProjectID string    `json:"projectId"`
	ProfileID string    `json:"profileId"`
	Duration  float64   `json:"duration"`
	Video     []Track   `json:"video"`
	Audio     []Track   `json:"audio,omitempty"`
	Captions  *Track    `json:"captions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BuildManifest lays the run's assets on a timeline.
func BuildManifest(projectID, profileID string, assets []domain.Asset, createdAt time.Time) Manifest {
	m := Manifest{ProjectID: projectID, ProfileID: profileID, CreatedAt: createdAt.UTC()}
	var at float64
	for _, a := range assets {
		if a.Kind != domain.MediaVideo {
			continue
		}
		m.Video = append(m.Video, Track{Kind: a.Kind, URL: a.URL, SceneID: a.SceneID, Start: at, Duration: a.DurationSecs})
		at += a.DurationSecs
	}
	m.Duration = at
	for _, a := range assets {
		switch a.Kind {
		case domain.MediaMusic, domain.MediaVoiceover:
			m.Audio = append(m.Audio, Track{Kind: a.Kind, URL: a.URL, Duration: min(a.DurationSecs, at)})
		case domain.MediaCaptions:
			m.Captions = &Track{Kind: a.Kind, URL: a.URL, Duration: a.DurationSecs}
		}
	}
	return m
}
