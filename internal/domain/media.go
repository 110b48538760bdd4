package domain

import "time"

// MediaKind identifies a generated asset type.
type MediaKind string

const (
	MediaImage     MediaKind = "image"
	MediaMusic     MediaKind = "music"
	MediaVoiceover MediaKind = "voiceover"
	MediaVideo     MediaKind = "video"
	MediaCaptions  MediaKind = "captions"
	MediaManifest  MediaKind = "manifest"
)

// URLType says whether an asset URL will outlive the provider's retention.
type URLType string

const (
	// URLPermanent points at durable storage.
	URLPermanent URLType = "permanent"
	// URLTemporary is a provider URL that expires (persistence failed).
	URLTemporary URLType = "temporary"
	// URLData is an inline data: URL.
	URLData URLType = "data"
)

// Asset is a generated artifact as returned to clients.
type Asset struct {
	Kind         MediaKind     `json:"kind"`
	URL          string        `json:"url"`
	URLType      URLType       `json:"urlType"`
	Path         string        `json:"path,omitempty"`
	ContentType  string        `json:"contentType,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationSecs float64       `json:"durationSeconds,omitempty"`
	SceneID      string        `json:"sceneId,omitempty"`
	PredictionID string        `json:"predictionId,omitempty"`
	Credits      int64         `json:"credits"`
}
