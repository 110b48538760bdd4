package domain

import (
	"fmt"
	"time"
)

// Stage is a production pipeline state.
type Stage string

const (
	StageInitializing        Stage = "initializing"
	StageGeneratingVideo     Stage = "generating_video"
	StageGeneratingAudio     Stage = "generating_audio"
	StageGeneratingVoiceover Stage = "generating_voiceover"
	StageGeneratingCaptions  Stage = "generating_captions"
	StageMixing              Stage = "mixing"
	StageComplete            Stage = "complete"
	StageFailed              Stage = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// CaptionStyle selects caption segmentation.
type CaptionStyle string

const (
	CaptionWord     CaptionStyle = "word"
	CaptionPhrase   CaptionStyle = "phrase"
	CaptionSentence CaptionStyle = "sentence"
)

// Scene is one video segment of an episode.
type Scene struct {
	ID       string  `json:"id"`
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration,omitempty"` // seconds
}

// ProductionSettings toggles optional stages and steers profile selection.
type ProductionSettings struct {
	IncludeMusic     bool         `json:"includeMusic"`
	IncludeVoiceover bool         `json:"includeVoiceover"`
	IncludeCaptions  bool         `json:"includeCaptions"`
	MusicGenre       string       `json:"musicGenre,omitempty"`
	MusicMood        string       `json:"musicMood,omitempty"`
	Voice            string       `json:"voice,omitempty"`
	CaptionStyle     CaptionStyle `json:"captionStyle,omitempty"`
	ContentType      string       `json:"contentType,omitempty"`
	TargetPlatform   string       `json:"targetPlatform,omitempty"`
	QualityTier      string       `json:"qualityTier,omitempty"`
}

// ProductionRequest asks for one episode.
type ProductionRequest struct {
	ProjectID      string             `json:"projectId"`
	UserID         string             `json:"-"`
	Prompt         string             `json:"prompt,omitempty"`
	Scenes         []Scene            `json:"scenes,omitempty"`
	Script         string             `json:"script,omitempty"`
	TargetDuration float64            `json:"targetDuration"` // seconds
	Settings       ProductionSettings `json:"settings"`
	ProfileID      string             `json:"profileId,omitempty"`
	QuickMode      bool               `json:"quickMode,omitempty"`
}

// EffectiveScenes returns the explicit scenes, or one scene built from
// Prompt spanning TargetDuration.
func (r ProductionRequest) EffectiveScenes() []Scene {
	if len(r.Scenes) > 0 {
		out := make([]Scene, len(r.Scenes))
		for i, s := range r.Scenes {
			if s.ID == "" {
				s.ID = fmt.Sprintf("scene-%d", i+1)
			}
			out[i] = s
		}
		return out
	}
	if r.Prompt == "" {
		return nil
	}
	return []Scene{{ID: "scene-1", Prompt: r.Prompt, Duration: r.TargetDuration}}
}

// Progress is one event on a production's progress stream.
type Progress struct {
	Stage Stage `json:"stage"`
	// Progress is 0-100 and never decreases within a run.
	Progress    int    `json:"progress"`
	CurrentTask string `json:"currentTask"`
	// EstimatedTimeRemaining is in seconds.
	EstimatedTimeRemaining int `json:"estimatedTimeRemaining"`
}

// PendingPrediction is a provider job still running when its stage gave up.
type PendingPrediction struct {
	Stage        Stage     `json:"stage"`
	Kind         MediaKind `json:"kind"`
	PredictionID string    `json:"predictionId"`
}

// StageWarning records an optional stage that produced nothing.
type StageWarning struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// ProductionResult is the outcome of one production run.
type ProductionResult struct {
	Success          bool                `json:"success"`
	VideoURL         string              `json:"videoUrl,omitempty"`
	AudioURL         string              `json:"audioUrl,omitempty"`
	VoiceoverURL     string              `json:"voiceoverUrl,omitempty"`
	CaptionsURL      string              `json:"captionsUrl,omitempty"`
	ManifestURL      string              `json:"manifestUrl,omitempty"`
	CreditsUsed      int64               `json:"creditsUsed"`
	ProcessingTimeMs int64               `json:"processingTime"`
	Progress         Progress            `json:"progress"`
	Assets           []Asset             `json:"assets,omitempty"`
	Pending          []PendingPrediction `json:"pending,omitempty"`
	Warnings         []StageWarning      `json:"warnings,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// RunStatus is the lifecycle of an asynchronous production run.
type RunStatus string

const (
	RunQueued   RunStatus = "queued"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// ProductionRun tracks an asynchronous production.
type ProductionRun struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	ProjectID      string            `json:"projectId"`
	Status         RunStatus         `json:"status"`
	Progress       Progress          `json:"progress"`
	Request        ProductionRequest `json:"request"`
	Result         *ProductionResult `json:"result,omitempty"`
	CreditsCharged int64             `json:"creditsCharged"`
	CreditsPending bool              `json:"creditsPending,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
