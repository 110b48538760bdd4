package provider

import "time"

// Settings gathers what the adapters are built from.
type Settings struct {
	OpenAI     APIConfig
	ImageModel string
	TTSModel   string

	Replicate  APIConfig
	MusicModel string
	VideoModel string

	SyncTimeout  time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	MaxRetries   int

	Pricing Pricing
}

// Adapters is the set of generation adapters sharing one configuration.
type Adapters struct {
	Image       *ImageAdapter
	Music       *MusicAdapter
	Voiceover   *VoiceoverAdapter
	Video       *VideoAdapter
	Predictions *PredictionClient
	Resumer     *Resumer
	Pricing     Pricing
}

// NewAdapters wires every adapter against persister.
func NewAdapters(s Settings, persister Persister, opts ...Option) *Adapters {
	if s.MaxRetries > 0 {
		opts = append([]Option{WithRetryMaxAttempts(s.MaxRetries)}, opts...)
	}
	predictions := NewPredictionClient(s.Replicate, s.PollInterval, s.PollTimeout, opts...)
	return &Adapters{
		Image:       NewImageAdapter(s.OpenAI, s.ImageModel, persister, s.Pricing, s.SyncTimeout, opts...),
		Music:       NewMusicAdapter(predictions, s.MusicModel, persister, s.Pricing),
		Voiceover:   NewVoiceoverAdapter(s.OpenAI, s.TTSModel, persister, s.Pricing, s.SyncTimeout, opts...),
		Video:       NewVideoAdapter(predictions, s.VideoModel, persister, s.Pricing),
		Predictions: predictions,
		Resumer:     NewResumer(predictions, persister, s.Pricing),
		Pricing:     s.Pricing,
	}
}
