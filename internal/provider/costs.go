package provider

import (
	"unicode/utf8"

	"halcyon.studio/cinema/internal/domain"
)

// Pricing holds the credit cost of each adapter call.
type Pricing struct {
	ImageCost               int64
	VideoClipCost           int64
	MusicClipCost           int64
	VoiceoverCharsPerCredit int64
	VoiceoverMinCost        int64
}

// DefaultPricing matches the shipped configuration defaults.
func DefaultPricing() Pricing {
	return Pricing{
		ImageCost:               2,
		VideoClipCost:           10,
		MusicClipCost:           5,
		VoiceoverCharsPerCredit: 500,
		VoiceoverMinCost:        1,
	}
}

// VoiceoverCost charges per started block of characters, never below the minimum.
func (p Pricing) VoiceoverCost(text string) int64 {
	return p.VoiceoverCostForRunes(int64(utf8.RuneCountInString(text)))
}

func (p Pricing) VoiceoverCostForRunes(n int64) int64 {
	per := p.VoiceoverCharsPerCredit
	if per <= 0 {
		per = 1
	}
	cost := (n + per - 1) / per
	if cost < p.VoiceoverMinCost {
		cost = p.VoiceoverMinCost
	}
	return cost
}

// CostOf returns the fixed cost of one call of the given kind. Voiceover
// is priced by length; callers use VoiceoverCost for it.
func (p Pricing) CostOf(kind domain.MediaKind) int64 {
	switch kind {
	case domain.MediaImage:
		return p.ImageCost
	case domain.MediaVideo:
		return p.VideoClipCost
	case domain.MediaMusic:
		return p.MusicClipCost
	case domain.MediaVoiceover:
		return p.VoiceoverMinCost
	default:
		return 0
	}
}
