package production

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"halcyon.studio/cinema/internal/domain"
)

// QualityQuick is the tier forced by quick mode.
const QualityQuick = "quick"

// ErrUnknownProfile is returned when a request names a profile the
// catalog does not have.
var ErrUnknownProfile = errors.New("unknown production profile")

//go:embed profiles.yaml
var builtinProfiles []byte

// VideoPlan configures the video stage.
type VideoPlan struct {
	Resolution  string `yaml:"resolution" json:"resolution"`
	Motion      string `yaml:"motion" json:"motion"`
	ClipSeconds int    `yaml:"clip_seconds" json:"clipSeconds"`
	MaxClips    int    `yaml:"max_clips" json:"maxClips"`
}

// MusicPlan configures the audio stage.
type MusicPlan struct {
	Genre   string `yaml:"genre" json:"genre"`
	Mood    string `yaml:"mood" json:"mood"`
	Seconds int    `yaml:"seconds" json:"seconds"`
}

// Profile is a named set of production parameters.
type Profile struct {
	ID           string              `yaml:"id" json:"id"`
	Name         string              `yaml:"name" json:"name"`
	Description  string              `yaml:"description" json:"description"`
	ContentTypes []string            `yaml:"content_types" json:"contentTypes"`
	Platforms    []string            `yaml:"platforms" json:"platforms"`
	QualityTier  string              `yaml:"quality_tier" json:"qualityTier"`
	Genres       []string            `yaml:"genres" json:"genres"`
	Moods        []string            `yaml:"moods" json:"moods"`
	Video        VideoPlan           `yaml:"video" json:"video"`
	Music        MusicPlan           `yaml:"music" json:"music"`
	Voice        string              `yaml:"voice" json:"voice"`
	CaptionStyle domain.CaptionStyle `yaml:"caption_style" json:"captionStyle"`
}

// Catalog is an ordered set of profiles.
type Catalog struct {
	profiles []Profile
	byID     map[string]int
	fallback int
}

// LoadCatalog parses a YAML catalog.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("parse profiles: catalog is empty")
	}
	c := &Catalog{byID: make(map[string]int, len(doc.Profiles))}
	for _, p := range doc.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("parse profiles: profile without id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("parse profiles: duplicate id %q", p.ID)
		}
		if p.Video.MaxClips <= 0 || p.Video.ClipSeconds <= 0 {
			return nil, fmt.Errorf("parse profiles: %s: video plan needs clips", p.ID)
		}
		c.byID[p.ID] = len(c.profiles)
		c.profiles = append(c.profiles, p)
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(builtinProfiles)
	if err != nil {
		panic(err)
	}
	return c
}

// WithDefault returns a copy of the catalog that answers id when no
// hint matches any profile.
func (c *Catalog) WithDefault(id string) (*Catalog, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProfile, id)
	}
	out := *c
	out.fallback = i
	return &out, nil
}

// List returns every profile in catalog order.
func (c *Catalog) List() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Get looks a profile up by ID.
func (c *Catalog) Get(id string) (Profile, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Profile{}, false
	}
	return c.profiles[i], true
}

// SelectBestProfile scores every profile against the hints and returns
// the best match. Empty hints score nothing; ties keep catalog order.
func (c *Catalog) SelectBestProfile(contentType, targetPlatform, qualityTier, genre, mood string) Profile {
	best, bestScore := c.profiles[0], -1
	for _, p := range c.profiles {
		score := 0
		if contains(p.ContentTypes, contentType) {
			score += 4
		}
		if contains(p.Platforms, targetPlatform) {
			score += 3
		}
		if qualityTier != "" && strings.EqualFold(p.QualityTier, qualityTier) {
			score += 5
		}
		if contains(p.Genres, genre) {
			score += 2
		}
		if contains(p.Moods, mood) {
			score++
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if bestScore == 0 {
		return c.profiles[c.fallback]
	}
	return best
}

// Resolve picks the profile for req: explicit ID first, then the best
// match for its settings. Quick mode forces the quick tier.
func (c *Catalog) Resolve(req domain.ProductionRequest) (Profile, error) {
	if req.ProfileID != "" {
		p, ok := c.Get(req.ProfileID)
		if !ok {
			return Profile{}, fmt.Errorf("%w %q", ErrUnknownProfile, req.ProfileID)
		}
		if req.QuickMode {
			p = quick(p)
		}
		return p, nil
	}
	s := req.Settings
	tier := s.QualityTier
	if req.QuickMode {
		tier = QualityQuick
	}
	p := c.SelectBestProfile(s.ContentType, s.TargetPlatform, tier, s.MusicGenre, s.MusicMood)
	if req.QuickMode {
		p = quick(p)
	}
	return p, nil
}

// quick trims a profile to the quick tier limits.
func quick(p Profile) Profile {
	if p.QualityTier == QualityQuick {
		return p
	}
	p.QualityTier = QualityQuick
	p.Video.Resolution = "720p"
	p.Video.MaxClips = min(p.Video.MaxClips, 2)
	p.Video.ClipSeconds = min(p.Video.ClipSeconds, 4)
	p.Music.Seconds = min(p.Music.Seconds, 10)
	return p
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
