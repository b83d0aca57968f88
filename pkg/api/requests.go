package api

// Tone is one of the fixed style labels a caller may request.
type Tone string

const (
	ToneWhimsical Tone = "Whimsical"
	ToneStoic     Tone = "Stoic"
	ToneWistful   Tone = "Wistful"
	ToneFunny     Tone = "Funny"
	ToneHaiku     Tone = "Haiku"
	ToneNoir      Tone = "Noir"
	ToneMinimal   Tone = "Minimal"
	ToneCosmic    Tone = "Cosmic"
	ToneNature    Tone = "Nature"
	ToneRomantic  Tone = "Romantic"
	ToneSpooky    Tone = "Spooky"
)

// Tones lists every accepted tone, in display order.
var Tones = []Tone{
	ToneWhimsical, ToneStoic, ToneWistful, ToneFunny, ToneHaiku,
	ToneNoir, ToneMinimal, ToneCosmic, ToneNature, ToneRomantic, ToneSpooky,
}

func (t Tone) Valid() bool {
	for _, known := range Tones {
		if t == known {
			return true
		}
	}
	return false
}

// PoemRequest is the inbound body for POST /api/v1/poem.
type PoemRequest struct {
	Tone     Tone   `json:"tone" binding:"omitempty,oneof=Whimsical Stoic Wistful Funny Haiku Noir Minimal Cosmic Nature Romantic Spooky"`
	Timezone string `json:"timezone" binding:"omitempty,timezone"`
	Format   string `json:"format" binding:"omitempty,oneof=12h 24h auto"`
	Locale   string `json:"locale,omitempty"`

	// ForceNew bypasses the minute cache and always attempts a fresh
	// upstream generation (still subject to the budget gate).
	ForceNew bool `json:"forceNew,omitempty"`
}

// ApplyDefaults fills unset fields with the documented defaults.
func (r *PoemRequest) ApplyDefaults() {
	if r.Tone == "" {
		r.Tone = ToneWistful
	}
	if r.Timezone == "" {
		r.Timezone = "America/Chicago"
	}
	if r.Format == "" {
		r.Format = "auto"
	}
	if r.Locale == "" {
		r.Locale = "en-US"
	}
}
