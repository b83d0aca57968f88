package poem

import (
	"strings"

	"github.com/chronoverse/chronoverse-api/pkg/api"
)

// toneStyles gives every tone a short style description that gets
// interpolated into the prompt.
var toneStyles = map[api.Tone]string{
	api.ToneWhimsical: "light, playful metaphors; gentle alliteration",
	api.ToneStoic:     "calm, restrained, simple diction",
	api.ToneWistful:   "short, soft, nostalgia",
	api.ToneFunny:     "wry, amusing humor",
	api.ToneHaiku:     "write exactly 3 lines with 5/7/5 syllables inlcuding the time.",
	api.ToneNoir:      "moody, cinematic; concrete imagery",
	api.ToneMinimal:   "ultra-brief; no adjectives",
	api.ToneCosmic:    "space/time motifs; awe",
	api.ToneNature:    "earthy, seasonal imagery; weather and growing things",
	api.ToneRomantic:  "warm, tender; soft candlelit imagery",
	api.ToneSpooky:    "eerie, shadowed; a playful chill",
}

// StyleFor returns the prompt style line for a tone.
func StyleFor(tone api.Tone) string {
	return toneStyles[tone]
}

// BuildPrompt assembles the fixed instruction template. timeUsed must
// already have its AM/PM markers stripped; the daypart carries that
// signal without anchoring the model on meridiem tokens.
func BuildPrompt(timeUsed string, tone api.Tone, daypart, extraHint string) string {
	var b strings.Builder
	b.WriteString("You are a Master Poet writing brief, time-aware poems.\n")
	b.WriteString("<<RULES>>\n")
	b.WriteString("- Write a short poem that includes the time exactly once.\n")
	b.WriteString("- Write the time anywhere in the poem (number or english form).\n")
	b.WriteString("- Length: ≤ 3 lines and <180 characters.\n")
	b.WriteString("- Voice: punchy, fun, accessible; prefer concrete images and active verbs.\n")
	b.WriteString("- Output the poem only.\n")
	b.WriteString("- Mind the input but it's optional to include in poem text.\n")
	b.WriteString("<<INPUT>>\n")
	b.WriteString("time: " + timeUsed + "\n")
	b.WriteString("daypart: " + daypart + "\n")
	b.WriteString("tone: " + string(tone) + "\n")
	b.WriteString("style: " + StyleFor(tone) + "\n")
	if extraHint != "" {
		b.WriteString(extraHint + "\n")
	}
	b.WriteString("<<OUTPUT>>\n")
	return b.String()
}
