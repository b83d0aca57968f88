// Package directive picks one tiny supplementary instruction per poem to
// keep output fresh. The core prompt stays stable; exactly one directive
// sentence selected here is appended to it.
package directive

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Word banks. Grow over time; move to YAML if they get large.
var places = []string{
	"beach dune", "bus-stop bench", "rooftop edge", "diner booth",
	"ferry deck", "library", "alley loading dock", "parking lot median",
	"laundromat aisle", "under a tree", "train platform", "underpass",
	"porch steps", "fire escape", "office break room", "waiting room",
	"hospital corridor", "airport gate", "bodega aisle", "bridge",
	"drive-thru lane", "vacant lot", "motel balcony", "bus shelter",
	"subway car", "skate-park edge", "school bleachers", "cemetery path",
	"farmers-market", "river levee", "diner counter", "porch swing",
	"front stoop",
}

var colors = []string{
	"indigo", "ochre", "rust", "lilac", "cobalt", "sage", "marigold",
	"teal", "ivory", "amber", "coral", "mint", "mauve", "navy", "slate",
	"rose", "burgundy", "forest", "mustard",
}

var motionVerbs = []string{
	"drift", "swerve", "scuff", "shuffle", "jolt", "shiver", "sidle",
	"veer", "tilt", "stall", "skid", "skim", "glide", "creep", "amble",
	"lurch", "tremble", "quiver", "teeter", "wobble", "pivot", "dart",
	"slip", "bob",
}

var materials = []string{
	"tin", "denim", "plywood", "basalt", "vinyl", "rebar", "terracotta",
	"cork", "graphite",
}

var voices = []string{
	"second person ('you')", "first plural ('we')", "overheard dialogue",
	"note-to-self",
}

var forms = []string{
	"monostich (1 line)", "two lines with a colon in L1",
	"three-item list", "one-sentence poem (≤120 chars)",
	"one long line (≤180 chars)", "two sentences; second begins 'but'",
	"question-only (≤80 chars)", "abecedarian fragment (A,B)",
}

var lightWeather = []string{
	"sodium light", "neon wash", "dawn-blue", "rain mist", "heat shimmer",
	"fog halo", "flickering fluorescent", "overcast glare", "TV blue",
	"siren flash", "snow glow", "smoke haze",
}

// Directive is one registered micro-directive. AllowTones, when non-nil,
// restricts the directive to those tones.
type Directive struct {
	ID         string
	AllowTones map[string]bool
	Render     func(rng *rand.Rand) string
}

// bucketOrder rotates a thematic category across the day; unmapped
// buckets fall back to the full directive set until their banks exist.
var bucketOrder = []string{
	"place", "sensory", "object", "motionverb", "light", "voice", "form",
	"material", "color", "geography", "figurative", "lens", "microbeat",
	"sound", "digit",
}

var bucketMap = map[string][]string{
	"place":      {"place"},
	"motionverb": {"motionverb"},
	"light":      {"light"},
	"voice":      {"voice"},
	"form":       {"form"},
	"material":   {"material"},
	"color":      {"color"},
}

const (
	recentCapacity  = 64
	resampleRetries = 5
)

// Selector holds the directive registry plus a bounded memory of recently
// used ids for light repeat avoidance. Construct one per process and
// inject it; there is no package-level instance.
type Selector struct {
	mu         sync.Mutex
	rng        *rand.Rand
	directives []Directive
	recent     []string
}

func NewSelector() *Selector {
	return NewSeededSelector(time.Now().UnixNano())
}

// NewSeededSelector fixes the fallback RNG, which makes unsalted picks and
// word-bank substitution reproducible in tests.
func NewSeededSelector(seed int64) *Selector {
	choose := func(rng *rand.Rand, bank []string) string {
		return bank[rng.Intn(len(bank))]
	}

	return &Selector{
		rng: rand.New(rand.NewSource(seed)),
		directives: []Directive{
			{ID: "place", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: set it at a %s.", choose(rng, places))
			}},
			{ID: "color", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: include exactly one color word: %s.", choose(rng, colors))
			}},
			{ID: "material", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: include the word '%s' once.", choose(rng, materials))
			}},
			{ID: "motionverb", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: use one present-tense motion verb: %s.", choose(rng, motionVerbs))
			}},
			{ID: "light", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: mention the light/weather once (%s).", choose(rng, lightWeather))
			}},
			{ID: "voice", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: write in %s.", choose(rng, voices))
			}},
			{ID: "form", Render: func(rng *rand.Rand) string {
				return fmt.Sprintf("For this poem only: form = %s.", choose(rng, forms))
			}},
		},
	}
}

// Pick selects and renders a single micro-directive.
//
// minuteOfDay (0..1439) chooses the rotation bucket; tone gates directives
// that restrict themselves; a non-empty salt makes selection within the
// candidate pool deterministic per salt (the same request id always lands
// on the same directive).
func (s *Selector) Pick(minuteOfDay int, tone, salt string) (text, directiveID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := bucketOrder[((minuteOfDay%len(bucketOrder))+len(bucketOrder))%len(bucketOrder)]

	candidates := s.candidatesFor(bucket, tone)
	if len(candidates) == 0 {
		candidates = s.candidatesFor("", tone)
	}
	if len(candidates) == 0 {
		return "", ""
	}

	pickOne := func() Directive {
		if salt == "" {
			return candidates[s.rng.Intn(len(candidates))]
		}
		return candidates[hashIndex(salt, len(candidates))]
	}

	var d Directive
	accepted := false
	for i := 0; i < resampleRetries; i++ {
		d = pickOne()
		if !s.recentlyUsed(d.ID) {
			accepted = true
			break
		}
	}
	if !accepted {
		// All attempts hit recent history; accept the candidate anyway.
		d = pickOne()
	}

	s.remember(d.ID)
	return d.Render(s.rng), d.ID
}

// candidatesFor returns directives for a bucket, tone-gated. An empty
// bucket name means the full set.
func (s *Selector) candidatesFor(bucket, tone string) []Directive {
	var ids map[string]bool
	if bucket != "" {
		mapped, ok := bucketMap[bucket]
		if !ok {
			return nil
		}
		ids = make(map[string]bool, len(mapped))
		for _, id := range mapped {
			ids[id] = true
		}
	}

	var out []Directive
	for _, d := range s.directives {
		if ids != nil && !ids[d.ID] {
			continue
		}
		if d.AllowTones != nil && !d.AllowTones[tone] {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Selector) recentlyUsed(id string) bool {
	for _, r := range s.recent {
		if r == id {
			return true
		}
	}
	return false
}

func (s *Selector) remember(id string) {
	s.recent = append(s.recent, id)
	if len(s.recent) > recentCapacity {
		s.recent = s.recent[1:]
	}
}

// ResetRecent clears the repeat-avoidance memory (tests only).
func (s *Selector) ResetRecent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = nil
}

// hashIndex reduces a salt deterministically into [0, n). Keeps
// multi-process instances aligned for the same salt.
func hashIndex(salt string, n int) int {
	sum := sha256.Sum256([]byte(salt))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(n))
}
