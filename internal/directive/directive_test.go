package directive

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickDeterministicWithSalt(t *testing.T) {
	s := NewSeededSelector(1)

	_, first := s.Pick(1, "Wistful", "cv_abcdef123456")
	require.NotEmpty(t, first)

	for i := 0; i < 10; i++ {
		s.ResetRecent()
		_, id := s.Pick(1, "Wistful", "cv_abcdef123456")
		assert.Equal(t, first, id)
	}
}

func TestPickBucketRotation(t *testing.T) {
	s := NewSeededSelector(1)

	// Minute 0 maps to the "place" bucket, which only holds the place
	// directive.
	text, id := s.Pick(0, "Noir", "salt-1")
	assert.Equal(t, "place", id)
	assert.True(t, strings.HasPrefix(text, "For this poem only: set it at a "))

	// One full rotation later the same bucket comes around again.
	s.ResetRecent()
	_, id = s.Pick(len(bucketOrder), "Noir", "salt-2")
	assert.Equal(t, "place", id)
}

func TestPickUnpopulatedBucketFallsBackToFullSet(t *testing.T) {
	s := NewSeededSelector(1)

	// Minute 1 lands on "sensory", which has no directives mapped yet.
	_, id := s.Pick(1, "Funny", "some-salt")
	assert.NotEmpty(t, id)
}

func TestPickToneGating(t *testing.T) {
	s := &Selector{
		rng: rand.New(rand.NewSource(7)),
		directives: []Directive{
			{
				ID:         "haiku-only",
				AllowTones: map[string]bool{"Haiku": true},
				Render:     func(*rand.Rand) string { return "haiku directive" },
			},
			{
				ID:     "any-tone",
				Render: func(*rand.Rand) string { return "generic directive" },
			},
		},
	}

	// The gated directive never surfaces for other tones.
	for i := 0; i < 20; i++ {
		s.ResetRecent()
		_, id := s.Pick(1, "Noir", "")
		assert.Equal(t, "any-tone", id)
	}
}

func TestPickAvoidsImmediateRepeats(t *testing.T) {
	s := NewSeededSelector(42)

	// Unsalted picks over an unmapped bucket draw from the full set; the
	// recent-history check should spread ids around rather than repeating
	// the first one forever.
	seen := map[string]bool{}
	for i := 0; i < 7; i++ {
		_, id := s.Pick(1, "Cosmic", "")
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestPickAcceptsWhenEverythingIsRecent(t *testing.T) {
	s := NewSeededSelector(3)

	// Exhaust the whole set so every candidate is in recent history.
	for i := 0; i < 20; i++ {
		_, id := s.Pick(1, "Minimal", "")
		require.NotEmpty(t, id)
	}
}

func TestPickRendersWordBankSubstitution(t *testing.T) {
	s := NewSeededSelector(9)

	// Minute 7 lands on the material bucket.
	text, id := s.Pick(7, "Stoic", "material-salt")
	assert.Equal(t, "material", id)

	found := false
	for _, m := range materials {
		if strings.Contains(text, "'"+m+"'") {
			found = true
			break
		}
	}
	assert.True(t, found, "rendered text should contain a material bank word: %s", text)
}
