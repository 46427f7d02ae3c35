package humanize

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/persona"
)

func newHumanizer(t *testing.T) (*Humanizer, *persona.Tables) {
	t.Helper()
	tables, err := persona.Default()
	require.NoError(t, err)
	return New(tables), tables
}

func TestHumanizeBiographyScenario(t *testing.T) {
	h, tables := newHumanizer(t)

	res := h.Humanize("Adi Shankara was born in Kaladi and taught Advaita.", knowledge.CategoryBiography)
	require.True(t, res.Humanized)
	assert.Contains(t, tables.Openers["biography"], res.Opener)
	assert.True(t, strings.HasPrefix(res.Text, res.Opener))
	assert.Contains(t, res.Text, "I was born in Kaladi and taught Advaita.")
	assert.NotContains(t, res.Text, "Shankara")
	assert.Equal(t, "Let me tell you about my life. I was born in Kaladi and taught Advaita.", res.Text)
}

func TestHumanizeRewrites(t *testing.T) {
	h, _ := newHumanizer(t)

	cases := []struct {
		in       string
		contains []string
		absent   []string
	}{
		{
			in:       "Shankara's commentaries explain the Upanishads. He wrote them young.",
			contains: []string{"My commentaries explain the Upanishads.", "I wrote them young."},
			absent:   []string{"Shankara", "He "},
		},
		{
			in:       "According to Shankara, the world is an appearance.",
			contains: []string{"as I teach, the world is an appearance."},
		},
		{
			in:       "Shankara teaches that Brahman alone is real. His disciples followed him.",
			contains: []string{"I teach that Brahman alone is real.", "My disciples followed me."},
		},
		{
			in:       "Shankaracharya is regarded as the founder of four mathas.",
			contains: []string{"I am regarded as the founder of four mathas."},
		},
		{
			in:       "The sage travelled on foot. Many debated with Adi Shankara.",
			contains: []string{"I, in my understanding of the Self, travelled on foot.", "Many debated with me."},
		},
		{
			in:       "He devoted himself to teaching.",
			contains: []string{"I devoted myself to teaching."},
		},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			res := h.Humanize(tc.in, knowledge.CategoryOther)
			require.True(t, res.Humanized)
			for _, c := range tc.contains {
				assert.Contains(t, res.Text, c)
			}
			for _, a := range tc.absent {
				assert.NotContains(t, res.Text, a)
			}
		})
	}
}

func TestHumanizeCollapsesDoubledMarkers(t *testing.T) {
	h, _ := newHumanizer(t)

	res := h.Humanize("I Shankara was born in Kaladi.", knowledge.CategoryBiography)
	require.True(t, res.Humanized)
	assert.Contains(t, res.Text, "I was born in Kaladi.")
	assert.NotContains(t, res.Text, "I I")
}

func TestHumanizeFirstPersonIsIdempotent(t *testing.T) {
	h, _ := newHumanizer(t)

	inputs := []string{
		"I was born in Kaladi and taught Advaita.",
		"My teacher was Govinda Bhagavatpada. I wrote commentaries on the Brahma Sutras.",
		"Let me tell you about my life. I was born in Kaladi.",
	}
	for _, in := range inputs {
		res := h.Humanize(in, knowledge.CategoryBiography)
		assert.True(t, res.Humanized, in)
		assert.Equal(t, in, res.Text)
		assert.Empty(t, res.Opener)
	}

	first := h.Humanize("Adi Shankara was born in Kaladi.", knowledge.CategoryBiography)
	second := h.Humanize(first.Text, knowledge.CategoryBiography)
	assert.Equal(t, first.Text, second.Text)
}

func TestHumanizeQualityGate(t *testing.T) {
	h, _ := newHumanizer(t)

	in := "Maya is the cosmic illusion that veils Brahman."
	res := h.Humanize(in, knowledge.CategoryPhilosophy)
	assert.False(t, res.Humanized)
	assert.Equal(t, in, res.Text)
	assert.Empty(t, res.Opener)

	res = h.Humanize("", knowledge.CategoryOther)
	assert.False(t, res.Humanized)
	assert.Empty(t, res.Text)
}

func TestOpenerRotation(t *testing.T) {
	h, tables := newHumanizer(t)
	openers := tables.Openers["philosophy"]

	var prev string
	seen := map[string]bool{}
	for i := 0; i < len(openers)*2; i++ {
		res := h.Humanize("Shankara taught that the Self is Brahman.", knowledge.CategoryPhilosophy)
		require.True(t, res.Humanized)
		assert.NotEqual(t, prev, res.Opener)
		prev = res.Opener
		seen[res.Opener] = true
	}
	assert.Len(t, seen, len(openers))
}

func TestOpenerLowercasesFollowingText(t *testing.T) {
	h, _ := newHumanizer(t)

	res := h.Humanize("Shankara taught Advaita.", knowledge.CategoryPhilosophy)
	assert.Equal(t, "Regarding my philosophical teaching, I taught Advaita.", res.Text)

	res = h.Humanize("Shankara's teacher was Govinda.", knowledge.CategoryPhilosophy)
	assert.Equal(t, "In terms of the truth I have realized and shared, my teacher was Govinda.", res.Text)
}

func TestHumanizeConcurrent(t *testing.T) {
	h, _ := newHumanizer(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.Humanize("Adi Shankara travelled across India.", knowledge.CategoryTravels)
			assert.True(t, res.Humanized)
			assert.Contains(t, res.Text, "I travelled across India.")
		}()
	}
	wg.Wait()
}

func TestHumanizeNameAsObject(t *testing.T) {
	h, _ := newHumanizer(t)

	res := h.Humanize("Shankara's guru was Govinda Bhagavatpada. He taught Shankara the Upanishads.", knowledge.CategoryPhilosophy)
	require.True(t, res.Humanized)
	assert.Contains(t, res.Text, "My guru was Govinda Bhagavatpada.")
	assert.Contains(t, res.Text, "taught me the Upanishads.")
	assert.NotContains(t, res.Text, "taught I")
	assert.NotContains(t, res.Text, "I the")

	res = h.Humanize("Kumarila met Shankara at Prayaga, and Shankara debated Mandana Mishra.", knowledge.CategoryDebates)
	require.True(t, res.Humanized)
	assert.Contains(t, res.Text, "Kumarila met me at Prayaga, and I debated Mandana Mishra.")
}

func TestHumanizeCollapsesEpithetNextToName(t *testing.T) {
	h, _ := newHumanizer(t)

	res := h.Humanize("Adi Shankara, the philosopher, was born in Kaladi.", knowledge.CategoryBiography)
	require.True(t, res.Humanized)
	assert.Contains(t, res.Text, "I, as a seeker of ultimate truth, was born in Kaladi.")
	assert.NotContains(t, res.Text, "I, I")
	assert.NotContains(t, res.Text, ",,")

	res = h.Humanize("The sage Shankara is said to have died in Kedarnath.", knowledge.CategoryBiography)
	require.True(t, res.Humanized)
	assert.Contains(t, res.Text, "I, in my understanding of the Self, am said to have died in Kedarnath.")
	assert.NotContains(t, res.Text, "Self, I")
}

func TestOpenerKeepsProperNounCapitalised(t *testing.T) {
	h, _ := newHumanizer(t)

	res := h.Humanize("Brahman alone is real, Shankara taught.", knowledge.CategoryPhilosophy)
	require.True(t, res.Humanized)
	assert.Equal(t, "Regarding my philosophical teaching, Brahman alone is real, I taught.", res.Text)
}
