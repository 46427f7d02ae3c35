package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/pkg/utils"
)

func newTestClassifier(t *testing.T, cfg Config) *Classifier {
	t.Helper()
	tables, err := persona.Default()
	require.NoError(t, err)
	return New(tables, cfg)
}

var corpus = []string{
	"",
	"   ",
	"?!",
	"Who are you?",
	"what is advaita vedanta",
	"enthanu advaita vedanta",
	"njan innu nalla",
	"speak in malayalam",
	"Malayalam",
	"explain maya in hindi please",
	"ശങ്കരാചാര്യർ ആരാണ്?",
	"आदि शंकराचार्य कौन थे?",
	"ஆதி சங்கரர் யார்?",
	"kya aap advaita samjhao",
	"vanakkam, enna vishayam?",
	"¿Quién es Shankara?",
	"日本語で話して",
	"12345",
}

func TestClassifyAlwaysReturnsBoundedResult(t *testing.T) {
	c := newTestClassifier(t, Config{})
	states := []Session{{}, {ActiveLanguage: "ml"}}

	for _, state := range states {
		for _, utterance := range corpus {
			r := c.Classify(utterance, state)
			assert.NotEmpty(t, r.Language, utterance)
			assert.NotEmpty(t, r.Method, utterance)
			assert.GreaterOrEqual(t, r.Confidence, 0.0, utterance)
			assert.LessOrEqual(t, r.Confidence, 1.0, utterance)
		}
	}
}

func TestClassifyExplicitRequest(t *testing.T) {
	c := newTestClassifier(t, Config{})

	tests := []struct {
		utterance string
		want      string
	}{
		{"speak in malayalam", "ml"},
		{"Please explain maya in Hindi", "hi"},
		{"tell me about your life in tamil", "ta"},
		{"can you reply in english now", "en"},
		{"continue language telugu", "te"},
		{"Malayalam", "ml"},
		{"malayalam please", "ml"},
		{"in hindi please", "hi"},
		{"speak german", "de"},
		{"മലയാളം", "ml"},
		{"answer in हिंदी", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			r := c.Classify(tt.utterance, Session{})
			assert.Equal(t, Result{Language: tt.want, Confidence: ExplicitConfidence, Method: MethodExplicit}, r)
		})
	}
}

func TestClassifyLanguageNameInQuestionIsNotRequest(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("what is the tamil word for peace", Session{})
	assert.Equal(t, MethodDefault, r.Method)
	assert.Equal(t, "en", r.Language)
}

func TestClassifyExplicitBeatsScript(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("ശങ്കരൻ ആരാണ്? reply in hindi", Session{})
	assert.Equal(t, "hi", r.Language)
	assert.Equal(t, MethodExplicit, r.Method)
	assert.Equal(t, ExplicitConfidence, r.Confidence)
}

func TestClassifyScript(t *testing.T) {
	c := newTestClassifier(t, Config{})

	tests := []struct {
		utterance string
		want      string
	}{
		{"ശങ്കരാചാര്യർ ആരാണ്?", "ml"},
		{"आदि शंकराचार्य कौन थे?", "hi"},
		{"ஆதி சங்கரர் யார்?", "ta"},
		{"ఆది శంకరులు ఎవరు?", "te"},
		{"ಆದಿ ಶಂಕರರು ಯಾರು?", "kn"},
		{"Кто такой Шанкара?", "ru"},
		{"who is ശങ്കരൻ", "ml"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := c.Classify(tt.utterance, Session{ActiveLanguage: "hi"})
			assert.Equal(t, Result{Language: tt.want, Confidence: ScriptConfidence, Method: MethodScript}, r)
		})
	}
}

func TestClassifyRomanizedMalayalam(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("enthanu advaita vedanta", Session{})
	assert.Equal(t, "ml", r.Language)
	assert.Equal(t, MethodLexical, r.Method)
	assert.GreaterOrEqual(t, r.Confidence, DefaultLexicalThreshold)
}

func TestClassifyRomanizedOtherLanguages(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("kya aap advaita samjhao", Session{})
	assert.Equal(t, "hi", r.Language)
	assert.Equal(t, MethodLexical, r.Method)

	r = c.Classify("vanakkam, enna vishayam?", Session{})
	assert.Equal(t, "ta", r.Language)
	assert.Equal(t, MethodLexical, r.Method)
}

func TestClassifySharedVocabularyAloneIsCanonical(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("what is advaita vedanta and maya", Session{})
	assert.Equal(t, Result{Language: "en", Confidence: 0, Method: MethodDefault}, r)
}

func TestClassifyThresholdIsConfigurable(t *testing.T) {
	utterance := "sheri, what is the meaning of maya here"

	r := newTestClassifier(t, Config{}).Classify(utterance, Session{})
	assert.Equal(t, "ml", r.Language)
	assert.Equal(t, MethodLexical, r.Method)

	r = newTestClassifier(t, Config{LexicalThreshold: 0.5}).Classify(utterance, Session{})
	assert.Equal(t, "en", r.Language)
	assert.Equal(t, MethodDefault, r.Method)
}

func TestLexicalBreadthBonus(t *testing.T) {
	c := newTestClassifier(t, Config{})
	ml := c.lexicons[0]
	require.Equal(t, "ml", ml.code)

	repeated, ok := c.score(ml, utils.Tokenize("njan njan njan"))
	require.True(t, ok)
	assert.InDelta(t, 1.8, repeated, 1e-9)

	broad, ok := c.score(ml, utils.Tokenize("njan innu nalla"))
	require.True(t, ok)
	assert.InDelta(t, (1.8+1.2+1.2)/3+DefaultBreadthBonus, broad, 1e-9)
}

func TestClassifyDefault(t *testing.T) {
	c := newTestClassifier(t, Config{})

	r := c.Classify("who are you", Session{})
	assert.Equal(t, Result{Language: "en", Confidence: 0, Method: MethodDefault}, r)

	r = c.Classify("who are you", Session{ActiveLanguage: "ml"})
	assert.Equal(t, Result{Language: "ml", Confidence: StickyConfidence, Method: MethodDefault}, r)
}

func TestClassifyParallelMatchesSequential(t *testing.T) {
	sequential := newTestClassifier(t, Config{})
	parallel := newTestClassifier(t, Config{Parallel: true})

	for _, utterance := range append(corpus, "ശങ്കരൻ ആരാണ്? reply in hindi") {
		for _, state := range []Session{{}, {ActiveLanguage: "ta"}} {
			assert.Equal(t, sequential.Classify(utterance, state), parallel.Classify(utterance, state), utterance)
		}
	}
}

func TestStripRequest(t *testing.T) {
	c := newTestClassifier(t, Config{})

	tests := []struct {
		utterance string
		want      string
	}{
		{"explain maya in malayalam", "explain maya"},
		{"What is maya? Reply in Hindi please", "What is maya?"},
		{"explain in tamil what maya is", "what maya is"},
		{"speak in malayalam", ""},
		{"Malayalam please", ""},
		{"please continue in english", ""},
		{"speak german", ""},
		{"who are you", "who are you"},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, c.StripRequest(tt.utterance))
		})
	}
}

func TestSessionApply(t *testing.T) {
	s := Session{}

	s = s.Apply(Result{Language: "ml", Method: MethodExplicit}, "en")
	assert.True(t, s.Sticky())
	assert.Equal(t, "ml", s.ActiveLanguage)

	s = s.Apply(Result{Language: "hi", Method: MethodScript}, "en")
	assert.Equal(t, "ml", s.ActiveLanguage)

	s = s.Apply(Result{Language: "ta", Method: MethodExplicit}, "en")
	assert.Equal(t, "ta", s.ActiveLanguage)

	s = s.Apply(Result{Language: "en", Method: MethodExplicit}, "en")
	assert.False(t, s.Sticky())
}
