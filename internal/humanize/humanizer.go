// Package humanize rewrites third-person reference prose about the persona
// subject into the persona's own first-person voice.
package humanize

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/utils"
)

type Result struct {
	Text      string
	Humanized bool
	Category  knowledge.Category
	Opener    string
}

// rewrite transforms the whole text in one pass.
type rewrite func(text string) string

func replaceAll(pattern *regexp.Regexp, replace func(match string) string) rewrite {
	return func(text string) string {
		return pattern.ReplaceAllStringFunc(text, replace)
	}
}

// present-tense third person verbs that change form after "I".
var verbForms = map[string]string{
	"is":         "am",
	"has":        "have",
	"does":       "do",
	"teaches":    "teach",
	"says":       "say",
	"explains":   "explain",
	"writes":     "write",
	"holds":      "hold",
	"argues":     "argue",
	"states":     "state",
	"describes":  "describe",
	"emphasizes": "emphasize",
	"emphasises": "emphasise",
	"remains":    "remain",
	"believes":   "believe",
	"declares":   "declare",
	"asserts":    "assert",
}

// subjectLeaders are words after which a name starts a clause as its subject.
var subjectLeaders = map[string]bool{
	"and": true, "but": true, "or": true, "so": true, "then": true, "when": true,
	"while": true, "that": true, "because": true, "since": true, "until": true,
	"where": true, "whereas": true, "if": true, "once": true, "although": true,
	"though": true, "i": true,
}

var (
	sentenceStart = regexp.MustCompile(`(^|[.!?]\s+)([a-z])`)
	spaceBefore   = regexp.MustCompile(`\s+([,.;:!?])`)
	repeatedComma = regexp.MustCompile(`,(\s*,)+`)

	// doubled collapses the repeats left when an epithet and a name both
	// became "I": "I, I", "I I" and "I, <appositive>, I".
	doubled = []struct {
		pattern *regexp.Regexp
		replace string
	}{
		{regexp.MustCompile(`\bI,?\s+I\b`), "I"},
		{regexp.MustCompile(`\bI,(\s[^,.;:!?]+),\s+I\b`), "I,$1,"},
		{regexp.MustCompile(`(?i)\b(my)\s+my\b`), "$1"},
		{regexp.MustCompile(`(?i)\b(me)\s+me\b`), "$1"},
	}
)

// Humanizer is safe for concurrent use. Opener rotation is the only mutable
// state.
type Humanizer struct {
	rewrites   []rewrite
	openers    map[knowledge.Category][]string
	allOpeners []string
	markers    map[string]bool

	mu   sync.Mutex
	next map[knowledge.Category]int
	last string
}

func New(tables *persona.Tables) *Humanizer {
	h := &Humanizer{
		openers: make(map[knowledge.Category][]string),
		markers: make(map[string]bool, len(tables.FirstPersonMarkers)),
		next:    make(map[knowledge.Category]int),
	}

	for _, c := range knowledge.Categories() {
		h.openers[c] = tables.Openers[string(c)]
		h.allOpeners = append(h.allOpeners, tables.Openers[string(c)]...)
	}
	for _, m := range tables.FirstPersonMarkers {
		h.markers[m] = true
	}

	h.rewrites = buildRewrites(tables.Subject)
	return h
}

func buildRewrites(subject persona.Subject) []rewrite {
	aliases := subject.SortedAliases()
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		quoted[i] = regexp.QuoteMeta(a)
	}
	names := `(?:` + strings.Join(quoted, "|") + `)`

	constant := func(s string) func(string) string {
		return func(string) string { return s }
	}

	rules := []rewrite{
		replaceAll(regexp.MustCompile(`(?i)\baccording to `+names+`\b,?`), constant("As I teach,")),
		replaceAll(regexp.MustCompile(`(?i)\b`+names+`(?:'s|’s)`), constant("my")),
		replaceAll(
			regexp.MustCompile(`(?i)\b(to|by|with|for|about|of|from|on|upon|under|before)\s+`+names+`\b`),
			func(m string) string {
				return strings.Fields(m)[0] + " me"
			},
		),
	}

	for _, key := range subject.EpithetKeys() {
		rules = append(rules, replaceAll(
			regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(key)+`\b`),
			constant(subject.Epithets[key]),
		))
	}

	rules = append(rules,
		rewriteNames(regexp.MustCompile(`(?i)\b`+names+`\b(?:(\s+)([a-z]+)\b)?`)),
		replaceAll(regexp.MustCompile(`(?i)\bhe\s+([a-z]+)\b`), func(m string) string {
			return "I " + firstPersonVerb(strings.Fields(m)[1])
		}),
		replaceAll(regexp.MustCompile(`(?i)\bhe\b`), constant("I")),
		replaceAll(regexp.MustCompile(`(?i)\bhimself\b`), constant("myself")),
		replaceAll(regexp.MustCompile(`(?i)\bhim\b`), constant("me")),
		replaceAll(regexp.MustCompile(`(?i)\bhis\b`), constant("my")),
	)
	return rules
}

// rewriteNames turns a name in subject position into "I" with the following
// verb in first person, and a name anywhere else into "me". pattern captures
// the whitespace and word that follow the name.
func rewriteNames(pattern *regexp.Regexp) rewrite {
	return func(text string) string {
		matches := pattern.FindAllStringSubmatchIndex(text, -1)
		if matches == nil {
			return text
		}

		var b strings.Builder
		last := 0
		for _, m := range matches {
			b.WriteString(text[last:m[0]])
			hasNext := m[4] >= 0
			switch {
			case subjectPosition(text[:m[0]]):
				b.WriteString("I")
				if hasNext {
					b.WriteString(text[m[2]:m[3]])
					b.WriteString(firstPersonVerb(text[m[4]:m[5]]))
				}
			default:
				b.WriteString("me")
				if hasNext {
					b.WriteString(text[m[2]:m[5]])
				}
			}
			last = m[1]
		}
		b.WriteString(text[last:])
		return b.String()
	}
}

// subjectPosition reports whether a name following prefix begins a clause.
func subjectPosition(prefix string) bool {
	prefix = strings.TrimRightFunc(prefix, unicode.IsSpace)
	if prefix == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(prefix)
	if strings.ContainsRune(".!?;:,(\"“", r) {
		return true
	}
	fields := strings.Fields(prefix)
	return subjectLeaders[strings.ToLower(fields[len(fields)-1])]
}

func firstPersonVerb(verb string) string {
	if form, ok := verbForms[strings.ToLower(verb)]; ok {
		return form
	}
	return verb
}

// Humanize converts text about the subject into first person and prepends a
// category opener. Text with no first-person marker afterwards is returned
// unchanged with Humanized false.
func (h *Humanizer) Humanize(text string, category knowledge.Category) Result {
	original := text
	result := Result{Text: original, Category: category}

	rewritten := false
	for _, r := range h.rewrites {
		if next := r(text); next != text {
			rewritten = true
			text = next
		}
	}

	if rewritten {
		for _, d := range doubled {
			text = d.pattern.ReplaceAllString(text, d.replace)
		}
		text = polish(text)

		if !h.startsWithOpener(text) {
			opener := h.pickOpener(category)
			result.Opener = opener
			text = joinOpener(opener, text)
		}
	}

	if !h.hasMarker(text) {
		metrics.Humanizations.WithLabelValues("rejected").Inc()
		logger.Debug("Humanization rejected: no first-person marker",
			zap.String("category", string(category)),
		)
		result.Opener = ""
		return result
	}

	metrics.Humanizations.WithLabelValues("accepted").Inc()
	result.Text = text
	result.Humanized = true
	return result
}

func (h *Humanizer) hasMarker(text string) bool {
	for _, tok := range utils.Tokenize(text) {
		if h.markers[tok] {
			return true
		}
	}
	return false
}

func (h *Humanizer) startsWithOpener(text string) bool {
	for _, o := range h.allOpeners {
		if strings.HasPrefix(text, o) {
			return true
		}
	}
	return false
}

// pickOpener rotates through the category's openers and skips the one used
// by the previous call.
func (h *Humanizer) pickOpener(category knowledge.Category) string {
	openers := h.openers[category]
	if len(openers) == 0 {
		openers = h.openers[knowledge.CategoryOther]
	}
	if len(openers) == 0 {
		return ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.next[category] % len(openers)
	if openers[i] == h.last && len(openers) > 1 {
		i = (i + 1) % len(openers)
	}
	h.next[category] = i + 1
	h.last = openers[i]
	return openers[i]
}

func joinOpener(opener, text string) string {
	if opener == "" {
		return text
	}
	if strings.HasSuffix(opener, ",") {
		text = utils.LowerLeadingWord(text)
	}
	return opener + " " + text
}

// polish capitalises sentence starts and tidies spacing left behind by the
// rewrites.
func polish(text string) string {
	text = utils.CollapseSpaces(text)
	text = spaceBefore.ReplaceAllString(text, "$1")
	text = repeatedComma.ReplaceAllString(text, ",")

	sentences := utils.SplitSentences(text)
	for i, s := range sentences {
		sentences[i] = utils.UpperFirst(s)
	}
	text = strings.Join(sentences, " ")

	return sentenceStart.ReplaceAllStringFunc(text, strings.ToUpper)
}
