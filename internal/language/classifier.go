// Package language detects which language an utterance is written in or asks
// for. Classification is heuristic: explicit requests, Unicode scripts and
// weighted romanized vocabulary, in that order.
package language

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/pkg/utils"
)

type Method string

const (
	MethodExplicit Method = "explicit-request"
	MethodScript   Method = "script"
	MethodLexical  Method = "lexical-pattern"
	MethodDefault  Method = "default"
)

const (
	ExplicitConfidence = 0.95
	ScriptConfidence   = 0.9
	StickyConfidence   = 0.5

	DefaultLexicalThreshold = 0.25
	DefaultBreadthBonus     = 0.2
	breadthCategories       = 3
)

type Result struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

type Config struct {
	// LexicalThreshold gates romanized detection; the score is not capped
	// before this comparison.
	LexicalThreshold float64
	// BreadthBonus is added when matches span at least three categories.
	BreadthBonus float64
	// Parallel runs the detection stages concurrently. The winner is the
	// same either way.
	Parallel bool
}

var (
	requestVerbs = map[string]bool{
		"tell": true, "say": true, "speak": true, "explain": true, "reply": true,
		"continue": true, "answer": true, "talk": true, "respond": true,
	}
	directVerbs = map[string]bool{"speak": true, "talk": true, "reply": true, "respond": true}
	connectors  = map[string]bool{"in": true, "into": true, "language": true}
	fillers     = map[string]bool{
		"please": true, "in": true, "into": true, "language": true, "now": true, "only": true,
		"me": true, "to": true, "with": true, "can": true, "could": true, "you": true,
		"from": true, "on": true, "switch": true, "use": true, "and": true,
	}
	pleasePattern = regexp.MustCompile(`(?i)\bplease\b`)
)

type category struct {
	name    string
	weight  float64
	shared  bool
	singles map[string]bool
	phrases [][]string
}

type lexicon struct {
	code       string
	categories []category
}

type scriptOwner struct {
	code  string
	table *unicode.RangeTable
}

type Classifier struct {
	tables    *persona.Tables
	canonical string
	cfg       Config
	scripts   []scriptOwner
	lexicons  []lexicon
	request   *regexp.Regexp
	direct    *regexp.Regexp
}

func New(tables *persona.Tables, cfg Config) *Classifier {
	if cfg.LexicalThreshold <= 0 {
		cfg.LexicalThreshold = DefaultLexicalThreshold
	}
	if cfg.BreadthBonus <= 0 {
		cfg.BreadthBonus = DefaultBreadthBonus
	}

	c := &Classifier{
		tables:    tables,
		canonical: tables.CanonicalLanguage,
		cfg:       cfg,
	}

	claimed := make(map[string]bool)
	for _, lang := range tables.Languages {
		for _, script := range lang.Scripts {
			if claimed[script] {
				continue
			}
			claimed[script] = true
			c.scripts = append(c.scripts, scriptOwner{code: lang.Code, table: unicode.Scripts[script]})
		}

		if len(lang.Lexicon) == 0 {
			continue
		}
		lex := lexicon{code: lang.Code}
		for _, lc := range lang.Lexicon {
			cat := category{
				name:    lc.Category,
				weight:  lc.Weight,
				shared:  lc.Shared,
				singles: make(map[string]bool),
			}
			for _, p := range lc.Patterns {
				words := utils.Tokenize(p)
				switch len(words) {
				case 0:
				case 1:
					cat.singles[words[0]] = true
				default:
					cat.phrases = append(cat.phrases, words)
				}
			}
			lex.categories = append(lex.categories, cat)
		}
		c.lexicons = append(c.lexicons, lex)
	}

	quoted := make([]string, 0)
	for _, name := range tables.LanguageNames() {
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	names := strings.Join(quoted, "|")
	c.request = regexp.MustCompile(`(?i)(?:^|\s)(?:(?:tell|say|speak|explain|reply|continue|answer|talk|respond)(?:\s+me)?\s+)?(?:in|into|language)\s+(?:` + names + `)(?:\s+language)?(?:\s+please)?(?:[\s.,!?;:]|$)`)
	c.direct = regexp.MustCompile(`(?i)(?:^|\s)(?:speak|talk|reply|respond)\s+(?:` + names + `)(?:[\s.,!?;:]|$)`)

	return c
}

func (c *Classifier) Canonical() string {
	return c.canonical
}

// Classify returns the language the reply should be in. It never fails: when
// nothing matches it falls back to the sticky language at 0.5 or the canonical
// language at 0.
func (c *Classifier) Classify(utterance string, state Session) Result {
	tokens := utils.Tokenize(utterance)

	var (
		explicitCode, scriptCode, lexicalCode string
		explicitOK, scriptOK, lexicalOK       bool
		lexicalScore                          float64
	)

	if c.cfg.Parallel {
		var g errgroup.Group
		g.Go(func() error {
			explicitCode, explicitOK = c.explicit(tokens)
			return nil
		})
		g.Go(func() error {
			scriptCode, scriptOK = c.script(utterance)
			return nil
		})
		g.Go(func() error {
			lexicalCode, lexicalScore, lexicalOK = c.lexical(tokens)
			return nil
		})
		_ = g.Wait()
	} else {
		explicitCode, explicitOK = c.explicit(tokens)
		if !explicitOK {
			scriptCode, scriptOK = c.script(utterance)
		}
		if !explicitOK && !scriptOK {
			lexicalCode, lexicalScore, lexicalOK = c.lexical(tokens)
		}
	}

	switch {
	case explicitOK:
		return Result{Language: explicitCode, Confidence: ExplicitConfidence, Method: MethodExplicit}
	case scriptOK:
		return Result{Language: scriptCode, Confidence: ScriptConfidence, Method: MethodScript}
	case lexicalOK:
		return Result{Language: lexicalCode, Confidence: clamp(lexicalScore), Method: MethodLexical}
	case state.Sticky():
		return Result{Language: state.ActiveLanguage, Confidence: StickyConfidence, Method: MethodDefault}
	default:
		return Result{Language: c.canonical, Confidence: 0, Method: MethodDefault}
	}
}

// explicit finds "<verb> ... in|language <name>", "<speak|talk|reply> <name>",
// "in <name> please" or an utterance made of a language name and filler words.
func (c *Classifier) explicit(tokens []string) (string, bool) {
	verbSeen := false
	for i, tok := range tokens {
		if requestVerbs[tok] {
			verbSeen = true
		}
		if i+1 >= len(tokens) {
			break
		}
		code, isName := c.tables.ResolveName(tokens[i+1])
		if !isName {
			continue
		}
		if connectors[tok] && verbSeen {
			return code, true
		}
		if directVerbs[tok] {
			return code, true
		}
		if tok == "in" && i+2 < len(tokens) && tokens[i+2] == "please" {
			return code, true
		}
	}

	var code string
	for _, tok := range tokens {
		if fillers[tok] {
			continue
		}
		resolved, ok := c.tables.ResolveName(tok)
		if !ok || (code != "" && code != resolved) {
			return "", false
		}
		code = resolved
	}
	return code, code != ""
}

// script counts letters per configured Unicode script; the script with the
// most letters wins, ties going to the earlier language in the table.
func (c *Classifier) script(utterance string) (string, bool) {
	if len(c.scripts) == 0 {
		return "", false
	}

	counts := make([]int, len(c.scripts))
	for _, r := range utterance {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			continue
		}
		for i, s := range c.scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	best := -1
	for i, n := range counts {
		if n > 0 && (best < 0 || n > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return c.scripts[best].code, true
}

// lexical scores every romanized lexicon and returns the best one if it
// clears the threshold. A language needs at least one match outside its
// shared categories to qualify.
func (c *Classifier) lexical(tokens []string) (string, float64, bool) {
	if len(tokens) == 0 {
		return "", 0, false
	}

	bestCode, bestScore := "", 0.0
	for _, lex := range c.lexicons {
		score, ok := c.score(lex, tokens)
		if ok && score > bestScore {
			bestCode, bestScore = lex.code, score
		}
	}

	if bestCode == "" || bestScore < c.cfg.LexicalThreshold {
		return "", bestScore, false
	}
	return bestCode, bestScore, true
}

func (c *Classifier) score(lex lexicon, tokens []string) (float64, bool) {
	total := 0.0
	categoriesMatched := 0
	qualified := false

	for _, cat := range lex.categories {
		matches := 0
		for _, tok := range tokens {
			if cat.singles[tok] {
				matches++
			}
		}
		for _, phrase := range cat.phrases {
			matches += countPhrase(tokens, phrase)
		}
		if matches == 0 {
			continue
		}
		total += cat.weight * float64(matches)
		categoriesMatched++
		if !cat.shared {
			qualified = true
		}
	}

	score := total / float64(len(tokens))
	if categoriesMatched >= breadthCategories {
		score += c.cfg.BreadthBonus
	}
	return score, qualified
}

func countPhrase(tokens, phrase []string) int {
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

// StripRequest removes the language-request clause from an utterance so the
// rest can be answered. It returns "" when the utterance only asked for a
// language switch.
func (c *Classifier) StripRequest(utterance string) string {
	stripped := c.request.ReplaceAllString(utterance, " ")
	stripped = c.direct.ReplaceAllString(stripped, " ")
	stripped = pleasePattern.ReplaceAllString(stripped, " ")
	stripped = strings.Trim(utils.CollapseSpaces(stripped), " ,;:")

	for _, tok := range utils.Tokenize(stripped) {
		if fillers[tok] || requestVerbs[tok] {
			continue
		}
		if _, isName := c.tables.ResolveName(tok); isName {
			continue
		}
		return stripped
	}
	return ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
