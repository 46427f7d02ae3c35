// Package persona holds the typed phrase, lexicon and style tables the agent
// speaks with. Tables are loaded and validated once at startup and must be
// treated as read-only afterwards.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/acharya-agent/backend/internal/knowledge"
)

//go:embed defaults.yaml
var defaultTables []byte

var ErrInvalidTables = errors.New("invalid persona tables")

// LexicalCategories are the pattern groups a romanized language may define.
var LexicalCategories = []string{
	"greetings",
	"pronouns",
	"question-forms",
	"responses",
	"action-verbs",
	"expressions",
	"quality-adjectives",
	"wellness-phrases",
	"spiritual-terms",
	"kinship-terms",
	"time-words",
	"common-verbs",
}

type Tables struct {
	CanonicalLanguage  string                       `yaml:"canonical_language"`
	Subject            Subject                      `yaml:"subject"`
	FirstPersonMarkers []string                     `yaml:"first_person_markers"`
	DomainTerms        []string                     `yaml:"domain_terms"`
	Openers            map[string][]string          `yaml:"openers"`
	Styles             Styles                       `yaml:"styles"`
	Responses          Responses                    `yaml:"responses"`
	Glossary           map[string]map[string]string `yaml:"glossary"`
	Languages          []Language                   `yaml:"languages"`

	byCode map[string]int
	byName map[string]string
}

type Subject struct {
	Name     string            `yaml:"name"`
	Aliases  []string          `yaml:"aliases"`
	Epithets map[string]string `yaml:"epithets"`
}

type Language struct {
	Code    string            `yaml:"code"`
	Name    string            `yaml:"name"`
	Names   []string          `yaml:"names"`
	Scripts []string          `yaml:"scripts"`
	Lexicon []LexicalCategory `yaml:"lexicon"`
}

// LexicalCategory is one weighted pattern group. Shared categories hold
// vocabulary that also appears in canonical-language text.
type LexicalCategory struct {
	Category string   `yaml:"category"`
	Weight   float64  `yaml:"weight"`
	Shared   bool     `yaml:"shared"`
	Patterns []string `yaml:"patterns"`
}

type Styles struct {
	Sage           SageStyle           `yaml:"sage"`
	Conversational ConversationalStyle `yaml:"conversational"`
	Scholarly      ScholarlyStyle      `yaml:"scholarly"`
}

type SageStyle struct {
	Framings    []string `yaml:"framings"`
	Connectives []string `yaml:"connectives"`
}

type ConversationalStyle struct {
	Interjections []string `yaml:"interjections"`
	Connectives   []string `yaml:"connectives"`
	FormalFramers []string `yaml:"formal_framers"`
}

type ScholarlyStyle struct {
	Attributions []string `yaml:"attributions"`
}

type Responses struct {
	Fallback       []string `yaml:"fallback"`
	LanguageSwitch string   `yaml:"language_switch"`
}

// Default returns the embedded tables.
func Default() (*Tables, error) {
	return parse(defaultTables, nil)
}

// Load reads an override file on top of the embedded defaults. An empty path
// yields the defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona tables: %w", err)
	}
	return parse(defaultTables, data)
}

func parse(base, override []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(base, &t); err != nil {
		return nil, fmt.Errorf("failed to parse default persona tables: %w", err)
	}
	if override != nil {
		if err := yaml.Unmarshal(override, &t); err != nil {
			return nil, fmt.Errorf("failed to parse persona tables: %w", err)
		}
	}

	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.buildIndex()
	return &t, nil
}

func (t *Tables) normalize() {
	t.CanonicalLanguage = strings.ToLower(strings.TrimSpace(t.CanonicalLanguage))
	for i := range t.Languages {
		lang := &t.Languages[i]
		lang.Code = strings.ToLower(strings.TrimSpace(lang.Code))
		for j, name := range lang.Names {
			lang.Names[j] = strings.ToLower(strings.TrimSpace(name))
		}
		for j := range lang.Lexicon {
			for k, p := range lang.Lexicon[j].Patterns {
				lang.Lexicon[j].Patterns[k] = strings.ToLower(strings.TrimSpace(p))
			}
		}
	}
	for i, m := range t.FirstPersonMarkers {
		t.FirstPersonMarkers[i] = strings.ToLower(m)
	}
	for i, d := range t.DomainTerms {
		t.DomainTerms[i] = strings.ToLower(d)
	}
}

// Validate checks the tables for completeness against the supported language
// set and the knowledge categories.
func (t *Tables) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t.CanonicalLanguage == "" {
		add("canonical language is not set")
	}
	if t.Subject.Name == "" {
		add("subject name is not set")
	}
	if len(t.FirstPersonMarkers) == 0 {
		add("no first-person markers")
	}

	codes := make(map[string]bool)
	names := make(map[string]string)
	validCategory := make(map[string]bool)
	for _, c := range LexicalCategories {
		validCategory[c] = true
	}

	for _, lang := range t.Languages {
		if lang.Code == "" || lang.Name == "" {
			add("language %q is missing a code or display name", lang.Name)
			continue
		}
		if codes[lang.Code] {
			add("duplicate language code %q", lang.Code)
		}
		codes[lang.Code] = true

		if len(lang.Names) == 0 {
			add("language %q has no request names", lang.Code)
		}
		for _, name := range lang.Names {
			if owner, ok := names[name]; ok && owner != lang.Code {
				add("name %q is claimed by both %q and %q", name, owner, lang.Code)
			}
			names[name] = lang.Code
		}

		for _, script := range lang.Scripts {
			if _, ok := unicode.Scripts[script]; !ok {
				add("language %q uses unknown script %q", lang.Code, script)
			}
		}

		for _, cat := range lang.Lexicon {
			if !validCategory[cat.Category] {
				add("language %q has unknown lexical category %q", lang.Code, cat.Category)
			}
			if cat.Weight <= 0 {
				add("language %q category %q has non-positive weight", lang.Code, cat.Category)
			}
			if len(cat.Patterns) == 0 {
				add("language %q category %q has no patterns", lang.Code, cat.Category)
			}
		}
	}

	if t.CanonicalLanguage != "" && !codes[t.CanonicalLanguage] {
		add("canonical language %q is not a supported language", t.CanonicalLanguage)
	}

	for _, cat := range knowledge.Categories() {
		if len(t.Openers[string(cat)]) == 0 {
			add("no openers for category %q", cat)
		}
	}

	for code := range t.Glossary {
		if !codes[code] {
			add("glossary for unsupported language %q", code)
		}
	}

	if len(t.Styles.Sage.Framings) == 0 || len(t.Styles.Sage.Connectives) == 0 {
		add("sage style tables are empty")
	}
	if len(t.Styles.Conversational.Interjections) == 0 || len(t.Styles.Conversational.Connectives) == 0 {
		add("conversational style tables are empty")
	}
	if len(t.Styles.Scholarly.Attributions) == 0 {
		add("scholarly style table is empty")
	}
	if len(t.Responses.Fallback) == 0 {
		add("no fallback responses")
	}
	if !strings.Contains(t.Responses.LanguageSwitch, "%s") {
		add("language switch response must contain %%s")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTables, strings.Join(problems, "; "))
	}
	return nil
}

func (t *Tables) buildIndex() {
	t.byCode = make(map[string]int, len(t.Languages))
	t.byName = make(map[string]string)
	for i, lang := range t.Languages {
		t.byCode[lang.Code] = i
		for _, name := range lang.Names {
			t.byName[name] = lang.Code
		}
	}
}

func (t *Tables) Language(code string) (Language, bool) {
	i, ok := t.byCode[strings.ToLower(code)]
	if !ok {
		return Language{}, false
	}
	return t.Languages[i], true
}

// ResolveName maps a language name token (English, alias or native script) to
// its code.
func (t *Tables) ResolveName(name string) (string, bool) {
	code, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// LanguageNames lists every resolvable name, longest first.
func (t *Tables) LanguageNames() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

func (t *Tables) DisplayName(code string) string {
	if lang, ok := t.Language(code); ok {
		return lang.Name
	}
	return code
}

// EpithetKeys returns the epithet phrases longest first so that longer
// phrases win over their prefixes.
func (s Subject) EpithetKeys() []string {
	keys := make([]string, 0, len(s.Epithets))
	for k := range s.Epithets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// SortedAliases returns the subject name and aliases longest first.
func (s Subject) SortedAliases() []string {
	seen := map[string]bool{}
	all := make([]string, 0, len(s.Aliases)+1)
	for _, a := range append([]string{s.Name}, s.Aliases...) {
		if a == "" || seen[strings.ToLower(a)] {
			continue
		}
		seen[strings.ToLower(a)] = true
		all = append(all, a)
	}
	sort.SliceStable(all, func(i, j int) bool { return len(all[i]) > len(all[j]) })
	return all
}
