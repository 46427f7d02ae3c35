package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// SplitSentences segments text with prose. If the segmenter fails the whole
// text is returned as a single sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{text}
	}

	sentences := make([]string, 0, len(doc.Sentences()))
	for _, s := range doc.Sentences() {
		if trimmed := strings.TrimSpace(s.Text); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// Tokenize lowercases text and splits it into word tokens. Combining marks are
// kept so Indic words stay whole.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) || r == '\'')
	})

	tokens := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func UpperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func LowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// leadWords are words that start a sentence only because of their position.
// Anything else may be a name and keeps its capital.
var leadWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a an the this that these those there it its my our your his her
		their we you they he she in on at of as by for from to with when while after before during
		since once if so and but or many some much most all each every one what which who how why
		not now then thus here yes no`) {
		leadWords[w] = true
	}
}

// LowerLeadingWord lowercases the first letter of s when its first word is a
// common function word, so "The world" becomes "the world" but "Brahman" and
// "Kaladi" are kept.
func LowerLeadingWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(s)
	}
	if end == 0 || !leadWords[strings.ToLower(s[:end])] {
		return s
	}
	return LowerFirst(s)
}

func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
