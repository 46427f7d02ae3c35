package knowledge

import (
	"sort"
	"strings"

	"github.com/acharya-agent/backend/pkg/utils"
)

var stopWords = map[string]bool{
	"the": true, "is": true, "at": true, "which": true, "on": true, "a": true, "an": true,
	"and": true, "or": true, "but": true, "in": true, "with": true, "to": true, "for": true,
	"of": true, "as": true, "by": true, "what": true, "who": true, "where": true, "when": true,
	"why": true, "how": true, "can": true, "could": true, "would": true, "should": true,
	"will": true, "do": true, "does": true, "did": true, "are": true, "was": true, "were": true,
	"been": true, "being": true, "have": true, "has": true, "had": true, "you": true, "your": true,
	"tell": true, "me": true, "about": true, "explain": true, "describe": true, "please": true,
	"this": true, "that": true, "these": true, "those": true, "its": true, "from": true,
}

var compoundTerms = []string{
	"adi shankara",
	"advaita vedanta",
	"brahma sutras",
	"bhagavad gita",
	"four mathas",
	"self realization",
	"non dual",
}

// Normalize folds case and whitespace and drops trailing punctuation, giving
// the key questions are unique under.
func Normalize(question string) string {
	q := utils.CollapseSpaces(strings.ToLower(question))
	return strings.TrimRight(q, " ?!.,;:")
}

// ExtractKeywords returns the sorted, de-duplicated content words of text plus
// any compound domain terms it contains (joined with underscores).
func ExtractKeywords(text string) []string {
	tokens := contentTokens(text)
	set := make(map[string]bool)
	for _, tok := range tokens {
		if len([]rune(tok)) > 2 && !stopWords[tok] {
			set[tok] = true
		}
	}

	joined := " " + strings.Join(tokens, " ") + " "
	for _, term := range compoundTerms {
		if strings.Contains(joined, " "+term+" ") {
			set[strings.ReplaceAll(term, " ", "_")] = true
		}
	}

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// CompoundTerms lists the compound domain terms present in text, in table order.
func CompoundTerms(text string) []string {
	joined := " " + strings.Join(contentTokens(text), " ") + " "
	var found []string
	for _, term := range compoundTerms {
		if strings.Contains(joined, " "+term+" ") {
			found = append(found, term)
		}
	}
	return found
}

func contentTokens(text string) []string {
	tokens := utils.Tokenize(strings.ReplaceAll(text, "-", " "))
	for i, tok := range tokens {
		tokens[i] = strings.TrimSuffix(tok, "'s")
	}
	return tokens
}

// Jaccard is |a∩b| / |a∪b| over two keyword sets. Two empty sets score 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}

	intersection := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, k := range b {
		if seen[k] {
			continue
		}
		seen[k] = true
		if set[k] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

var categoryPatterns = []struct {
	category Category
	patterns []string
}{
	{CategoryIdentity, []string{"who are you", "tell me about yourself", "introduce yourself", "yourself", "who is", "about you", "your name"}},
	{CategoryBiography, []string{"born", "birth", "life", "lived", "early", "childhood", "family", "parents", "mother", "died", "death"}},
	{CategoryTravels, []string{"travel", "travels", "traveled", "travelled", "journey", "journeys", "pilgrimage", "pilgrimages", "visit", "visited", "went to", "where did"}},
	{CategoryWorks, []string{"wrote", "write", "written", "work", "works", "commentary", "commentaries", "text", "texts", "book", "books", "composed", "hymn", "hymns", "bhashya", "matha", "mathas", "monastery", "founded", "established"}},
	{CategoryDebates, []string{"debate", "debates", "discussion", "argument", "opponent", "opponents", "mandana", "refute", "refuted"}},
	{CategorySpiritual, []string{"liberation", "moksha", "enlightenment", "realization", "meditation", "devotion", "bhakti"}},
	{CategoryPhilosophy, []string{"advaita", "vedanta", "philosophy", "teaching", "teachings", "doctrine", "principle", "concept", "maya", "brahman", "atman", "reality", "illusion", "consciousness", "self"}},
}

// Categorize assigns a category from whole-word question patterns; the first
// matching category wins.
func Categorize(question string) Category {
	q := " " + strings.Join(contentTokens(question), " ") + " "
	for _, cp := range categoryPatterns {
		for _, p := range cp.patterns {
			if strings.Contains(q, " "+p+" ") {
				return cp.category
			}
		}
	}
	return CategoryOther
}
