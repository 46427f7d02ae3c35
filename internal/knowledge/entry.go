// Package knowledge owns the question/answer entries the agent has learned
// and the similarity lookup over them.
package knowledge

import "time"

type Category string

const (
	CategoryIdentity   Category = "identity"
	CategoryPhilosophy Category = "philosophy"
	CategoryBiography  Category = "biography"
	CategoryTravels    Category = "travels"
	CategoryWorks      Category = "works"
	CategoryDebates    Category = "debates"
	CategorySpiritual  Category = "spiritual"
	CategoryOther      Category = "other"
)

func Categories() []Category {
	return []Category{
		CategoryIdentity,
		CategoryPhilosophy,
		CategoryBiography,
		CategoryTravels,
		CategoryWorks,
		CategoryDebates,
		CategorySpiritual,
		CategoryOther,
	}
}

func ParseCategory(s string) Category {
	for _, c := range Categories() {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

type Source string

const (
	SourceManual    Source = "manual"
	SourceLearned   Source = "learned"
	SourceReference Source = "reference"
)

func (s Source) Valid() bool {
	return s == SourceManual || s == SourceLearned || s == SourceReference
}

type Entry struct {
	ID         string     `json:"id" yaml:"id"`
	Question   string     `json:"question" yaml:"question"`
	Answer     string     `json:"answer" yaml:"answer"`
	Category   Category   `json:"category" yaml:"category"`
	Keywords   []string   `json:"keywords" yaml:"keywords"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	Source     Source     `json:"source" yaml:"source"`
	UsageCount int        `json:"usage_count" yaml:"usage_count"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
}

type UpsertResult struct {
	Entry Entry
	// Inserted is false when the entry merged into a near-duplicate.
	Inserted bool
	// Replaced reports whether the stored answer changed during a merge.
	Replaced   bool
	Similarity float64
}

type Stats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	BySource   map[Source]int   `json:"by_source"`
	TotalUsage int              `json:"total_usage"`
}
