package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/query"
	"github.com/acharya-agent/backend/pkg/logger"
)

type Asker interface {
	ProcessQuery(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
}

type Evaluator struct {
	engine Asker
}

type Dataset struct {
	Items []DatasetItem `json:"items" yaml:"items"`
}

// DatasetItem is one utterance with the outcome it should produce. Empty
// expectations are not checked. Expected is compared with the canonical
// answer, so it is written in the canonical language.
type DatasetItem struct {
	Utterance       string `json:"utterance" yaml:"utterance"`
	SessionLanguage string `json:"session_language,omitempty" yaml:"session_language,omitempty"`
	Language        string `json:"language,omitempty" yaml:"language,omitempty"`
	Origin          string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Expected        string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

type Failure struct {
	Index     int    `json:"index"`
	Utterance string `json:"utterance"`
	Reason    string `json:"reason"`
}

type LanguageCount struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

type Report struct {
	Total           int                      `json:"total"`
	Errors          int                      `json:"errors"`
	LanguageChecked int                      `json:"language_checked"`
	LanguageCorrect int                      `json:"language_correct"`
	OriginChecked   int                      `json:"origin_checked"`
	OriginCorrect   int                      `json:"origin_correct"`
	AnswerChecked   int                      `json:"answer_checked"`
	AvgOverlap      float64                  `json:"avg_overlap"`
	ByLanguage      map[string]LanguageCount `json:"by_language"`
	ByMethod        map[string]int           `json:"by_method"`
	Failures        []Failure                `json:"failures,omitempty"`
}

func (r *Report) LanguageAccuracy() float64 {
	return ratio(r.LanguageCorrect, r.LanguageChecked)
}

func (r *Report) OriginAccuracy() float64 {
	return ratio(r.OriginCorrect, r.OriginChecked)
}

func NewEvaluator(engine Asker) *Evaluator {
	return &Evaluator{engine: engine}
}

// Run sends every item through the query pipeline. Items run in order and
// each one starts from its own session, so results do not depend on order
// beyond what the pipeline itself learns.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		Total:      len(dataset.Items),
		ByLanguage: make(map[string]LanguageCount),
		ByMethod:   make(map[string]int),
	}
	var totalOverlap float64

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		resp, err := e.engine.ProcessQuery(ctx, query.QueryRequest{
			Utterance: item.Utterance,
			Session:   language.Session{ActiveLanguage: item.SessionLanguage},
		})
		if err != nil {
			logger.Warn("Evaluation item failed", zap.Int("index", i), zap.Error(err))
			report.Errors++
			report.Failures = append(report.Failures, Failure{Index: i, Utterance: item.Utterance, Reason: err.Error()})
			continue
		}

		report.ByMethod[string(resp.Classification.Method)]++

		if item.Language != "" {
			report.LanguageChecked++
			lc := report.ByLanguage[item.Language]
			lc.Total++
			if resp.Language == item.Language {
				report.LanguageCorrect++
				lc.Correct++
			} else {
				report.Failures = append(report.Failures, Failure{
					Index:     i,
					Utterance: item.Utterance,
					Reason:    fmt.Sprintf("language %s, want %s (%s)", resp.Language, item.Language, resp.Classification.Method),
				})
			}
			report.ByLanguage[item.Language] = lc
		}

		if item.Origin != "" {
			report.OriginChecked++
			if string(resp.Origin) == item.Origin {
				report.OriginCorrect++
			} else {
				report.Failures = append(report.Failures, Failure{
					Index:     i,
					Utterance: item.Utterance,
					Reason:    fmt.Sprintf("origin %s, want %s", resp.Origin, item.Origin),
				})
			}
		}

		if item.Expected != "" {
			report.AnswerChecked++
			totalOverlap += knowledge.Jaccard(
				knowledge.ExtractKeywords(resp.CanonicalAnswer),
				knowledge.ExtractKeywords(item.Expected),
			)
		}
	}

	if report.AnswerChecked > 0 {
		report.AvgOverlap = totalOverlap / float64(report.AnswerChecked)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.Total),
		zap.Int("errors", report.Errors),
		zap.Float64("language_accuracy", report.LanguageAccuracy()),
		zap.Float64("origin_accuracy", report.OriginAccuracy()),
	)

	return report, nil
}

// LoadDataset reads a JSON or YAML dataset, chosen by file extension.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &dataset)
	default:
		err = json.Unmarshal(data, &dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Utterance) == "" {
			return nil, fmt.Errorf("item %d: utterance is empty", i)
		}
	}
	return &dataset, nil
}

func GenerateReport(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Total Utterances: %d
Errors: %d

Language: %d / %d correct (%.1f%%)
Origin: %d / %d correct (%.1f%%)
`,
		report.Total,
		report.Errors,
		report.LanguageCorrect, report.LanguageChecked, report.LanguageAccuracy()*100,
		report.OriginCorrect, report.OriginChecked, report.OriginAccuracy()*100,
	)
	if report.AnswerChecked > 0 {
		fmt.Fprintf(&b, "Answer keyword overlap: %.3f over %d answers\n", report.AvgOverlap, report.AnswerChecked)
	}

	if len(report.ByLanguage) > 0 {
		b.WriteString("\nBy language:\n")
		for _, code := range sortedKeys(report.ByLanguage) {
			lc := report.ByLanguage[code]
			fmt.Fprintf(&b, "- %s: %d / %d\n", code, lc.Correct, lc.Total)
		}
	}

	if len(report.ByMethod) > 0 {
		b.WriteString("\nBy detection method:\n")
		for _, m := range sortedKeys(report.ByMethod) {
			fmt.Fprintf(&b, "- %s: %d\n", m, report.ByMethod[m])
		}
	}

	if len(report.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "- #%d %q: %s\n", f.Index, f.Utterance, f.Reason)
		}
	}
	return b.String()
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
