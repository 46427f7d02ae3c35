package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/logger"
)

// Teacher stores a manually curated question and answer.
type Teacher interface {
	Teach(question, answer string) (knowledge.UpsertResult, error)
}

// Pair is one question with its answer as read from an import file.
type Pair struct {
	Question string
	Answer   string
	Line     int
}

type Report struct {
	Imported int      `json:"imported"`
	Merged   int      `json:"merged"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type Processor struct {
	teacher Teacher
}

func NewProcessor(teacher Teacher) *Processor {
	return &Processor{teacher: teacher}
}

// ParseQA reads "Q:" and "A:" lines. Answer text continues over following
// non-empty lines until a blank line or the next question.
func ParseQA(r io.Reader) ([]Pair, error) {
	var (
		pairs    []Pair
		question string
		qLine    int
		answer   []string
		inAnswer bool
	)

	flush := func() {
		if question != "" && len(answer) > 0 {
			a := strings.TrimSpace(strings.Join(answer, " "))
			if a != "" {
				pairs = append(pairs, Pair{Question: question, Answer: a, Line: qLine})
			}
		}
		question, answer, inAnswer = "", nil, false
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			if inAnswer {
				flush()
			}
		case hasPrefixFold(line, "Q:"):
			flush()
			question = strings.TrimSpace(line[2:])
			qLine = n
		case hasPrefixFold(line, "A:"):
			if question == "" {
				continue
			}
			answer = []string{strings.TrimSpace(line[2:])}
			inAnswer = true
		case inAnswer:
			answer = append(answer, line)
		case question != "":
			// wrapped question text
			question += " " + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pairs: %w", err)
	}
	flush()

	return pairs, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Import teaches every pair read from r. A pair that fails to store is
// counted as skipped and the import carries on.
func (p *Processor) Import(ctx context.Context, r io.Reader) (Report, error) {
	pairs, err := ParseQA(r)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		res, err := p.teacher.Teach(pair.Question, pair.Answer)
		if err != nil {
			rep.Skipped++
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: %v", pair.Line, err))
			logger.Warn("Skipping pair",
				zap.Int("line", pair.Line),
				zap.String("question", pair.Question),
				zap.Error(err),
			)
			continue
		}
		if res.Inserted {
			rep.Imported++
		} else {
			rep.Merged++
		}
		metrics.DocumentsProcessed.Inc()
	}

	logger.Info("Import finished",
		zap.Int("imported", rep.Imported),
		zap.Int("merged", rep.Merged),
		zap.Int("skipped", rep.Skipped),
	)
	return rep, nil
}

// ImportFile imports a plain text file, or an HTML page whose paragraphs
// carry the same Q:/A: layout.
func (p *Processor) ImportFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	logger.Info("Importing pairs", zap.String("path", path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err := htmlToLines(f)
		if err != nil {
			return Report{}, err
		}
		return p.Import(ctx, strings.NewReader(text))
	default:
		return p.Import(ctx, f)
	}
}

// htmlToLines flattens block elements into lines, leaving a blank line
// after each so every paragraph ends an answer.
func htmlToLines(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, dt, dd").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		b.WriteString(text)
		if hasPrefixFold(text, "Q:") {
			b.WriteString("\n")
			return
		}
		b.WriteString("\n\n")
	})
	return b.String(), nil
}
