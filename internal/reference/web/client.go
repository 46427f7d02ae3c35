// Package web looks up reference articles about a topic and extracts their
// body text.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/circuitbreaker"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/retry"
	"github.com/acharya-agent/backend/pkg/utils"
)

const (
	DefaultBaseURL      = "https://en.wikipedia.org/wiki"
	DefaultMaxSentences = 4
	maxBodyBytes        = 4 << 20
)

var (
	ErrNotFound     = errors.New("reference article not found")
	ErrLowRelevance = errors.New("reference text is not relevant to the question")

	errTransient = errors.New("transient reference lookup failure")

	bracketed = regexp.MustCompile(`\[[^\]]*\]`)
)

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxSentences int
	UserAgent    string
}

type Client struct {
	baseURL      string
	maxSentences int
	userAgent    string
	httpClient   *http.Client
	cb           *circuitbreaker.CircuitBreaker
	retryConfig  retry.Config
}

type Option func(*Client)

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		cfg.RetryableErrors = []error{errTransient}
		c.retryConfig = cfg
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = DefaultMaxSentences
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "acharya-agent/1.0"
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxSentences: cfg.MaxSentences,
		userAgent:    cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb: circuitbreaker.NewCircuitBreaker("reference", circuitbreaker.Config{
			MaxRequests:      2,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 1,
			// a missing article is an answer, not an outage
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
			Logger: logger.GetLogger(),
		}),
		retryConfig: retry.Config{
			MaxAttempts:     2,
			InitialDelay:    250 * time.Millisecond,
			MaxDelay:        2 * time.Second,
			Multiplier:      2.0,
			JitterFraction:  0.1,
			RetryableErrors: []error{errTransient},
			Logger:          logger.GetLogger(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns up to MaxSentences sentences of the article about topic.
func (c *Client) Fetch(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrNotFound
	}
	pageURL := c.baseURL + "/" + url.PathEscape(Title(topic))

	var text string
	err := c.cb.Execute(ctx, func() error {
		var err error
		text, err = retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			return c.scrapeArticle(ctx, pageURL)
		})
		return err
	})

	switch {
	case errors.Is(err, ErrNotFound):
		text = ""
	case err != nil:
		metrics.ReferenceLookups.WithLabelValues("error").Inc()
		logger.Warn("Reference lookup failed", zap.String("topic", topic), zap.Error(err))
		return "", fmt.Errorf("failed to fetch reference for %q: %w", topic, err)
	}
	if text == "" {
		metrics.ReferenceLookups.WithLabelValues("not_found").Inc()
		logger.Debug("Reference article not found", zap.String("topic", topic))
		return "", ErrNotFound
	}

	metrics.ReferenceLookups.WithLabelValues("found").Inc()
	sentences := utils.SplitSentences(text)
	if len(sentences) > c.maxSentences {
		sentences = sentences[:c.maxSentences]
	}
	return strings.Join(sentences, " "), nil
}

func (c *Client) scrapeArticle(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("reference returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, table, sup, nav, footer, header, .mw-editsection, .navbox, .infobox, .hatnote").Remove()

	paragraphs := doc.Find("#mw-content-text p")
	if paragraphs.Length() == 0 {
		paragraphs = doc.Find("article p, main p")
	}
	if paragraphs.Length() == 0 {
		paragraphs = doc.Find("p")
	}

	var parts []string
	paragraphs.Each(func(_ int, s *goquery.Selection) {
		text := bracketed.ReplaceAllString(s.Text(), "")
		if text = utils.CollapseSpaces(text); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return "", ErrNotFound
	}
	return strings.Join(parts, " "), nil
}

// Title turns a topic into an article title: every word capitalised and
// joined with underscores.
func Title(topic string) string {
	words := strings.Fields(topic)
	for i, w := range words {
		words[i] = utils.UpperFirst(w)
	}
	return strings.Join(words, "_")
}

// Relevance is the share of expected keywords present in text.
func Relevance(text string, expected []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, k := range knowledge.ExtractKeywords(text) {
		present[k] = true
	}

	found := 0
	for _, k := range expected {
		if present[k] {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

// SelectRelevant keeps up to n sentences of text that mention one of the
// keywords, in their original order. With no such sentence the first n are
// returned.
func SelectRelevant(text string, keywords []string, n int) string {
	sentences := utils.SplitSentences(text)
	if n <= 0 || n > len(sentences) {
		n = len(sentences)
	}

	want := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		want[k] = true
	}

	var picked []string
	for _, s := range sentences {
		for _, k := range knowledge.ExtractKeywords(s) {
			if want[k] {
				picked = append(picked, s)
				break
			}
		}
		if len(picked) == n {
			break
		}
	}
	if len(picked) == 0 {
		picked = sentences[:n]
	}
	return strings.Join(picked, " ")
}
