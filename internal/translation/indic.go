package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acharya-agent/backend/pkg/retry"
)

// DefaultIndicLanguages are the pairs the specialised Indic engine handles
// against the canonical language.
var DefaultIndicLanguages = []string{"ml", "hi", "ta", "te", "kn", "mr", "gu", "bn", "pa", "or", "ur", "sa", "ne"}

// IndicBackend calls a specialised English<->Indic translation service over
// HTTP/JSON.
type IndicBackend struct {
	endpoint   string
	apiKey     string
	canonical  string
	languages  map[string]bool
	httpClient *http.Client
}

type indicRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type indicResponse struct {
	Translation string `json:"translation"`
	Error       string `json:"error,omitempty"`
}

func NewIndicBackend(endpoint, apiKey, canonical string, languages []string) *IndicBackend {
	if len(languages) == 0 {
		languages = DefaultIndicLanguages
	}
	set := make(map[string]bool, len(languages))
	for _, l := range languages {
		set[l] = true
	}

	return &IndicBackend{
		endpoint:  endpoint,
		apiKey:    apiKey,
		canonical: canonical,
		languages: set,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (b *IndicBackend) Name() string {
	return "indic"
}

func (b *IndicBackend) Supports(source, target string) bool {
	return (source == b.canonical && b.languages[target]) || (target == b.canonical && b.languages[source])
}

func (b *IndicBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(indicRequest{Text: text, SourceLanguage: source, TargetLanguage: target})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call indic service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("indic service returned status %d", resp.StatusCode)
		// client errors other than throttling will not improve on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var out indicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("indic service error: %s", out.Error)
	}
	return out.Translation, nil
}
