package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Utterances are free natural language in many scripts, so only markup
// injection is screened.
var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxUtteranceLength  int
	MaxAnswerLength     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxUtteranceLength == 0 {
		cfg.MaxUtteranceLength = 2000
	}
	if cfg.MaxAnswerLength == 0 {
		cfg.MaxAnswerLength = 20000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var fields []field
		switch {
		case strings.HasSuffix(c.Path(), "/ask"):
			fields = []field{{name: "utterance", max: cfg.MaxUtteranceLength, required: true}}
		case strings.HasSuffix(c.Path(), "/knowledge"):
			fields = []field{
				{name: "question", max: cfg.MaxUtteranceLength, required: true},
				{name: "answer", max: cfg.MaxAnswerLength, required: true},
			}
		case strings.HasSuffix(c.Path(), "/feedback"):
			fields = []field{
				{name: "interaction_id", max: 64, required: true},
				{name: "comment", max: cfg.MaxAnswerLength},
			}
		default:
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		for _, f := range fields {
			if msg := f.check(req); msg != "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}
			if s, ok := req[f.name].(string); ok && containsXSS(s) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("field", f.name),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid " + f.name + " content",
				})
			}
		}

		return c.Next()
	}
}

type field struct {
	name     string
	max      int
	required bool
}

func (f field) check(req map[string]interface{}) string {
	raw, present := req[f.name]
	if !present || raw == nil {
		if f.required {
			return f.name + " is required"
		}
		return ""
	}

	s, ok := raw.(string)
	if !ok {
		return f.name + " must be a string"
	}
	s = sanitizeString(s)
	if f.required && s == "" {
		return f.name + " is required"
	}
	if utf8.RuneCountInString(s) > f.max {
		return f.name + " exceeds maximum length"
	}
	return ""
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}
