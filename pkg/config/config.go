package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrNoCanonicalLanguage = errors.New("canonical language is required")
	ErrNoTranslationChain  = errors.New("translation priority list is empty")
)

type Config struct {
	Server      ServerConfig
	Persona     PersonaConfig
	Language    LanguageConfig
	Translation TranslationConfig
	Knowledge   KnowledgeConfig
	Learning    LearningConfig
	Reference   ReferenceConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	LLM         LLMConfig
	Logging     LoggingConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	AllowOrigins string
}

type PersonaConfig struct {
	// TablesPath overrides the embedded persona tables when set.
	TablesPath        string
	CanonicalLanguage string
}

type LanguageConfig struct {
	LexicalThreshold float64
	BreadthBonus     float64
	Parallel         bool
}

type TranslationConfig struct {
	Priority        []string
	TimeoutSec      int
	IndicEndpoint   string
	IndicAPIKey     string
	IndicLanguages  []string
	GlossaryEnabled bool
	CacheTTLSec     int
}

type KnowledgeConfig struct {
	Path                string
	SimilarityThreshold float64
}

type LearningConfig struct {
	Mode                 string
	Threshold            float64
	AutoApproveThreshold float64
}

type ReferenceConfig struct {
	Enabled      bool
	BaseURL      string
	TimeoutSec   int
	MaxSentences int
	MinRelevance float64
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

// Load reads config.yaml (if any) and ACHARYA_ prefixed environment
// variables on top of the defaults. An explicit path skips the search.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/acharya")
	}

	v.SetEnvPrefix("ACHARYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Persona.CanonicalLanguage) == "" {
		return ErrNoCanonicalLanguage
	}
	if len(c.Translation.Priority) == 0 {
		return ErrNoTranslationChain
	}

	thresholds := map[string]float64{
		"language.lexicalThreshold":     c.Language.LexicalThreshold,
		"knowledge.similarityThreshold": c.Knowledge.SimilarityThreshold,
		"learning.threshold":            c.Learning.Threshold,
		"learning.autoApproveThreshold": c.Learning.AutoApproveThreshold,
		"reference.minRelevance":        c.Reference.MinRelevance,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}

	switch strings.ToLower(c.Learning.Mode) {
	case "auto", "manual", "disabled":
	default:
		return fmt.Errorf("invalid learning mode %q", c.Learning.Mode)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowOrigins", "*")

	v.SetDefault("persona.tablesPath", "")
	v.SetDefault("persona.canonicalLanguage", "en")

	v.SetDefault("language.lexicalThreshold", 0.25)
	v.SetDefault("language.breadthBonus", 0.2)
	v.SetDefault("language.parallel", true)

	v.SetDefault("translation.priority", []string{"indic", "llm", "glossary"})
	v.SetDefault("translation.timeoutSec", 8)
	v.SetDefault("translation.indicEndpoint", "")
	v.SetDefault("translation.indicAPIKey", "")
	v.SetDefault("translation.glossaryEnabled", true)
	v.SetDefault("translation.cacheTTLSec", 86400)

	v.SetDefault("knowledge.path", "./data/knowledge.json")
	v.SetDefault("knowledge.similarityThreshold", 0.6)

	v.SetDefault("learning.mode", "auto")
	v.SetDefault("learning.threshold", 0.7)
	v.SetDefault("learning.autoApproveThreshold", 0.9)

	v.SetDefault("reference.enabled", true)
	v.SetDefault("reference.baseURL", "https://en.wikipedia.org/wiki/")
	v.SetDefault("reference.timeoutSec", 10)
	v.SetDefault("reference.maxSentences", 4)
	v.SetDefault("reference.minRelevance", 0.5)

	v.SetDefault("sqlite.path", "./data/acharya.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.maxRequestsPerMinute", 60)
}
