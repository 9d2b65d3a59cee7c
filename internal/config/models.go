package config

import (
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/provider"
)

// ModelConfig is one entry of the model registry. The registry id is the
// map key; Model is the upstream name and defaults to the id.
type ModelConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	ProjectID         string        `mapstructure:"project_id"`
	CredentialsFile   string        `mapstructure:"credentials_file"`
}

var defaultKeyEnv = map[string]string{
	provider.FamilyOpenAI:          "OPENAI_API_KEY",
	provider.FamilyTogether:        "TOGETHER_API_KEY",
	provider.FamilyOpenRouter:      "OPENROUTER_API_KEY",
	provider.FamilyAnthropic:       "ANTHROPIC_API_KEY",
	provider.FamilyGoogle:          "GOOGLE_API_KEY",
	provider.FamilyGoogleTranslate: "GOOGLE_TRANSLATE_API_KEY",
	provider.FamilyDeepL:           "DEEPL_API_KEY",
}

// KeyEnv names the environment variable holding the API key.
func (m ModelConfig) KeyEnv() string {
	if m.APIKeyEnv != "" {
		return m.APIKeyEnv
	}
	return defaultKeyEnv[strings.ToLower(m.Provider)]
}

// ProviderConfig resolves credentials through getenv once, so no client
// touches the environment afterwards.
func (m ModelConfig) ProviderConfig(id string, getenv func(string) string) provider.Config {
	cfg := provider.Config{
		Family:          strings.ToLower(m.Provider),
		ModelID:         id,
		Model:           m.Model,
		BaseURL:         m.BaseURL,
		MaxTokens:       m.MaxTokens,
		Timeout:         m.Timeout,
		ProjectID:       m.ProjectID,
		CredentialsFile: m.CredentialsFile,
	}
	if env := m.KeyEnv(); env != "" {
		cfg.APIKey = getenv(env)
	}
	if cfg.Family == provider.FamilyGoogleTranslate && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	return cfg
}

// Limiter paces requests to RequestsPerSecond, or returns nil when the
// model is unpaced.
func (m ModelConfig) Limiter() *rate.Limiter {
	if m.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(m.RequestsPerSecond), 1)
}

// builtinModels are available without any models.yaml entry.
var builtinModels = map[string]ModelConfig{
	"gpt-4":             {Provider: provider.FamilyOpenAI, Model: "gpt-4"},
	"gpt-4o":            {Provider: provider.FamilyOpenAI, Model: "gpt-4o"},
	"gpt-4o-mini":       {Provider: provider.FamilyOpenAI, Model: "gpt-4o-mini"},
	"claude-3-5-sonnet": {Provider: provider.FamilyAnthropic, Model: "claude-3-5-sonnet-20240620"},
	"claude-3-haiku":    {Provider: provider.FamilyAnthropic, Model: "claude-3-haiku-20240307"},
	"gemini-1.5-pro":    {Provider: provider.FamilyGoogle, Model: "gemini-1.5-pro"},
	"google-translate":  {Provider: provider.FamilyGoogleTranslate, Model: "nmt"},
	"deepl":             {Provider: provider.FamilyDeepL, Model: "deepl"},
}

const defaultSystemPrompt = "You are a professional translator. Translate the user's text from {in_lang} to {out_lang}. Reply with the translation only, on a single line."

// builtinStrategies are available without any experiments.yaml entry.
var builtinStrategies = map[string]call.Strategy{
	"single_pass": {
		SystemPrompt:   defaultSystemPrompt,
		PromptTemplate: "{source}",
		Passes:         1,
		Temperature:    0,
	},
	"multi_pass": {
		SystemPrompt:   defaultSystemPrompt,
		PromptTemplate: "{source}",
		Passes:         5,
		Temperature:    0.7,
	},
}

func (c *Config) applyBuiltins() {
	if c.Models == nil {
		c.Models = map[string]ModelConfig{}
	}
	for id, m := range builtinModels {
		if _, ok := c.Models[id]; !ok {
			c.Models[id] = m
		}
	}
	for id, m := range c.Models {
		if m.Model == "" {
			m.Model = id
			c.Models[id] = m
		}
	}

	if c.Strategies == nil {
		c.Strategies = map[string]call.Strategy{}
	}
	for id, s := range builtinStrategies {
		if _, ok := c.Strategies[id]; !ok {
			c.Strategies[id] = s
		}
	}
}
