// Package provider holds the clients that turn one call.Descriptor into one
// outbound request to a model or machine-translation service. Clients never
// retry: every failure leaves a client as a llmerrors rate-limited,
// transient or fatal error.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
)

const (
	FamilyOpenAI          = "openai"
	FamilyTogether        = "together"
	FamilyOpenRouter      = "openrouter"
	FamilyAnthropic       = "anthropic"
	FamilyGoogle          = "google"
	FamilyGoogleTranslate = "google-translate"
	FamilyDeepL           = "deepl"
)

const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024
)

// Families lists every supported provider family.
func Families() []string {
	return []string{
		FamilyOpenAI, FamilyTogether, FamilyOpenRouter, FamilyAnthropic,
		FamilyGoogle, FamilyGoogleTranslate, FamilyDeepL,
	}
}

// Client invokes one model. A client is bound to a single registry model id
// and is shared read-only by every call of a batch.
type Client interface {
	// Name is the provider family.
	Name() string
	// ModelID is the registry id the client was built for.
	ModelID() string
	// Invoke makes exactly one request and returns the raw output text.
	Invoke(ctx context.Context, d call.Descriptor) (string, error)
}

// Config carries everything a client needs. Credentials are resolved before
// construction; clients never read the environment.
type Config struct {
	Family  string `mapstructure:"provider" json:"provider"`
	ModelID string `mapstructure:"-" json:"model_id"`
	// Model is the upstream model name sent on the wire.
	Model           string        `mapstructure:"model" json:"model"`
	APIKey          string        `mapstructure:"-" json:"-"`
	BaseURL         string        `mapstructure:"base_url" json:"base_url,omitempty"`
	MaxTokens       int           `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	ProjectID       string        `mapstructure:"project_id" json:"project_id,omitempty"`
	CredentialsFile string        `mapstructure:"credentials_file" json:"credentials_file,omitempty"`

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client `mapstructure:"-" json:"-"`
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

func (c Config) baseURL(def string) string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return def
}

// New selects the client variant for cfg.Family. Configuration problems are
// returned as *llmerrors.FatalError before any request is made.
func New(ctx context.Context, cfg Config) (Client, error) {
	family := strings.ToLower(strings.TrimSpace(cfg.Family))
	if !slices.Contains(Families(), family) {
		return nil, llmerrors.Fatal(family, fmt.Sprintf("unknown provider family %q", cfg.Family), nil)
	}
	if cfg.ModelID == "" {
		return nil, llmerrors.Fatal(family, "model id is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = cfg.ModelID
	}

	switch family {
	case FamilyOpenAI:
		// A custom base URL may point at a local server that needs no key.
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newOpenAICompatible(family, cfg, "https://api.openai.com/v1", nil), nil
	case FamilyTogether:
		if cfg.APIKey == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newOpenAICompatible(family, cfg, "https://api.together.xyz/v1", nil), nil
	case FamilyOpenRouter:
		if cfg.APIKey == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newOpenAICompatible(family, cfg, "https://openrouter.ai/api/v1", map[string]string{
			"HTTP-Referer": "https://github.com/valpere/mtbench",
			"X-Title":      "mtbench",
		}), nil
	case FamilyAnthropic:
		if cfg.APIKey == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newAnthropic(cfg), nil
	case FamilyGoogle:
		if cfg.APIKey == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newGemini(cfg), nil
	case FamilyGoogleTranslate:
		if cfg.APIKey == "" && cfg.CredentialsFile == "" {
			return nil, llmerrors.Fatal(family, fmt.Sprintf("model %s needs an api key or a credentials file", cfg.ModelID), nil)
		}
		return newGoogleTranslate(ctx, cfg)
	default: // FamilyDeepL
		if cfg.APIKey == "" {
			return nil, missingKey(family, cfg.ModelID)
		}
		return newDeepL(cfg), nil
	}
}

func missingKey(family, modelID string) error {
	return llmerrors.Fatal(family, fmt.Sprintf("api key for model %s is not set", modelID), nil)
}

// Close releases resources held by c, if it holds any.
func Close(c Client) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// checkInput rejects descriptors no service would accept.
func checkInput(family, modelID string, d call.Descriptor) error {
	if err := d.Validate(); err != nil {
		return llmerrors.Fatal(family, "invalid call", err)
	}
	if d.ModelID != modelID {
		return llmerrors.Fatal(family, fmt.Sprintf("call for model %s sent to client for %s", d.ModelID, modelID), nil)
	}
	return nil
}
