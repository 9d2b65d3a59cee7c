package provider

import (
	"context"
	"strings"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Messages API. The system prompt travels as the
// top-level system field.
type Anthropic struct {
	modelID  string
	model    string
	apiKey   string
	baseURL  string
	maxTok   int
	endpoint jsonEndpoint
}

func newAnthropic(cfg Config) *Anthropic {
	return &Anthropic{
		modelID:  cfg.ModelID,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.baseURL("https://api.anthropic.com"),
		maxTok:   cfg.maxTokens(),
		endpoint: jsonEndpoint{family: FamilyAnthropic, client: cfg.httpClient()},
	}
}

func (c *Anthropic) Name() string { return FamilyAnthropic }

func (c *Anthropic) ModelID() string { return c.modelID }

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Anthropic) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	if err := checkInput(FamilyAnthropic, c.modelID, d); err != nil {
		return "", err
	}

	// The Messages API caps temperature at 1.
	temperature := min(d.Temperature, 1.0)

	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTok,
		System:      d.SystemPrompt,
		Temperature: temperature,
		Messages:    []chatMessage{{Role: "user", Content: d.Prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := c.endpoint.post(ctx, c.baseURL+"/v1/messages", headers, payload, &resp); err != nil {
		return "", err
	}

	if resp.StopReason == "refusal" {
		return "", llmerrors.Fatal(FamilyAnthropic, "model refused the request", nil)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", emptyOutput(FamilyAnthropic, "no text content")
	}
	return text, nil
}
