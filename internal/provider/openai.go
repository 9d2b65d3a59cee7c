package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
)

// OpenAICompatible speaks the chat-completions protocol shared by OpenAI,
// Together, OpenRouter and local servers such as Ollama.
type OpenAICompatible struct {
	family   string
	modelID  string
	model    string
	apiKey   string
	baseURL  string
	headers  map[string]string
	maxTok   int
	endpoint jsonEndpoint
}

func newOpenAICompatible(family string, cfg Config, defaultBaseURL string, extraHeaders map[string]string) *OpenAICompatible {
	return &OpenAICompatible{
		family:   family,
		modelID:  cfg.ModelID,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.baseURL(defaultBaseURL),
		headers:  extraHeaders,
		maxTok:   cfg.maxTokens(),
		endpoint: jsonEndpoint{family: family, client: cfg.httpClient()},
	}
}

func (c *OpenAICompatible) Name() string { return c.family }

func (c *OpenAICompatible) ModelID() string { return c.modelID }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *OpenAICompatible) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	if err := checkInput(c.family, c.modelID, d); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: d.SystemPrompt},
			{Role: "user", Content: d.Prompt},
		},
		Temperature: d.Temperature,
		MaxTokens:   c.maxTok,
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = fmt.Sprintf("Bearer %s", c.apiKey)
	}
	for k, v := range c.headers {
		headers[k] = v
	}

	var resp chatResponse
	if err := c.endpoint.post(ctx, c.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", emptyOutput(c.family, "no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != nil && strings.TrimSpace(*choice.Message.Refusal) != "" {
		return "", llmerrors.Fatal(c.family, "model refused: "+*choice.Message.Refusal, nil)
	}
	if choice.FinishReason == "content_filter" {
		return "", llmerrors.Fatal(c.family, "output blocked by content filter", nil)
	}
	if choice.Message.Content == nil || strings.TrimSpace(*choice.Message.Content) == "" {
		return "", emptyOutput(c.family, "no message content")
	}
	return *choice.Message.Content, nil
}
