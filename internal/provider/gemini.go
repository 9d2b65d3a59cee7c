package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
)

// Gemini calls the generateContent endpoint of the Generative Language API.
type Gemini struct {
	modelID  string
	model    string
	apiKey   string
	baseURL  string
	maxTok   int
	endpoint jsonEndpoint
}

// geminiSafetyCategories are relaxed to BLOCK_NONE so benchmark sentences
// about violence or politics still come back translated.
var geminiSafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// geminiBlockedFinish are finish reasons that mean the output was withheld.
var geminiBlockedFinish = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

func newGemini(cfg Config) *Gemini {
	return &Gemini{
		modelID: cfg.ModelID,
		model:   strings.TrimPrefix(cfg.Model, "models/"),
		apiKey:  cfg.APIKey,
		baseURL: cfg.baseURL("https://generativelanguage.googleapis.com/v1beta"),
		maxTok:  cfg.maxTokens(),
		endpoint: jsonEndpoint{
			family:      FamilyGoogle,
			client:      cfg.httpClient(),
			checkStatus: googleStatus(FamilyGoogle),
		},
	}
}

func (c *Gemini) Name() string { return FamilyGoogle }

func (c *Gemini) ModelID() string { return c.modelID }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction geminiContent         `json:"systemInstruction"`
	GenerationConfig  map[string]any        `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Gemini) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	if err := checkInput(FamilyGoogle, c.modelID, d); err != nil {
		return "", err
	}

	safety := make([]geminiSafetySetting, 0, len(geminiSafetyCategories))
	for _, cat := range geminiSafetyCategories {
		safety = append(safety, geminiSafetySetting{Category: cat, Threshold: "BLOCK_NONE"})
	}
	payload := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: d.Prompt}}}},
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: d.SystemPrompt}}},
		GenerationConfig: map[string]any{
			"temperature":     d.Temperature,
			"maxOutputTokens": c.maxTok,
		},
		SafetySettings: safety,
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var resp geminiResponse
	if err := c.endpoint.post(ctx, endpoint, headers, payload, &resp); err != nil {
		return "", err
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", llmerrors.Fatal(FamilyGoogle, "prompt blocked: "+reason, nil)
	}
	if len(resp.Candidates) == 0 {
		return "", emptyOutput(FamilyGoogle, "no candidates")
	}
	cand := resp.Candidates[0]
	if geminiBlockedFinish[cand.FinishReason] {
		return "", llmerrors.Fatal(FamilyGoogle, "output blocked: "+cand.FinishReason, nil)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", emptyOutput(FamilyGoogle, "no candidate text")
	}
	return text, nil
}

// googleStatus decodes Google API error envelopes with googleapi.CheckResponse.
func googleStatus(family string) func(*http.Response) error {
	return func(resp *http.Response) error {
		err := googleapi.CheckResponse(resp)
		if err == nil {
			return llmerrors.Fatal(family, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		}
		return fromGoogleError(context.Background(), family, err)
	}
}

// fromGoogleError maps errors from Google client libraries and raw API
// responses into the taxonomy.
func fromGoogleError(ctx context.Context, family string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return llmerrors.FromStatus(family, gerr.Code, gerr.Header, []byte(body))
	}
	return llmerrors.FromTransport(ctx, family, err)
}
