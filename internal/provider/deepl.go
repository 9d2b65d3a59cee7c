package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/mtbench/internal/call"
)

// DeepL is a machine-translation baseline against the DeepL v2 API. Free
// plan keys end in ":fx" and use the free host.
type DeepL struct {
	modelID  string
	apiKey   string
	baseURL  string
	endpoint jsonEndpoint
}

func newDeepL(cfg Config) *DeepL {
	def := "https://api.deepl.com"
	if strings.HasSuffix(cfg.APIKey, ":fx") {
		def = "https://api-free.deepl.com"
	}
	return &DeepL{
		modelID:  cfg.ModelID,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.baseURL(def),
		endpoint: jsonEndpoint{family: FamilyDeepL, client: cfg.httpClient()},
	}
}

func (c *DeepL) Name() string { return FamilyDeepL }

func (c *DeepL) ModelID() string { return c.modelID }

type deeplRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (c *DeepL) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	if err := checkInput(FamilyDeepL, c.modelID, d); err != nil {
		return "", err
	}
	target, source, err := languageTags(FamilyDeepL, d)
	if err != nil {
		return "", err
	}

	payload := deeplRequest{
		Text:       []string{d.Source},
		TargetLang: deeplCode(target.String()),
	}
	if d.SourceCode != "" {
		// DeepL source languages never carry a region.
		base, _ := source.Base()
		payload.SourceLang = strings.ToUpper(base.String())
	}
	headers := map[string]string{"Authorization": fmt.Sprintf("DeepL-Auth-Key %s", c.apiKey)}

	var resp deeplResponse
	if err := c.endpoint.post(ctx, c.baseURL+"/v2/translate", headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Translations) == 0 || strings.TrimSpace(resp.Translations[0].Text) == "" {
		return "", emptyOutput(FamilyDeepL, "no translation")
	}
	return resp.Translations[0].Text, nil
}

// deeplCode upper-cases a BCP 47 tag the way DeepL expects target codes
// ("pt-br" becomes "PT-BR", "en" becomes "EN-US").
func deeplCode(tag string) string {
	code := strings.ToUpper(tag)
	switch code {
	case "EN":
		return "EN-US"
	case "PT":
		return "PT-PT"
	}
	return code
}
