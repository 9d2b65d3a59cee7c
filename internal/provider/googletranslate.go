package provider

import (
	"context"
	"fmt"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
)

// GoogleTranslate is a machine-translation baseline. It translates the raw
// source line; prompt and temperature are ignored.
type GoogleTranslate struct {
	modelID string
	model   string
	client  *translate.Client
}

func newGoogleTranslate(ctx context.Context, cfg Config) (*GoogleTranslate, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	// A caller-supplied client bypasses the library's authenticated transport.
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, llmerrors.Fatal(FamilyGoogleTranslate, "failed to create client", err)
	}

	// "base" and "nmt" are the only models the v2 API knows; anything else
	// is a registry alias.
	model := cfg.Model
	if model != "base" && model != "nmt" {
		model = ""
	}
	return &GoogleTranslate{modelID: cfg.ModelID, model: model, client: client}, nil
}

func (c *GoogleTranslate) Name() string { return FamilyGoogleTranslate }

func (c *GoogleTranslate) ModelID() string { return c.modelID }

func (c *GoogleTranslate) Close() error { return c.client.Close() }

func (c *GoogleTranslate) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	if err := checkInput(FamilyGoogleTranslate, c.modelID, d); err != nil {
		return "", err
	}
	target, source, err := languageTags(FamilyGoogleTranslate, d)
	if err != nil {
		return "", err
	}

	opts := &translate.Options{Format: translate.Text, Model: c.model}
	if source != language.Und {
		opts.Source = source
	}
	translations, err := c.client.Translate(ctx, []string{d.Source}, target, opts)
	if err != nil {
		return "", fromGoogleError(ctx, FamilyGoogleTranslate, err)
	}
	if len(translations) == 0 || strings.TrimSpace(translations[0].Text) == "" {
		return "", emptyOutput(FamilyGoogleTranslate, "no translation")
	}
	return translations[0].Text, nil
}

// languageTags parses the descriptor's ISO codes. The target is required;
// an empty source lets the service detect it.
func languageTags(family string, d call.Descriptor) (target, source language.Tag, err error) {
	if strings.TrimSpace(d.Source) == "" {
		return language.Und, language.Und, llmerrors.Fatal(family, "source text is empty", nil)
	}
	if d.TargetCode == "" {
		return language.Und, language.Und, llmerrors.Fatal(family, fmt.Sprintf("no language code for target %q", d.TargetLang), nil)
	}
	target, err = language.Parse(d.TargetCode)
	if err != nil {
		return language.Und, language.Und, llmerrors.Fatal(family, "invalid target language", err)
	}
	source = language.Und
	if d.SourceCode != "" {
		source, err = language.Parse(d.SourceCode)
		if err != nil {
			return language.Und, language.Und, llmerrors.Fatal(family, "invalid source language", err)
		}
	}
	return target, source, nil
}
