package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/valpere/mtbench/internal/llmerrors"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// jsonEndpoint posts JSON requests for one provider family and maps every
// failure into the error taxonomy.
type jsonEndpoint struct {
	family string
	client *http.Client
	// checkStatus maps a non-2xx response to an error. Nil reads the body
	// and uses llmerrors.FromStatus.
	checkStatus func(resp *http.Response) error
}

// post sends payload to url and decodes a 2xx response into out.
func (e jsonEndpoint) post(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return llmerrors.Fatal(e.family, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return llmerrors.Fatal(e.family, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return llmerrors.FromTransport(ctx, e.family, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if e.checkStatus != nil {
			return e.checkStatus(resp)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return llmerrors.FromStatus(e.family, resp.StatusCode, resp.Header, raw)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return llmerrors.FromTransport(ctx, e.family, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return llmerrors.Fatal(e.family, "empty response body", nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return llmerrors.Fatal(e.family, "failed to decode response", err)
	}
	return nil
}

func emptyOutput(family, what string) error {
	return llmerrors.Fatal(family, fmt.Sprintf("empty response: %s", what), nil)
}
