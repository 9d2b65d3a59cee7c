package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/mtbench/internal/llmerrors"
)

func newTestGoogleTranslate(t *testing.T, model string, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(context.Background(), Config{
		Family:     FamilyGoogleTranslate,
		ModelID:    "test-model",
		Model:      model,
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { Close(c) })
	return c
}

func TestGoogleTranslate_Invoke(t *testing.T) {
	var query url.Values
	var path string
	c := newTestGoogleTranslate(t, "nmt", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"translations":[{"translatedText":"Bonjour","model":"nmt"}]}}`)
	})

	text, err := c.Invoke(context.Background(), testDescriptor("test-model"))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)

	assert.Equal(t, "/v2", path)
	assert.Equal(t, []string{"Hello"}, query["q"])
	assert.Equal(t, "fr", query.Get("target"))
	assert.Equal(t, "en", query.Get("source"))
	assert.Equal(t, "text", query.Get("format"))
	assert.Equal(t, "nmt", query.Get("model"))
}

func TestGoogleTranslate_AutoDetectsSource(t *testing.T) {
	var query url.Values
	c := newTestGoogleTranslate(t, "google-translate", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		io.WriteString(w, `{"data":{"translations":[{"translatedText":"Hallo","detectedSourceLanguage":"en"}]}}`)
	})

	d := testDescriptor("test-model")
	d.SourceCode = ""
	d.TargetCode = "de"
	text, err := c.Invoke(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "Hallo", text)
	assert.Equal(t, "de", query.Get("target"))
	assert.False(t, query.Has("source"))
	// Registry aliases are not sent as a v2 model.
	assert.False(t, query.Has("model"))
}

func TestGoogleTranslate_FailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		body     string
		expected llmerrors.Kind
	}{
		{
			name:     "rate_limited",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": "3"},
			body:     `{"error":{"code":429,"message":"Rate Limit Exceeded"}}`,
			expected: llmerrors.KindRateLimited,
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{"error":{"code":403,"message":"The request is missing a valid API key."}}`,
			expected: llmerrors.KindFatal,
		},
		{
			name:     "unavailable",
			status:   http.StatusServiceUnavailable,
			body:     `{"error":{"code":503,"message":"Backend Error"}}`,
			expected: llmerrors.KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestGoogleTranslate(t, "nmt", func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.Invoke(context.Background(), testDescriptor("test-model"))
			require.Error(t, err)
			assert.Equal(t, tt.expected, llmerrors.KindOf(err), err.Error())
			if tt.expected == llmerrors.KindRateLimited {
				assert.Equal(t, 3*time.Second, llmerrors.CooldownOf(err))
			}
		})
	}
}

func TestGoogleTranslate_EmptyTranslationsIsFatal(t *testing.T) {
	for _, body := range []string{
		`{"data":{"translations":[]}}`,
		`{"data":{"translations":[{"translatedText":"  "}]}}`,
	} {
		c := newTestGoogleTranslate(t, "nmt", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})

		_, err := c.Invoke(context.Background(), testDescriptor("test-model"))
		require.Error(t, err, body)
		assert.Equal(t, llmerrors.KindFatal, llmerrors.KindOf(err), body)
	}
}

func TestGoogleTranslate_MissingTargetCodeSendsNothing(t *testing.T) {
	var hits atomic.Int32
	c := newTestGoogleTranslate(t, "nmt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	d := testDescriptor("test-model")
	d.TargetCode = ""
	_, err := c.Invoke(context.Background(), d)
	assert.Equal(t, llmerrors.KindFatal, llmerrors.KindOf(err))

	d = testDescriptor("test-model")
	d.TargetCode = "not a tag!"
	_, err = c.Invoke(context.Background(), d)
	assert.Equal(t, llmerrors.KindFatal, llmerrors.KindOf(err))

	assert.Zero(t, hits.Load())
}
