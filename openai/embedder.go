// Package openai implements api.Embedder over an OpenAI-compatible
// embeddings endpoint.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/datar-psa/goanchor/api"
)

const (
	// DefaultBaseURL is the public OpenAI API root
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when Options.Model is empty
	DefaultModel = "text-embedding-3-small"

	defaultRetryMax = 3
	defaultTimeout  = 60 * time.Second
	providerName    = "openai"
)

// Options configures an Embedder
type Options struct {
	// BaseURL is the API root; "/embeddings" is appended. Defaults to DefaultBaseURL.
	BaseURL string
	// APIKey is sent as a bearer token when set
	APIKey string
	// Model is the embedding model. Defaults to DefaultModel.
	Model string
	// Dimensions requests shortened embeddings when > 0
	Dimensions int
	// RetryMax is the number of retries on 429 and 5xx responses. Zero means 3, negative disables retries.
	RetryMax int
	// Timeout bounds each HTTP attempt. Defaults to 60s.
	Timeout time.Duration
	// HTTPClient replaces the underlying client; Timeout is ignored when set
	HTTPClient *http.Client
	// Logger receives retry logs; defaults to slog.Default()
	Logger *slog.Logger
}

// Embedder calls the /embeddings endpoint with all texts in one request
type Embedder struct {
	client *retryablehttp.Client
	url    string
	apiKey string
	model  string
	dims   int
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewEmbedder creates an Embedder
func NewEmbedder(opts Options) *Embedder {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.Logger = logger
	switch {
	case opts.RetryMax < 0:
		client.RetryMax = 0
	case opts.RetryMax > 0:
		client.RetryMax = opts.RetryMax
	default:
		client.RetryMax = defaultRetryMax
	}
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	// hand the last response back so its status and body reach the caller
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	} else {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client.HTTPClient.Timeout = timeout
	}

	return &Embedder{
		client: client,
		url:    baseURL + "/embeddings",
		apiKey: opts.APIKey,
		model:  model,
		dims:   opts.Dimensions,
	}
}

// Model returns the configured model name
func (e *Embedder) Model() string {
	return e.model
}

// Embed implements api.Embedder
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]api.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model:          e.model,
		Input:          texts,
		EncodingFormat: "float",
		Dimensions:     e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	// after the last retry the final response comes back alongside the retry error
	resp, err := e.client.Do(req)
	if resp == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &api.ProviderError{Provider: providerName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.ProviderError{Provider: providerName, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &api.ProviderError{Provider: providerName, Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &api.ProviderError{Provider: providerName, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}

	return orderByIndex(parsed, len(texts))
}

// orderByIndex places every returned embedding at its declared input index
func orderByIndex(parsed embeddingResponse, n int) ([]api.Vector, error) {
	if len(parsed.Data) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", api.ErrUnexpectedEmbeddingCount, len(parsed.Data), n)
	}
	out := make([]api.Vector, n)
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, &api.ProviderError{Provider: providerName, Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		if out[d.Index] != nil {
			return nil, &api.ProviderError{Provider: providerName, Message: fmt.Sprintf("duplicate embedding index %d", d.Index)}
		}
		if len(d.Embedding) == 0 {
			return nil, &api.ProviderError{Provider: providerName, Message: fmt.Sprintf("empty embedding at index %d", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func errorMessage(body []byte, fallback string) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return fallback
}

var _ api.Embedder = (*Embedder)(nil)
