// Package huggingface is a Generator for the Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ineyio/infergate"
)

// DefaultBaseURL is the hosted Inference API.
const DefaultBaseURL = "https://api-inference.huggingface.co"

// Generator calls POST {baseURL}/models/{model} with {"inputs": prompt}.
type Generator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ infergate.Generator = (*Generator)(nil)

// Option configures the generator.
type Option func(*Generator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(g *Generator) { g.baseURL = strings.TrimRight(u, "/") }
}

// New creates a Hugging Face generator authenticated with apiKey.
func New(apiKey string, opts ...Option) *Generator {
	g := &Generator{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type apiRequest struct {
	Inputs string `json:"inputs"`
}

type apiResponse []struct {
	GeneratedText string `json:"generated_text"`
}

// Generate returns the first generated_text of the response.
func (g *Generator) Generate(ctx context.Context, prompt, model string) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("%w: no api key configured", infergate.ErrUpstreamUnavailable)
	}

	httpResp, err := g.doRequest(ctx, model, apiRequest{Inputs: prompt})
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return "", err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", infergate.ErrUpstreamUnavailable, err)
	}
	if len(resp) == 0 || resp[0].GeneratedText == "" {
		return "", fmt.Errorf("%w: empty response", infergate.ErrUpstreamUnavailable)
	}
	return resp[0].GeneratedText, nil
}

func (g *Generator) doRequest(ctx context.Context, model string, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("infergate/huggingface: marshal request: %w", err)
	}

	url := g.baseURL + "/models/" + model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("infergate/huggingface: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", infergate.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	return fmt.Errorf("%w: status %d: %s",
		infergate.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
}
