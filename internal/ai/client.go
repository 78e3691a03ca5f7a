package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// errMissingKey is returned before any request when no API key is configured.
var errMissingKey = fmt.Errorf("RETAILMIND_API_KEY is missing: %w", ErrConfigurationMissing)

// Client talks to an OpenRouter-compatible chat and embeddings API.
type Client struct {
	apiKey  string
	baseURL string
	ep      endpoint
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// chatRequest is the wire form; Stream switches the endpoint to SSE.
type chatRequest struct {
	GenerateRequest
	Stream bool `json:"stream,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	return NewClientWithBaseURL(apiKey, httpTimeout, retryMax, baseDelay, maxDelay, "")
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, baseURL string) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	c := &Client{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
	c.ep = endpoint{
		hc:     newHTTPClient(httpTimeout),
		policy: retryPolicy{Attempts: retryMax, Base: baseDelay, Cap: maxDelay},
		header: c.setHeaders,
		status: func(resp *http.Response) error { return classifyAPIError(decodeAPIError(resp), resp) },
	}
	return c
}

func (c *Client) check(model string) error {
	if c.apiKey == "" {
		return errMissingKey
	}
	if model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.check(req.Model); err != nil {
		return nil, err
	}
	resp, err := c.ep.post(ctx, c.baseURL+"/chat/completions", chatRequest{GenerateRequest: req})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out.RequestID = extractRequestID(resp)
	return &out, nil
}

// Embed returns one vector per input, placed by the response's index field.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if err := c.check(model); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.New("inputs cannot be empty")
	}
	resp, err := c.ep.post(ctx, c.baseURL+"/embeddings", EmbeddingRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("malformed response: %d embeddings for %d inputs", len(out.Data), len(inputs))
	}
	vectors := make([][]float32, len(inputs))
	for i, d := range out.Data {
		pos := d.Index
		if pos < 0 || pos >= len(inputs) || vectors[pos] != nil {
			pos = i
		}
		vectors[pos] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

// GenerateStream reads the SSE stream and calls onDelta per content chunk.
// Retries only happen before the first byte arrives.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := c.check(req.Model); err != nil {
		return err
	}
	resp, err := c.ep.post(ctx, c.baseURL+"/chat/completions", chatRequest{GenerateRequest: req, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var delta struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}
		delta.Choices = nil
		if json.Unmarshal([]byte(data), &delta) == nil && len(delta.Choices) > 0 {
			onDelta(delta.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/retailmind-cli")
	req.Header.Set("X-Title", "RetailMind CLI")
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}
