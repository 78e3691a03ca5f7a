package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient talks to a local Ollama runtime's /api/chat endpoint.
type OllamaClient struct {
	host string
	ep   endpoint
}

// NewOllamaClient targets host (e.g. http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if retryMax <= 0 {
		retryMax = 2
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = time.Second
	}
	host = ollamaHost(host)
	return &OllamaClient{host: host, ep: ollamaEndpoint(host, httpTimeout, retryPolicy{Attempts: retryMax, Base: baseDelay, Cap: maxDelay})}
}

func ollamaHost(host string) string {
	if host == "" {
		return defaultOllamaHost
	}
	return strings.TrimRight(host, "/")
}

func ollamaEndpoint(host string, timeout time.Duration, p retryPolicy) endpoint {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return endpoint{hc: newHTTPClient(timeout), policy: p, status: ollamaStatusError, host: host}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

func newOllamaChatRequest(req GenerateRequest, stream bool) (ollamaChatRequest, error) {
	if req.Model == "" {
		return ollamaChatRequest{}, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return ollamaChatRequest{}, errors.New("messages cannot be empty")
	}
	oreq := ollamaChatRequest{Model: req.Model, Messages: req.Messages, Stream: stream}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		oreq.Options = map[string]any{}
	}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	return oreq, nil
}

// Generate sends a non-streaming chat request and maps the reply onto
// GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	oreq, err := newOllamaChatRequest(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.ep.post(ctx, c.host+"/api/chat", oreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var oresp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &GenerateResponse{
		Choices:   []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}},
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}

// GenerateStream decodes Ollama's newline-delimited JSON stream.
func (c *OllamaClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	oreq, err := newOllamaChatRequest(req, true)
	if err != nil {
		return err
	}
	resp, err := c.ep.post(ctx, c.host+"/api/chat", oreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var oresp ollamaChatResponse
		if err := dec.Decode(&oresp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode stream: %w", err)
		}
		if msg := oresp.Message.Content; msg != "" {
			onDelta(msg)
		}
		if oresp.Done {
			return nil
		}
	}
}

// ollamaStatusError maps a non-2xx Ollama response onto the typed errors.
func ollamaStatusError(resp *http.Response) error {
	apiErr := decodeAPIError(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

// OllamaEmbClient calls /api/embeddings, which takes one prompt per call.
type OllamaEmbClient struct {
	host string
	ep   endpoint
}

func NewOllamaEmbClient(host string, timeout time.Duration) *OllamaEmbClient {
	host = ollamaHost(host)
	return &OllamaEmbClient{host: host, ep: ollamaEndpoint(host, timeout, retryPolicy{Attempts: 1})}
}

func (c *OllamaEmbClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if model == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	body := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{model, text}
	resp, err := c.ep.post(ctx, c.host+"/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}
	return toFloat32(out.Embedding), nil
}
