package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// newLocalServer serves handler on a tcp4 loopback listener and skips the
// test where sandboxes forbid listening.
func newLocalServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

// scripted replies with statuses[i] on the i-th call (the last one repeats).
type scripted struct {
	calls    int32
	statuses []int
	headers  map[int]http.Header
	ok       any
}

func (s *scripted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	for k, vs := range s.headers[i] {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(s.statuses[i])
	if s.statuses[i] < 300 {
		_ = json.NewEncoder(w).Encode(s.ok)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": fmt.Sprintf("failure %d", s.statuses[i])}})
}

var hello = GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1}

func okReply(content string) GenerateResponse {
	return GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}}}
}

func TestGenerateRetriesTransientStatuses(t *testing.T) {
	s := &scripted{statuses: []int{429, 503, 200}, headers: map[int]http.Header{0: {"Retry-After": {"0"}}}, ok: okReply("ok")}
	c := NewClientWithBaseURL("test", 2*time.Second, 3, 5*time.Millisecond, 20*time.Millisecond, newLocalServer(t, s))

	resp, err := c.Generate(context.Background(), hello)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Choices[0].Message.Content != "ok" || atomic.LoadInt32(&s.calls) != 3 {
		t.Fatalf("unexpected response %+v after %d calls", resp, s.calls)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	s := &scripted{statuses: []int{429, 200}, headers: map[int]http.Header{0: {"Retry-After": {"1"}}}, ok: okReply("ok")}
	c := NewClientWithBaseURL("test", 5*time.Second, 3, 0, 0, newLocalServer(t, s))

	start := time.Now()
	if _, err := c.Generate(context.Background(), hello); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected about 1s delay from Retry-After, got %v", elapsed)
	}
}

func TestGenerateGivesUpAfterAttempts(t *testing.T) {
	s := &scripted{statuses: []int{502}}
	c := NewClientWithBaseURL("test", time.Second, 2, time.Millisecond, 2*time.Millisecond, newLocalServer(t, s))
	_, err := c.Generate(context.Background(), hello)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&s.calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   map[string]any
		check  func(error) bool
	}{
		{401, map[string]any{"error": map[string]any{"message": "invalid key"}}, func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{400, map[string]any{"error": map[string]any{"message": "bad"}}, func(err error) bool { var e *BadRequestError; return errors.As(err, &e) }},
		{404, map[string]any{"error": map[string]any{"code": "model_not_found"}}, func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{402, map[string]any{"message": "billing required"}, func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
		{404, map[string]any{"error": "route missing"}, func(err error) bool { var e *APIError; return errors.As(err, &e) && e.Message == "route missing" }},
	}
	for _, tc := range cases {
		var calls int32
		url := newLocalServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("X-Request-Id", "req_123")
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(tc.body)
		}))
		c := NewClientWithBaseURL("test", time.Second, 3, time.Millisecond, time.Millisecond, url)
		_, err := c.Generate(context.Background(), hello)
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %T: %v", tc.status, err, err)
		}
		if !strings.Contains(err.Error(), "request_id=req_123") {
			t.Fatalf("status %d: request id missing from %v", tc.status, err)
		}
		if calls != 1 {
			t.Fatalf("status %d: expected one attempt, got %d", tc.status, calls)
		}
	}
}

func TestOpenRouterStreamParsesDeltas(t *testing.T) {
	var sawStream bool
	url := newLocalServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sawStream = body["stream"] == true
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	c := NewClientWithBaseURL("test", 5*time.Second, 1, 0, 0, url)
	var out strings.Builder
	if err := c.GenerateStream(context.Background(), hello, func(d string) { out.WriteString(d) }); err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if out.String() != "hello world" || !sawStream {
		t.Fatalf("unexpected stream %q (stream flag sent: %v)", out.String(), sawStream)
	}
}

func TestMissingKeyIsConfigurationMissing(t *testing.T) {
	c := NewClient("", time.Second, 1, 0, 0)
	if _, err := c.Generate(context.Background(), hello); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("Generate: expected ErrConfigurationMissing, got %v", err)
	}
	if err := c.GenerateStream(context.Background(), hello, func(string) {}); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("GenerateStream: expected ErrConfigurationMissing, got %v", err)
	}
	if _, err := c.Embed(context.Background(), "m", []string{"a"}); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("Embed: expected ErrConfigurationMissing, got %v", err)
	}
}

func TestEmbedReturnsVectorsInInputOrder(t *testing.T) {
	url := newLocalServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/embeddings" || req.Model != "emb-model" || r.Header.Get("Authorization") != "Bearer test" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"index": 1, "embedding": []float64{0, 1}},
			{"index": 0, "embedding": []float64{1, 0}},
		}})
	}))

	c := NewClientWithBaseURL("test", 2*time.Second, 1, 0, 0, url)
	vecs, err := c.Embed(context.Background(), "emb-model", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedMalformedResponse(t *testing.T) {
	url := newLocalServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	c := NewClientWithBaseURL("test", 2*time.Second, 1, 0, 0, url)
	if _, err := c.Embed(context.Background(), "m", []string{"a"}); err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}
