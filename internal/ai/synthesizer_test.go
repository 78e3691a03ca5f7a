package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRuntime struct {
	got  GenerateRequest
	resp *GenerateResponse
	err  error
}

func (f *fakeRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestRuntimeSynthesizerBuildsSections(t *testing.T) {
	rt := &fakeRuntime{resp: &GenerateResponse{Choices: []Choice{{Message: Message{Content: "  42 units \n"}}}}}
	s := NewRuntimeSynthesizer(rt, SynthesizerOptions{Provider: "fake", Model: "m", MaxTokens: 64})
	out, err := s.Complete(context.Background(), "be terse", "row_1: {...}", "how many?")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != "42 units" {
		t.Fatalf("unexpected answer %q", out)
	}
	if len(rt.got.Messages) != 2 || rt.got.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", rt.got.Messages)
	}
	user := rt.got.Messages[1].Content
	if !strings.Contains(user, "[DATA CONTEXT]\nrow_1: {...}") || !strings.Contains(user, "[QUESTION]\nhow many?") {
		t.Fatalf("unexpected user message: %q", user)
	}
	if rt.got.Model != "m" || rt.got.MaxTokens != 64 {
		t.Fatalf("request options not forwarded: %+v", rt.got)
	}
}

func TestRuntimeSynthesizerErrors(t *testing.T) {
	var nilRT *RuntimeSynthesizer
	if _, err := nilRT.Complete(context.Background(), "", "", "q"); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}

	rt := &fakeRuntime{err: &ServerError{APIError: &APIError{StatusCode: 502, Message: "upstream down"}}}
	s := NewRuntimeSynthesizer(rt, SynthesizerOptions{Provider: "fake", Model: "m"})
	_, err := s.Complete(context.Background(), "", "ctx", "q")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "complete" {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("provider message lost: %v", err)
	}

	rt = &fakeRuntime{resp: &GenerateResponse{}}
	s = NewRuntimeSynthesizer(rt, SynthesizerOptions{Model: "m"})
	if _, err := s.Complete(context.Background(), "", "ctx", "q"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestRuntimeSynthesizerStreamFallsBack(t *testing.T) {
	rt := &fakeRuntime{resp: &GenerateResponse{Choices: []Choice{{Message: Message{Content: "done"}}}}}
	s := NewRuntimeSynthesizer(rt, SynthesizerOptions{Model: "m"})
	var got string
	out, err := s.Stream(context.Background(), "", "ctx", "q", func(d string) { got += d })
	if err != nil || out != "done" || got != "done" {
		t.Fatalf("unexpected stream fallback: out=%q got=%q err=%v", out, got, err)
	}
}

func TestPromptBudget(t *testing.T) {
	if b, ok := PromptBudget("phi3:mini-4k-instruct", 1000); !ok || b != 3096 {
		t.Fatalf("unexpected budget %d %v", b, ok)
	}
	if _, ok := PromptBudget("unknown/model", 10); ok {
		t.Fatalf("unknown model should not report a budget")
	}
}

func TestModelsSortedAndPriced(t *testing.T) {
	ms := Models()
	if len(ms) == 0 {
		t.Fatalf("expected built-in models")
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].Name >= ms[i].Name {
			t.Fatalf("models not sorted: %q before %q", ms[i-1].Name, ms[i].Name)
		}
	}
	if c, ok := EstimateCostUSD("openai/gpt-4o", 1000, 1000); !ok || c < 0.0199 || c > 0.0201 {
		t.Fatalf("unexpected cost %v %v", c, ok)
	}
}
