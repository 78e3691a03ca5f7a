package ai

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Synthesizer answers a question from retrieved grounding text.
type Synthesizer interface {
	Complete(ctx context.Context, systemPrompt, dataContext, question string) (string, error)
}

// SynthesizerOptions configures a RuntimeSynthesizer.
type SynthesizerOptions struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds one completion; zero means 120s.
	Timeout time.Duration
}

// RuntimeSynthesizer adapts a chat Runtime (OpenRouter, Ollama) to Synthesizer.
type RuntimeSynthesizer struct {
	rt  Runtime
	opt SynthesizerOptions
}

func NewRuntimeSynthesizer(rt Runtime, opt SynthesizerOptions) *RuntimeSynthesizer {
	if opt.Timeout <= 0 {
		opt.Timeout = 120 * time.Second
	}
	return &RuntimeSynthesizer{rt: rt, opt: opt}
}

// Model returns the configured completion model.
func (s *RuntimeSynthesizer) Model() string { return s.opt.Model }

// Messages builds the chat transcript sent to the runtime.
func Messages(systemPrompt, dataContext, question string) []Message {
	var b strings.Builder
	b.WriteString("[DATA CONTEXT]\n")
	b.WriteString(strings.TrimSpace(dataContext))
	b.WriteString("\n\n[QUESTION]\n")
	b.WriteString(strings.TrimSpace(question))
	msgs := make([]Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	}
	return append(msgs, Message{Role: "user", Content: b.String()})
}

func (s *RuntimeSynthesizer) request(systemPrompt, dataContext, question string) GenerateRequest {
	return GenerateRequest{
		Model:       s.opt.Model,
		Messages:    Messages(systemPrompt, dataContext, question),
		MaxTokens:   s.opt.MaxTokens,
		Temperature: s.opt.Temperature,
	}
}

func (s *RuntimeSynthesizer) Complete(ctx context.Context, systemPrompt, dataContext, question string) (string, error) {
	if s == nil || s.rt == nil {
		return "", wrapProvider(s.provider(), "complete", ErrConfigurationMissing)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opt.Timeout)
	defer cancel()
	resp, err := s.rt.Generate(ctx, s.request(systemPrompt, dataContext, question))
	if err != nil {
		return "", wrapProvider(s.provider(), "complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", wrapProvider(s.provider(), "complete", errors.New("malformed response: no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Stream behaves like Complete but forwards partial output to onDelta when the
// runtime supports streaming. It returns the full answer.
func (s *RuntimeSynthesizer) Stream(ctx context.Context, systemPrompt, dataContext, question string, onDelta func(string)) (string, error) {
	var sr StreamRuntime
	ok := false
	if s != nil {
		sr, ok = s.rt.(StreamRuntime)
	}
	if !ok {
		out, err := s.Complete(ctx, systemPrompt, dataContext, question)
		if err == nil && onDelta != nil {
			onDelta(out)
		}
		return out, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opt.Timeout)
	defer cancel()
	var b strings.Builder
	err := sr.GenerateStream(ctx, s.request(systemPrompt, dataContext, question), func(d string) {
		b.WriteString(d)
		if onDelta != nil {
			onDelta(d)
		}
	})
	if err != nil {
		return "", wrapProvider(s.provider(), "complete", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *RuntimeSynthesizer) provider() string {
	if s == nil {
		return ""
	}
	return s.opt.Provider
}
