package ai

import "sort"

// ModelInfo drives prompt trimming and the cost hint printed by `ask --json`.
// Prices are USD per 1K tokens and only approximate OpenRouter's list.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextTokens int     `json:"context_tokens"`
	InputPerK     float64 `json:"input_per_1k,omitempty"`
	OutputPerK    float64 `json:"output_per_1k,omitempty"`
}

// Free reports whether the model has no per-token price (local or free tier).
func (m ModelInfo) Free() bool { return m.InputPerK == 0 && m.OutputPerK == 0 }

var catalog = func() map[string]ModelInfo {
	remote := func(name string, ctx int, in, out float64) ModelInfo {
		return ModelInfo{Name: name, Provider: ProviderOpenRouter, ContextTokens: ctx, InputPerK: in, OutputPerK: out}
	}
	local := func(name string, ctx int) ModelInfo {
		return ModelInfo{Name: name, Provider: ProviderOllama, ContextTokens: ctx}
	}
	m := map[string]ModelInfo{}
	for _, mi := range []ModelInfo{
		remote("openai/gpt-4o-mini", 128_000, 0.00015, 0.0006),
		remote("openai/gpt-4o", 128_000, 0.005, 0.015),
		remote("anthropic/claude-3.5-sonnet", 200_000, 0.003, 0.015),
		remote("anthropic/claude-3-haiku", 200_000, 0.00025, 0.00125),
		remote("google/gemini-1.5-flash", 1_000_000, 0.000075, 0.0003),
		remote("meta-llama/llama-3.1-8b-instruct:free", 131_072, 0, 0),
		local("llama3:latest", 8192),
		local("llama3.1:8b-instruct", 8192),
		local("mistral:7b-instruct", 8192),
		local("qwen2.5:7b-instruct", 32_768),
		local("phi3:mini-4k-instruct", 4096),
	} {
		m[mi.Name] = mi
	}
	return m
}()

// Models lists the catalog sorted by name.
func Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(catalog))
	for _, mi := range catalog {
		out = append(out, mi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := catalog[name]
	return mi, ok
}

// EstimateCostUSD prices a call; unknown models report ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := catalog[model]
	if !ok {
		return 0, false
	}
	return (float64(promptTokens)*mi.InputPerK + float64(completionTokens)*mi.OutputPerK) / 1000, true
}

// PromptBudget returns how many prompt tokens fit into model's window after
// reserving room for the completion. Unknown models report ok=false.
func PromptBudget(model string, completionTokens int) (int, bool) {
	mi, ok := catalog[model]
	if !ok || mi.ContextTokens <= 0 {
		return 0, false
	}
	return max(0, mi.ContextTokens-max(0, completionTokens)), true
}
