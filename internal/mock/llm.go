// Package mock provides test doubles using function fields.
package mock

import (
	"context"
	"strings"
	"sync"

	"ai-datalab/internal/llm"
)

var _ llm.Client = (*LLM)(nil)

// LLM is a test double for llm.Client. Set GenerateFn before calling
// Generate. Prompts records the last message content of every call.
type LLM struct {
	GenerateFn func(ctx context.Context, messages []llm.Message) (llm.Response, error)

	mu      sync.Mutex
	Prompts []string
}

func (m *LLM) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	m.mu.Lock()
	if len(messages) > 0 {
		m.Prompts = append(m.Prompts, messages[len(messages)-1].Content)
	}
	m.mu.Unlock()
	return m.GenerateFn(ctx, messages)
}

// Calls returns a copy of the recorded prompts.
func (m *LLM) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Prompts...)
}

// DataLab answers intent prompts with intentJSON and every other prompt
// with reply, which is how the pipeline's two model calls can be told apart.
func DataLab(intentJSON, reply string) *LLM {
	return &LLM{
		GenerateFn: func(_ context.Context, messages []llm.Message) (llm.Response, error) {
			last := messages[len(messages)-1].Content
			if strings.Contains(last, "Respond with a JSON object") {
				return llm.Response{Content: intentJSON, Model: "mock"}, nil
			}
			return llm.Response{Content: reply, Model: "mock"}, nil
		},
	}
}
