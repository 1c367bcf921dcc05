package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ai-datalab/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
	ProviderGemini = "gemini"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenaiModel        string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
	GeminiAPIKey       string
	GeminiModel        string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenaiModel:        cfg.OpenAIModel,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		GeminiModel:        cfg.GeminiModel,
	}
}

// CreateClient builds a client for provider. An empty model selects the
// provider's configured default.
func (f *Factory) CreateClient(ctx context.Context, provider, model string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		if model == "" {
			model = f.OpenaiModel
		}
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, model, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	case ProviderGemini:
		if model == "" {
			model = f.GeminiModel
		}
		return NewGemini(ctx, f.GeminiAPIKey, model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

// Lazy returns a client that is created on the first Generate call. A failed
// creation is returned to that caller and retried on the next call, so a
// process can start before provider credentials are in place.
func (f *Factory) Lazy(provider, model string) Client {
	return &lazyClient{factory: f, provider: provider, model: model}
}

type lazyClient struct {
	factory  *Factory
	provider string
	model    string

	mu     sync.Mutex
	client Client
}

func (l *lazyClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	l.mu.Lock()
	if l.client == nil {
		c, err := l.factory.CreateClient(ctx, l.provider, l.model)
		if err != nil {
			l.mu.Unlock()
			return Response{}, fmt.Errorf("create %s client: %w", l.provider, err)
		}
		l.client = c
	}
	c := l.client
	l.mu.Unlock()
	return c.Generate(ctx, messages)
}
