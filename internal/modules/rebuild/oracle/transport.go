// Package oracle sends mapping requests to an external model and hands the raw
// answer to the mapping validator.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/mapping"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/gemini"
	"github.com/yungbote/deckrebuild-backend/internal/platform/openai"
)

// Transport makes one call and returns the provider's raw text.
type Transport interface {
	Call(ctx context.Context, system, user string, cfg Config) (string, error)
}

// Provider builds a Transport. Providers are only constructed once selected.
type Provider struct {
	Name string
	New  func(ctx context.Context, log *logger.Logger) (Transport, error)
}

type Registry struct {
	providers map[string]Provider
}

// NewRegistry rejects unnamed and duplicate providers.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" || p.New == nil {
			return nil, fmt.Errorf("oracle provider needs a name and constructor")
		}
		if _, exists := r.providers[name]; exists {
			return nil, fmt.Errorf("oracle provider already registered: %s", name)
		}
		p.Name = name
		r.providers[name] = p
	}
	return r, nil
}

// DefaultRegistry holds every provider the backend ships with.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Provider{Name: "openai", New: newOpenAI},
		Provider{Name: "gemini", New: newGemini},
		Provider{Name: "mock", New: func(context.Context, *logger.Logger) (Transport, error) { return Mock{}, nil }},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Open(ctx context.Context, log *logger.Logger, name string) (Transport, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown oracle provider %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return p.New(ctx, log)
}

type openAITransport struct {
	client openai.Client
}

func newOpenAI(_ context.Context, log *logger.Logger) (Transport, error) {
	c, err := openai.NewClient(log, openai.LoadConfig())
	if err != nil {
		return nil, err
	}
	return &openAITransport{client: c}, nil
}

func (t *openAITransport) Call(ctx context.Context, system, user string, cfg Config) (string, error) {
	temp := cfg.Temperature
	return t.client.GenerateJSONObject(ctx, system, user, openai.CallOptions{
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxTokens,
		Temperature:     &temp,
	})
}

type geminiTransport struct {
	client *gemini.Client
}

func newGemini(ctx context.Context, log *logger.Logger) (Transport, error) {
	c, err := gemini.NewClient(ctx, log, gemini.LoadConfig())
	if err != nil {
		return nil, err
	}
	return &geminiTransport{client: c}, nil
}

func (t *geminiTransport) Call(ctx context.Context, system, user string, cfg Config) (string, error) {
	temp := cfg.Temperature
	return t.client.GenerateJSONObject(ctx, system, user, gemini.CallOptions{
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxTokens,
		Temperature:     &temp,
	})
}

// Mock answers from the prompt alone by type compatibility. It never sees more
// than a real provider would.
type Mock struct{}

func (Mock) Call(ctx context.Context, _, user string, _ Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	elements, placeholders, err := mapping.ParsePromptInventory(user)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(mapping.PlanByType(elements, placeholders))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
