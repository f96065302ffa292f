// Package gemini wraps the Google GenAI SDK for JSON-only text generation.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/envutil"
)

type Config struct {
	APIKey string
	Model  string
}

func LoadConfig() Config {
	return Config{
		APIKey: envutil.String("GEMINI_API_KEY", envutil.String("GOOGLE_API_KEY", "")),
		Model:  envutil.String("GEMINI_MODEL", "gemini-2.0-flash"),
	}
}

type CallOptions struct {
	Model           string
	MaxOutputTokens int
	Temperature     *float64
}

// Client generates a single JSON document per call.
type Client struct {
	log    *logger.Logger
	models *genai.Models
	model  string
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{log: log.With("service", "GeminiClient"), models: c.Models, model: cfg.Model}, nil
}

// GenerateJSONObject returns the raw response text. The caller validates it.
func (c *Client) GenerateJSONObject(ctx context.Context, system, user string, opts CallOptions) (string, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	resp, err := c.models.GenerateContent(ctx, model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	c.log.Debug("Gemini response received", "model", model, "chars", len(text))
	return text, nil
}
