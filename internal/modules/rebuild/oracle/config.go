package oracle

import (
	"fmt"
	"time"

	"github.com/yungbote/deckrebuild-backend/internal/platform/envutil"
)

const (
	MinTimeout   = 10 * time.Second
	MaxTimeout   = 300 * time.Second
	MinMaxTokens = 100
	MaxMaxTokens = 16000
)

// Config selects a provider and bounds a single oracle call.
type Config struct {
	Provider    string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func LoadConfig() Config {
	return Config{
		Provider:    envutil.String("ORACLE_PROVIDER", "openai"),
		Model:       envutil.String("ORACLE_MODEL", ""),
		Timeout:     time.Duration(envutil.IntRange("ORACLE_TIMEOUT_SECONDS", 60, 10, 300)) * time.Second,
		MaxTokens:   envutil.IntRange("ORACLE_MAX_TOKENS", 4000, MinMaxTokens, MaxMaxTokens),
		Temperature: envutil.Float("ORACLE_TEMPERATURE", 0),
	}
}

func (c Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("oracle provider required")
	}
	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("oracle timeout %s outside [%s, %s]", c.Timeout, MinTimeout, MaxTimeout)
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("oracle max tokens %d outside [%d, %d]", c.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("oracle temperature %.2f outside [0, 1]", c.Temperature)
	}
	return nil
}
