package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/mapping"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// Proposal is a validated mapping plus the text it was parsed from.
type Proposal struct {
	Result *rebuild.MappingResult
	Raw    string
}

// Adapter is the only path from inventories to a MappingResult: prompt,
// call, then every validation stage. Nothing is repaired.
type Adapter struct {
	log       *logger.Logger
	cfg       Config
	transport Transport
	policy    *mapping.Policy
	validator *mapping.Validator
}

func NewAdapter(log *logger.Logger, cfg Config, transport Transport, policy *mapping.Policy) (*Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if transport == nil {
		return nil, fmt.Errorf("oracle transport required")
	}
	if policy == nil {
		policy = mapping.CurrentPolicy(log)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		log:       log.With("service", "OracleAdapter", "provider", cfg.Provider),
		cfg:       cfg,
		transport: transport,
		policy:    policy,
		validator: mapping.NewValidator(policy),
	}, nil
}

// Open selects the configured provider from reg and wraps it.
func Open(ctx context.Context, log *logger.Logger, reg *Registry, cfg Config) (*Adapter, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	t, err := reg.Open(ctx, log, cfg.Provider)
	if err != nil {
		return nil, err
	}
	return NewAdapter(log, cfg, t, nil)
}

func (a *Adapter) Config() Config { return a.cfg }

// Propose returns a validated mapping. Transport failures come back as
// *rebuild.TransportError; validation failures as rebuild.MappingError,
// which carries the raw output.
func (a *Adapter) Propose(ctx context.Context, elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) (*Proposal, error) {
	prompt, err := mapping.BuildPrompt(a.policy, elements, placeholders)
	if err != nil {
		return nil, fmt.Errorf("build oracle prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	start := time.Now()
	raw, err := a.transport.Call(callCtx, prompt.System, prompt.User, a.cfg)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("no response within %s: %w", a.cfg.Timeout, err)
		}
		var te *rebuild.TransportError
		if !errors.As(err, &te) {
			err = &rebuild.TransportError{Op: "oracle " + a.cfg.Provider, Err: err}
		}
		a.log.Warn("Oracle call failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	a.log.Info("Oracle responded", "elapsed_ms", time.Since(start).Milliseconds(), "chars", len(raw))

	result, err := a.validator.Validate(raw, mapping.Inputs{Elements: elements, Placeholders: placeholders})
	if err != nil {
		a.log.Warn("Oracle mapping rejected", "stage", rebuild.Classify(err), "error", rebuild.TruncateError(err))
		return nil, err
	}
	return &Proposal{Result: result, Raw: raw}, nil
}

// Validate runs the same checks on a previously stored mapping.
func (a *Adapter) Validate(raw string, elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) (*rebuild.MappingResult, error) {
	return a.validator.Validate(raw, mapping.Inputs{Elements: elements, Placeholders: placeholders})
}
