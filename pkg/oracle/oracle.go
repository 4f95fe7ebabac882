// Package oracle provides access to the language model used for the narrow
// sub-tasks of the interview: intent detection for ambiguous input, semantic
// answer checks and question rephrasing.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Oracle completes a single prompt.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrUnavailable is returned when no model is configured.
var ErrUnavailable = errors.New("oracle unavailable")

// Disabled is an Oracle that always fails with ErrUnavailable. Components
// fall back to their deterministic paths.
type Disabled struct{}

// Complete returns ErrUnavailable.
func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

// Verify interface compliance.
var (
	_ Oracle = Func(nil)
	_ Oracle = Disabled{}
	_ Oracle = (*Bounded)(nil)
)

// Bounded limits every call of the wrapped oracle to a timeout.
type Bounded struct {
	next    Oracle
	timeout time.Duration
}

// WithTimeout wraps o so that each call is cancelled after d. A
// non-positive d returns o unchanged.
func WithTimeout(o Oracle, d time.Duration) Oracle {
	if d <= 0 {
		return o
	}
	return &Bounded{next: o, timeout: d}
}

// Complete calls the wrapped oracle under the timeout.
func (b *Bounded) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := b.next.Complete(ctx, prompt)
		ch <- result{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("oracle call: %w", ctx.Err())
	}
}

// Provider names.
const (
	ProviderNone   = "none"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config selects and configures an oracle.
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int
}

// New builds the oracle named by cfg.Provider and bounds it by cfg.Timeout.
// Provider "none", or a provider without an API key, yields Disabled.
func New(ctx context.Context, cfg Config) (Oracle, error) {
	var o Oracle
	switch cfg.Provider {
	case "", ProviderNone:
		return Disabled{}, nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return Disabled{}, nil
		}
		g, err := NewGenAI(ctx, GenAIConfig{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
		if err != nil {
			return nil, err
		}
		o = g
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return Disabled{}, nil
		}
		o = NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxOutputTokens,
		})
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	return WithTimeout(o, cfg.Timeout), nil
}
