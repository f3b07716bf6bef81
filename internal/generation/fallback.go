// Package generation holds the collaborator surface for content
// generation. Herald does not generate content itself; it exposes the
// fallback chain contract generation providers plug into.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
)

// ErrExhausted is returned when every strategy in the chain has failed.
var ErrExhausted = errors.New("all generation strategies exhausted")

// Strategy is one generation backend in an ordered fallback chain.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	StrategyName string
	Fn           func(ctx context.Context, prompt string) (string, error)
}

func (s StrategyFunc) Name() string { return s.StrategyName }

func (s StrategyFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return s.Fn(ctx, prompt)
}

// Chain attempts strategies in order until one succeeds. Every attempt's
// outcome is logged for diagnosis.
type Chain struct {
	strategies []Strategy
	logger     logging.Logger
}

// NewChain creates a fallback chain over the given strategies, attempted
// in the order provided.
func NewChain(logger logging.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logger}
}

// Generate runs the chain. The first successful strategy wins; when all
// are exhausted the last error is wrapped in ErrExhausted.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	if len(c.strategies) == 0 {
		return "", ErrExhausted
	}

	var lastErr error
	for i, strategy := range c.strategies {
		result, err := strategy.Generate(ctx, prompt)
		if err == nil {
			c.logger.WithFields(logging.Fields{
				"strategy": strategy.Name(),
				"attempt":  i + 1,
			}).Debug("Generation strategy succeeded")
			return result, nil
		}

		lastErr = err
		c.logger.WithError(err).WithFields(logging.Fields{
			"strategy": strategy.Name(),
			"attempt":  i + 1,
			"of":       len(c.strategies),
		}).Warn("Generation strategy failed, trying next")

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: last error: %v", ErrExhausted, lastErr)
}
