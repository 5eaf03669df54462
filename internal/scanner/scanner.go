package scanner

import (
	"fmt"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// Strategy captures one way of extracting item blocks from an edition page.
type Strategy interface {
	Name() string
	Extract(html string) ([]domain.RawItem, error)
}

// Chain tries strategies in registration order and returns the first
// non-empty result. Later strategies are degraded fallbacks, so an earlier
// hit wins outright.
type Chain struct {
	strategies []Strategy
}

// NewChain builds an ordered strategy chain.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Register appends a strategy to the end of the chain.
func (c *Chain) Register(s Strategy) {
	c.strategies = append(c.strategies, s)
}

// Extract runs the chain. A strategy error moves on to the next strategy;
// only an empty chain is itself an error.
func (c *Chain) Extract(html string) ([]domain.RawItem, string, error) {
	if len(c.strategies) == 0 {
		return nil, "", fmt.Errorf("no extraction strategies registered")
	}

	var lastErr error
	for _, s := range c.strategies {
		items, err := s.Extract(html)
		if err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", s.Name(), err)
			continue
		}
		if len(items) > 0 {
			return items, s.Name(), nil
		}
	}

	return nil, "", lastErr
}
