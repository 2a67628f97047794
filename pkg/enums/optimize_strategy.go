package enums

import (
	"fmt"
	"strings"
)

// OptimizeStrategy selects how wishlist optimisation orders and trims items.
type OptimizeStrategy string

const (
	OptimizeStrategyPrice    OptimizeStrategy = "PRICE"
	OptimizeStrategyPriority OptimizeStrategy = "PRIORITY"
	OptimizeStrategyBudget   OptimizeStrategy = "BUDGET"
)

var validOptimizeStrategies = []OptimizeStrategy{
	OptimizeStrategyPrice,
	OptimizeStrategyPriority,
	OptimizeStrategyBudget,
}

// IsValid reports whether the value is a known OptimizeStrategy.
func (s OptimizeStrategy) IsValid() bool {
	for _, candidate := range validOptimizeStrategies {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOptimizeStrategy converts raw input into an OptimizeStrategy.
func ParseOptimizeStrategy(value string) (OptimizeStrategy, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validOptimizeStrategies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid optimize strategy %q", value)
}
