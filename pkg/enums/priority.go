package enums

import (
	"fmt"
	"strings"
)

// Priority ranks how badly a shopper wants a wishlist item.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// DefaultPriority is applied to items created without an explicit priority.
const DefaultPriority = PriorityMedium

var validPriorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

// Priorities returns every priority from lowest to highest rank.
func Priorities() []Priority {
	out := make([]Priority, len(validPriorities))
	copy(out, validPriorities)
	return out
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Priority.
func (p Priority) IsValid() bool {
	for _, candidate := range validPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank orders priorities; URGENT is highest. Unknown values rank below LOW.
func (p Priority) Rank() int {
	for idx, candidate := range validPriorities {
		if candidate == p {
			return idx + 1
		}
	}
	return 0
}

// ParsePriority converts raw input into a Priority. Matching ignores case and
// surrounding whitespace so exported files from older clients still import.
func ParsePriority(value string) (Priority, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPriorities {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}
