package enums

import (
	"fmt"
	"time"
)

// ReminderType is the delay before a wishlist reminder fires.
type ReminderType string

const (
	ReminderType6h     ReminderType = "6h"
	ReminderType24h    ReminderType = "24h"
	ReminderType3d     ReminderType = "3d"
	ReminderTypeWeekly ReminderType = "weekly"
)

var reminderDelays = map[ReminderType]time.Duration{
	ReminderType6h:     6 * time.Hour,
	ReminderType24h:    24 * time.Hour,
	ReminderType3d:     72 * time.Hour,
	ReminderTypeWeekly: 7 * 24 * time.Hour,
}

// IsValid reports whether the value is a known ReminderType.
func (r ReminderType) IsValid() bool {
	_, ok := reminderDelays[r]
	return ok
}

// Delay returns how long after scheduling the reminder fires.
func (r ReminderType) Delay() time.Duration {
	return reminderDelays[r]
}

// ParseReminderType converts raw input into a ReminderType.
func ParseReminderType(value string) (ReminderType, error) {
	candidate := ReminderType(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid reminder type %q", value)
}
