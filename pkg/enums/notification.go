package enums

import "fmt"

// NotificationKind identifies which wishlist condition fired.
type NotificationKind string

const (
	NotificationKindPriceDrop   NotificationKind = "price_drop"
	NotificationKindTargetPrice NotificationKind = "target_price"
	NotificationKindBackInStock NotificationKind = "back_in_stock"
	NotificationKindReminder    NotificationKind = "reminder"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindPriceDrop,
	NotificationKindTargetPrice,
	NotificationKindBackInStock,
	NotificationKindReminder,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
