package env

import (
	"os"
	"strings"
)

// Prefix namespaces the wishlist service's own variables.
const Prefix = "WISHLIST_"

// Get returns WISHLIST_<key> when set, then the bare platform variable
// (PORT, DYNO, LOG_FORMAT), then fallback.
func Get(key, fallback string) string {
	if !strings.HasPrefix(key, Prefix) {
		if val := os.Getenv(Prefix + key); val != "" {
			return val
		}
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
