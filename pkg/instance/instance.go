package instance

import "github.com/nlenjibi/storefront-wishlist/pkg/env"

// GetID returns the process instance identifier used in logs and job lock ownership.
func GetID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	return env.Get("DYNO", "local")
}
