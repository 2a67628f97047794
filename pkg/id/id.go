// Package id generates opaque, URL-safe identifiers for guest sessions,
// optimistic command correlation and share snapshots.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PrefixGuest    = "guest"
	PrefixCommand  = "cmd"
	PrefixShare    = "shr"
	PrefixNotice   = "ntf"
	PrefixReminder = "rem"
)

// Generate creates a prefixed NanoID, e.g. "guest-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	raw, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	if prefix == "" {
		return raw, nil
	}
	return prefix + "-" + raw, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	value, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return value
}
