// Package idgen generates short, URL-safe request and correlation ids backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the ids the service hands out.
const (
	RequestPrefix = "req-"
	RunPrefix     = "run-"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// RequestID returns an id for tagging one inbound HTTP or gRPC request.
func RequestID() (string, error) {
	return WithPrefix(RequestPrefix)
}

// RunID returns an id for one recompute or export run.
func RunID() (string, error) {
	return WithPrefix(RunPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustRequestID is RequestID for call sites that cannot surface an error;
// it falls back to a fixed marker if the random source fails.
func MustRequestID() string {
	id, err := RequestID()
	if err != nil {
		return RequestPrefix + "unknown"
	}
	return id
}
