// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the two kinds of IDs the pipeline mints.
const (
	RecordPrefix  = "hr-" // history records
	MessagePrefix = "vw-" // Nats-Msg-Id of published viewed events
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// Func mints an ID. Components take one so tests can make IDs predictable.
type Func func() (string, error)

// Record returns a new history record ID.
func Record() (string, error) {
	return WithPrefix(RecordPrefix)
}

// Message returns a new message ID for a published event.
func Message() (string, error) {
	return WithPrefix(MessagePrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
