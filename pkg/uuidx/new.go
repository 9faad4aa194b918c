package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
func NewString() string {
	return New().String()
}

// CallID returns a tool call identifier for backends that do not assign one.
// The identifier is the prefix followed by the dashless hex form of a v7 UUID,
// so identifiers minted within one process sort by creation time.
func CallID(prefix string) string {
	return prefix + strings.ReplaceAll(NewString(), "-", "")
}
