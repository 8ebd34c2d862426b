package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a time-ordered unique ID, falling back to a random
// UUID when the v7 generator fails.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// GenerateRunID generates a run ID
func GenerateRunID() string {
	return fmt.Sprintf("run-%s", GenerateID())
}

// ParseRunID checks that id was produced by GenerateRunID.
func ParseRunID(id string) (uuid.UUID, error) {
	const prefix = "run-"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return uuid.Nil, fmt.Errorf("run id %q missing %q prefix", id, prefix)
	}
	return uuid.Parse(id[len(prefix):])
}
