// Package uuid generates scan run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements radar.IDGenerator with time-ordered UUIDv7 strings, so scan run IDs
// sort by start time.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate scan run id: %w", err)
	}
	return id.String(), nil
}
