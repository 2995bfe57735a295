// Package uuid generates run identifiers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings, so run IDs sort by start time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Short returns the last eight hex digits of id. For UUID7 these come from
// the random tail, so two runs started in the same second still differ.
func Short(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) <= 8 {
		return hex
	}
	return hex[len(hex)-8:]
}
