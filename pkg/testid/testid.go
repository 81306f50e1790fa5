// Package testid generates the opaque 128-bit identifier that is stamped on
// a recipe run and flows through every rule and log event belonging to it.
package testid

import (
	"strings"

	"github.com/google/uuid"
)

// TestId is a lowercase hex rendering of a 128-bit random identifier, the
// Go equivalent of the original SDK's uuid.uuid4().hex.
type TestId string

// New generates a fresh TestId.
func New() TestId {
	return TestId(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// String implements fmt.Stringer.
func (t TestId) String() string {
	return string(t)
}
