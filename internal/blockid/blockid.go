// Package blockid tags one block execution with a unique identifier,
// used in log lines and the audit sink.
package blockid

import "github.com/google/uuid"

// ID identifies one call to tinystm.ExecuteBlock.
type ID string

// New returns a fresh, random block ID.
func New() ID {
	return ID(uuid.NewString())
}

// Parse validates s as a well-formed ID.
func Parse(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ID(s), nil
}
