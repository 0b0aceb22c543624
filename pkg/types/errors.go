package types

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is returned when a strategy name is not one of
// conservative, balanced or aggressive.
var ErrUnknownStrategy = errors.New("unknown resolution strategy")

// MalformedEntityError identifies an input entity rejected at ingestion.
// Rejection of one entity never blocks the rest of the batch.
type MalformedEntityError struct {
	EntityID string
	Reason   string
}

// NewMalformedEntityError creates a malformed-entity error.
func NewMalformedEntityError(entityID, reason string) *MalformedEntityError {
	return &MalformedEntityError{EntityID: entityID, Reason: reason}
}

// Error implements the error interface
func (e *MalformedEntityError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("malformed entity: %s", e.Reason)
	}
	return fmt.Sprintf("malformed entity %s: %s", e.EntityID, e.Reason)
}

// InvariantViolationError reports a broken internal invariant, such as an
// entity appearing in two clusters or a merge producing an out-of-range
// confidence. It is fatal for the batch: the orchestrator halts rather
// than return a result it cannot vouch for.
type InvariantViolationError struct {
	EntityID  string
	ClusterID string
	Strategy  string
	Detail    string
}

// Error implements the error interface
func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation (entity=%s cluster=%s strategy=%s): %s",
		e.EntityID, e.ClusterID, e.Strategy, e.Detail)
}
