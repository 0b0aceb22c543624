package types

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected conflict between two entities.
type ConflictType string

const (
	// ConflictTypeValue is a disagreement on one specific field
	ConflictTypeValue ConflictType = "value_conflict"
	// ConflictTypeAttribute is a general attribute-level disagreement
	ConflictTypeAttribute ConflictType = "attribute_conflict"
	// ConflictTypeMergeAudit records an automatic merge for audit purposes
	ConflictTypeMergeAudit ConflictType = "merge_audit"
)

// Valid returns true if the conflict type is valid
func (ct ConflictType) Valid() bool {
	switch ct {
	case ConflictTypeValue, ConflictTypeAttribute, ConflictTypeMergeAudit:
		return true
	}
	return false
}

// ConflictSeverity represents the severity level of a conflict
type ConflictSeverity string

const (
	SeverityHigh   ConflictSeverity = "high"
	SeverityMedium ConflictSeverity = "medium"
	SeverityLow    ConflictSeverity = "low"
)

// Weight returns the ordering weight of the severity, higher is worse.
func (cs ConflictSeverity) Weight() int {
	switch cs {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Resolution methods recorded on resolved conflicts.
const (
	ResolutionMergedIntoPrimary = "merged_into_primary"
	ResolutionKeptSeparate      = "kept_separate"
	ResolutionManualReview      = "manual_review"
)

// EntityConflict is evidence that two entities should not be silently
// merged. Contact values in Details are stored redacted; the raw values
// never leave the detector.
type EntityConflict struct {
	ID               string           `json:"id"`
	Entity1ID        string           `json:"entity_1_id"`
	Entity2ID        string           `json:"entity_2_id"`
	Type             ConflictType     `json:"conflict_type"`
	Field            string           `json:"field,omitempty"`
	Details          map[string]any   `json:"details,omitempty"`
	Severity         ConflictSeverity `json:"severity"`
	Resolved         bool             `json:"resolved"`
	ResolutionMethod string           `json:"resolution_method,omitempty"`
	DetectedAt       time.Time        `json:"detected_at"`
}

// NewEntityConflict creates an unresolved conflict between two entities.
func NewEntityConflict(entity1ID, entity2ID string, conflictType ConflictType, severity ConflictSeverity) *EntityConflict {
	return &EntityConflict{
		ID:         uuid.New().String(),
		Entity1ID:  entity1ID,
		Entity2ID:  entity2ID,
		Type:       conflictType,
		Severity:   severity,
		DetectedAt: time.Now().UTC(),
	}
}

// Resolve marks the conflict resolved with the given method.
func (c *EntityConflict) Resolve(method string) {
	c.Resolved = true
	c.ResolutionMethod = method
}

// References reports whether the conflict involves the given entity id.
func (c *EntityConflict) References(entityID string) bool {
	return c.Entity1ID == entityID || c.Entity2ID == entityID
}
