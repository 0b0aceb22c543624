package types

import "time"

// RejectedEntity identifies one malformed input entity that was refused at
// ingestion. The rest of the batch proceeds unaffected.
type RejectedEntity struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// TypeMetrics is the per-entity-type breakdown of one resolution run.
type TypeMetrics struct {
	Processed    int `json:"processed"`
	Resolved     int `json:"resolved"`
	Merged       int `json:"merged"`
	KeptSeparate int `json:"kept_separate"`
	ManualReview int `json:"manual_review"`
	Clusters     int `json:"clusters"`
}

// ResolutionMetrics aggregates counts for one resolution run.
type ResolutionMetrics struct {
	EntitiesProcessed    int                        `json:"entities_processed"`
	EntitiesResolved     int                        `json:"entities_resolved"`
	EntitiesMerged       int                        `json:"entities_merged"`
	EntitiesKeptSeparate int                        `json:"entities_kept_separate"`
	ManualReviewCount    int                        `json:"manual_review_count"`
	ClustersFound        int                        `json:"clusters_found"`
	ConflictsDetected    int                        `json:"conflicts_detected"`
	ConflictRate         float64                    `json:"conflict_rate"`
	AverageConfidence    float64                    `json:"average_confidence"`
	ByType               map[EntityType]TypeMetrics `json:"by_type"`
	ProcessingTime       string                     `json:"processing_time"`
}

// ResolutionResult is the terminal output of one batch run. It is
// constructed once per orchestrator invocation and immutable once
// returned.
type ResolutionResult struct {
	RunID                string            `json:"run_id"`
	Strategy             string            `json:"strategy"`
	ResolvedEntities     []Entity          `json:"resolved_entities"`
	ConflictsDetected    []EntityConflict  `json:"conflicts_detected"`
	ManualReviewRequired []Entity          `json:"manual_review_required"`
	Rejected             []RejectedEntity  `json:"rejected,omitempty"`
	Metrics              ResolutionMetrics `json:"metrics"`
	Partial              bool              `json:"partial"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          time.Time         `json:"completed_at"`
}

// UnresolvedConflicts returns the conflicts still awaiting a human
// decision. Merge audit records are excluded.
func (r *ResolutionResult) UnresolvedConflicts() []EntityConflict {
	unresolved := make([]EntityConflict, 0)
	for i := range r.ConflictsDetected {
		if !r.ConflictsDetected[i].Resolved {
			unresolved = append(unresolved, r.ConflictsDetected[i])
		}
	}
	return unresolved
}
