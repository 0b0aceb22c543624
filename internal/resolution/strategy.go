package resolution

import (
	"fmt"

	"osint-resolver/pkg/types"
)

// StrategyName identifies one of the named threshold bundles.
type StrategyName string

const (
	StrategyConservative StrategyName = "conservative"
	StrategyBalanced     StrategyName = "balanced"
	StrategyAggressive   StrategyName = "aggressive"
)

// Strategy bundles the thresholds controlling how aggressively entities
// are auto-merged. One strategy is selected per resolver instance and
// applied uniformly to a batch.
type Strategy struct {
	Name StrategyName `json:"name"`

	// MinConfidence is the minimum confidence_score the cluster primary
	// needs before an automatic merge is considered.
	MinConfidence float64 `json:"min_confidence"`

	// EvidenceThreshold is the minimum number of supporting sources on
	// the cluster primary for an automatic merge.
	EvidenceThreshold int `json:"evidence_threshold"`

	// SimilarityThreshold is the minimum pairwise similarity for a graph
	// edge.
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

var strategies = map[StrategyName]Strategy{
	StrategyConservative: {
		Name:                StrategyConservative,
		MinConfidence:       85,
		EvidenceThreshold:   3,
		SimilarityThreshold: 0.8,
	},
	StrategyBalanced: {
		Name:                StrategyBalanced,
		MinConfidence:       70,
		EvidenceThreshold:   2,
		SimilarityThreshold: 0.7,
	},
	StrategyAggressive: {
		Name:                StrategyAggressive,
		MinConfidence:       55,
		EvidenceThreshold:   1,
		SimilarityThreshold: 0.6,
	},
}

// StrategyByName returns the named strategy.
func StrategyByName(name string) (Strategy, error) {
	if s, ok := strategies[StrategyName(name)]; ok {
		return s, nil
	}
	return Strategy{}, fmt.Errorf("%w: %q", types.ErrUnknownStrategy, name)
}

// Decision is the outcome chosen for one cluster.
type Decision string

const (
	// DecisionMerge merges all members into the primary
	DecisionMerge Decision = "merge"
	// DecisionKeepSeparate keeps members apart with reduced confidence
	DecisionKeepSeparate Decision = "keep_separate"
	// DecisionManualReview routes the whole cluster to a human
	DecisionManualReview Decision = "manual_review"
	// DecisionPassthrough resolves a singleton cluster to itself
	DecisionPassthrough Decision = "passthrough"
)

// mergeEligible reports whether the cluster primary is strong enough for
// an automatic merge under this strategy: confidence at or above
// MinConfidence and at least EvidenceThreshold supporting sources.
func (s Strategy) mergeEligible(primary *types.Entity) bool {
	return primary.ConfidenceScore >= s.MinConfidence &&
		len(primary.Sources) >= s.EvidenceThreshold
}
