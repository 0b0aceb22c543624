// Package evidence scores how strongly a single entity's record can be
// trusted during resolution. The evidence score is independent of any
// pairwise comparison and distinct from the entity's own stated
// confidence.
package evidence

import (
	"math"
	"strings"

	"osint-resolver/pkg/types"
)

// Score components.
const (
	sourceBonusThree = 30.0
	sourceBonusTwo   = 20.0
	sourceBonusOne   = 10.0

	completenessWeight = 25.0
	consistencyBonus   = 15.0
	temporalBonus      = 10.0

	verifiedBonus = 25.0
	probableBonus = 15.0
	possibleBonus = 5.0
)

// Scorer computes per-entity evidence scores in [0,100].
type Scorer struct{}

// NewScorer creates an evidence scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the evidence score for an entity, a monotonically
// increasing function of source count, attribute completeness, cross-field
// consistency, temporal metadata and verification tier, clamped to
// [0,100].
func (s *Scorer) Score(e *types.Entity) float64 {
	score := sourceBonus(len(e.Sources))
	score += s.completeness(e) * completenessWeight

	if crossFieldConsistent(e) {
		score += consistencyBonus
	}
	if hasTemporalMetadata(e) {
		score += temporalBonus
	}
	score += verificationBonus(e.VerificationStatus)

	return math.Max(0, math.Min(100, score))
}

// completeness returns the fraction of the type's required attributes
// present on the entity, judged through the decoded typed payload.
func (s *Scorer) completeness(e *types.Entity) float64 {
	required := requiredAttributes[e.Type]
	if len(required) == 0 {
		return 0
	}
	missing := MissingRequired(e)
	return float64(len(required)-len(missing)) / float64(len(required))
}

func sourceBonus(count int) float64 {
	switch {
	case count >= 3:
		return sourceBonusThree
	case count == 2:
		return sourceBonusTwo
	case count == 1:
		return sourceBonusOne
	default:
		return 0
	}
}

// crossFieldConsistent reports whether platform and username look
// mutually consistent: a substring relationship between the two, or a
// profile URL that mentions both.
func crossFieldConsistent(e *types.Entity) bool {
	platform := strings.ToLower(strings.TrimSpace(e.Attr(types.AttrPlatform)))
	username := strings.ToLower(strings.TrimSpace(e.Attr(types.AttrUsername)))
	if platform == "" || username == "" {
		return false
	}
	if strings.Contains(username, platform) || strings.Contains(platform, username) {
		return true
	}
	url := strings.ToLower(e.Attr(types.AttrURL))
	return url != "" && strings.Contains(url, platform) && strings.Contains(url, username)
}

func hasTemporalMetadata(e *types.Entity) bool {
	return !e.CreatedAt.IsZero() && e.HasAttr(types.AttrLastSeen)
}

func verificationBonus(status types.VerificationStatus) float64 {
	switch status {
	case types.VerificationVerified:
		return verifiedBonus
	case types.VerificationProbable:
		return probableBonus
	case types.VerificationPossible:
		return possibleBonus
	default:
		return 0
	}
}
