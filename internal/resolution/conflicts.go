package resolution

import (
	"sort"
	"strings"

	"osint-resolver/internal/similarity"
	"osint-resolver/pkg/types"
)

// nameConflictThreshold: two names that look this alike yet differ are
// suspicious rather than distinct.
const nameConflictThreshold = 0.7

// ConflictDetector inspects a candidate cluster for irreconcilable
// attribute disagreements that should block an automatic merge.
type ConflictDetector struct {
	scorer *similarity.Scorer
}

// NewConflictDetector creates a conflict detector sharing the run's
// similarity scorer.
func NewConflictDetector(scorer *similarity.Scorer) *ConflictDetector {
	return &ConflictDetector{scorer: scorer}
}

// DetectCluster computes field-level disagreement for every unordered
// pair in the cluster. Members must be in deterministic order; conflicts
// are emitted in pair order.
func (cd *ConflictDetector) DetectCluster(members []*types.Entity) []types.EntityConflict {
	conflicts := make([]types.EntityConflict, 0)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			conflicts = append(conflicts, cd.detectPair(members[i], members[j])...)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Severity.Weight() > conflicts[j].Severity.Weight()
	})
	return conflicts
}

// detectPair checks one entity pair for name, contact and
// platform/handle conflicts.
func (cd *ConflictDetector) detectPair(a, b *types.Entity) []types.EntityConflict {
	conflicts := make([]types.EntityConflict, 0)

	if c := cd.nameConflict(a, b); c != nil {
		conflicts = append(conflicts, *c)
	}
	conflicts = append(conflicts, cd.contactConflicts(a, b)...)
	if c := cd.platformConflict(a, b); c != nil {
		conflicts = append(conflicts, *c)
	}
	return conflicts
}

// nameConflict fires when both entities carry a principal identifier,
// the values differ, and they still look alike (similarity above the
// threshold): alike enough to cluster, different enough to distrust.
func (cd *ConflictDetector) nameConflict(a, b *types.Entity) *types.EntityConflict {
	nameA := a.Principal()
	nameB := b.Principal()
	if nameA == "" || nameB == "" {
		return nil
	}
	if strings.EqualFold(nameA, nameB) {
		return nil
	}
	sim := similarity.TextSimilarity(nameA, nameB)
	if sim <= nameConflictThreshold {
		return nil
	}

	conflict := types.NewEntityConflict(a.ID, b.ID, types.ConflictTypeValue, types.SeverityHigh)
	conflict.Field = a.PrincipalAttr()
	conflict.Details = map[string]any{
		"value_1":    nameA,
		"value_2":    nameB,
		"similarity": sim,
	}
	return conflict
}

// contactConflicts fires when both entities carry the same contact field
// with differing normalized values. The payload holds redacted values
// only; raw emails and phone numbers never leave the detector. Severity
// is medium, escalated to high when the principal identifiers match
// exactly: an identical name with a different mailbox is the classic
// impersonation signature.
func (cd *ConflictDetector) contactConflicts(a, b *types.Entity) []types.EntityConflict {
	conflicts := make([]types.EntityConflict, 0)

	severity := types.SeverityMedium
	if nameA, nameB := a.Principal(), b.Principal(); nameA != "" && strings.EqualFold(nameA, nameB) {
		severity = types.SeverityHigh
	}

	emailA := normalizeContact(a.Attr(types.AttrEmail))
	emailB := normalizeContact(b.Attr(types.AttrEmail))
	if emailA != "" && emailB != "" && emailA != emailB {
		conflict := types.NewEntityConflict(a.ID, b.ID, types.ConflictTypeValue, severity)
		conflict.Field = types.AttrEmail
		conflict.Details = map[string]any{
			"value_1": redactEmail(emailA),
			"value_2": redactEmail(emailB),
		}
		conflicts = append(conflicts, *conflict)
	}

	phoneA := normalizeContact(a.Attr(types.AttrPhone))
	phoneB := normalizeContact(b.Attr(types.AttrPhone))
	if phoneA != "" && phoneB != "" && phoneA != phoneB {
		conflict := types.NewEntityConflict(a.ID, b.ID, types.ConflictTypeValue, severity)
		conflict.Field = types.AttrPhone
		conflict.Details = map[string]any{
			"value_1": redactPhone(phoneA),
			"value_2": redactPhone(phoneB),
		}
		conflicts = append(conflicts, *conflict)
	}

	return conflicts
}

// platformConflict fires when both entities carry platform and username
// and either differs.
func (cd *ConflictDetector) platformConflict(a, b *types.Entity) *types.EntityConflict {
	if !a.HasAttr(types.AttrPlatform) || !a.HasAttr(types.AttrUsername) ||
		!b.HasAttr(types.AttrPlatform) || !b.HasAttr(types.AttrUsername) {
		return nil
	}

	platformMatch := similarity.PlatformSimilarity(a.Attr(types.AttrPlatform), b.Attr(types.AttrPlatform)) >= 0.9
	usernameMatch := strings.EqualFold(a.Attr(types.AttrUsername), b.Attr(types.AttrUsername))
	if platformMatch && usernameMatch {
		return nil
	}

	conflict := types.NewEntityConflict(a.ID, b.ID, types.ConflictTypeAttribute, types.SeverityMedium)
	conflict.Field = types.AttrPlatform
	conflict.Details = map[string]any{
		"platform_1": a.Attr(types.AttrPlatform),
		"platform_2": b.Attr(types.AttrPlatform),
		"username_1": a.Attr(types.AttrUsername),
		"username_2": b.Attr(types.AttrUsername),
	}
	return conflict
}

// HasBlocking reports whether any conflict is severe enough to block an
// automatic merge.
func HasBlocking(conflicts []types.EntityConflict) bool {
	for i := range conflicts {
		if conflicts[i].Severity == types.SeverityHigh {
			return true
		}
	}
	return false
}

func normalizeContact(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// redactEmail keeps the first rune of the local part and the domain.
func redactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***@" + email[at+1:]
}

// redactPhone keeps the last four digits.
func redactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
