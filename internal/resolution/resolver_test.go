package resolution

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osint-resolver/pkg/types"
)

func newTestResolver(t *testing.T, strategy string) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{Strategy: strategy})
	require.NoError(t, err)
	return r
}

func withSources(e *types.Entity, n int) *types.Entity {
	for i := 0; i < n; i++ {
		e.Sources = append(e.Sources, types.Source{
			URL:       "https://" + e.ID + ".example/" + string(rune('a'+i)),
			Connector: "connector-" + string(rune('a'+i)),
		})
	}
	return e
}

func socialProfile(id string, confidence float64, sources int) types.Entity {
	e := types.NewEntity(types.EntityTypeSocialProfile, map[string]any{
		types.AttrPlatform: "github",
		types.AttrUsername: "jdoe",
		types.AttrName:     "John Doe",
	})
	e.ID = id
	e.ConfidenceScore = confidence
	return *withSources(e, sources)
}

func johnSmith(id, email string) types.Entity {
	e := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:  "John Smith",
		types.AttrEmail: email,
	})
	e.ID = id
	e.ConfidenceScore = 60
	return *withSources(e, 1)
}

func emailEntity(id, address string, sources int) types.Entity {
	e := types.NewEntity(types.EntityTypeEmail, map[string]any{
		types.AttrEmail: address,
	})
	e.ID = id
	e.ConfidenceScore = 75
	return *withSources(e, sources)
}

func resolvedIDs(result *types.ResolutionResult) []string {
	ids := make([]string, 0, len(result.ResolvedEntities))
	for i := range result.ResolvedEntities {
		ids = append(ids, result.ResolvedEntities[i].ID)
	}
	sort.Strings(ids)
	return ids
}

func TestNewResolverUnknownStrategy(t *testing.T) {
	_, err := NewResolver(Options{Strategy: "reckless"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownStrategy)
}

func TestResolveEmptyBatch(t *testing.T) {
	r := newTestResolver(t, "balanced")
	result, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.ResolvedEntities)
	assert.Empty(t, result.ConflictsDetected)
	assert.Zero(t, result.Metrics.EntitiesProcessed)
	assert.False(t, result.Partial)
	assert.NotEmpty(t, result.RunID)
}

func TestResolveMergesDuplicateProfiles(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
	}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, result.ResolvedEntities, 1)
	merged := result.ResolvedEntities[0]
	assert.Equal(t, "sp-a", merged.ID, "the higher-evidence record becomes primary")
	assert.Equal(t, []string{"sp-b"}, merged.MergedEntities)
	assert.Len(t, merged.Sources, 3)
	assert.Greater(t, merged.ConfidenceScore, 85.0)
	assert.Equal(t, types.VerificationProbable, merged.VerificationStatus)

	assert.Equal(t, 1, result.Metrics.EntitiesMerged)
	assert.Equal(t, 2, result.Metrics.EntitiesProcessed)
	assert.Empty(t, result.ManualReviewRequired)

	// The merge leaves a resolved audit conflict, nothing open. The audit
	// record carries the similarity weight of the qualifying edge.
	require.Len(t, result.ConflictsDetected, 1)
	audit := result.ConflictsDetected[0]
	assert.Equal(t, types.ConflictTypeMergeAudit, audit.Type)
	assert.True(t, audit.Resolved)
	assert.Equal(t, types.ResolutionMergedIntoPrimary, audit.ResolutionMethod)
	assert.InDelta(t, 1.0, audit.Details["similarity"], 1e-9)
	assert.Empty(t, result.UnresolvedConflicts())
}

func TestResolveHighSeverityConflictVetoesMerge(t *testing.T) {
	// Both records clear the balanced thresholds on their own; the
	// identical-name different-mailbox conflict must still block the merge.
	r := newTestResolver(t, "balanced")
	a := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:  "John Smith",
		types.AttrEmail: "jsmith@corp.com",
	})
	a.ID = "p-a"
	a.ConfidenceScore = 90
	b := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:  "John Smith",
		types.AttrEmail: "john.smith@other.org",
	})
	b.ID = "p-b"
	b.ConfidenceScore = 90
	batch := []types.Entity{*withSources(a, 2), *withSources(b, 2)}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	assert.Zero(t, result.Metrics.EntitiesMerged)
	assert.Empty(t, result.ResolvedEntities)
	require.Len(t, result.ManualReviewRequired, 2)

	unresolved := result.UnresolvedConflicts()
	require.Len(t, unresolved, 1)
	assert.Equal(t, types.SeverityHigh, unresolved[0].Severity)
	assert.Equal(t, types.AttrEmail, unresolved[0].Field)
}

func TestResolveMergesThroughMediumConflicts(t *testing.T) {
	// A platform/handle disagreement is medium severity and does not veto
	// a merge backed by strong primary evidence; it surfaces resolved.
	r := newTestResolver(t, "balanced")
	a := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:     "John Doe",
		types.AttrPlatform: "github",
		types.AttrUsername: "jdoe",
	})
	a.ID = "p-a"
	a.ConfidenceScore = 90
	b := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:     "John Doe",
		types.AttrPlatform: "github",
		types.AttrUsername: "jdoe2",
	})
	b.ID = "p-b"
	b.ConfidenceScore = 80
	batch := []types.Entity{*withSources(a, 2), *withSources(b, 1)}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Metrics.EntitiesMerged)
	require.Len(t, result.ResolvedEntities, 1)
	assert.Equal(t, "p-a", result.ResolvedEntities[0].ID)
	assert.Empty(t, result.ManualReviewRequired)
	assert.Empty(t, result.UnresolvedConflicts())

	var platformConflicts int
	for i := range result.ConflictsDetected {
		c := &result.ConflictsDetected[i]
		if c.Type == types.ConflictTypeAttribute {
			platformConflicts++
			assert.Equal(t, types.SeverityMedium, c.Severity)
			assert.True(t, c.Resolved)
			assert.Equal(t, types.ResolutionMergedIntoPrimary, c.ResolutionMethod)
		}
	}
	assert.Equal(t, 1, platformConflicts)
}

func TestResolveFlagsImpersonationForReview(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		johnSmith("p-a", "jsmith@corp.com"),
		johnSmith("p-b", "john.smith@other.org"),
	}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	assert.Empty(t, result.ResolvedEntities,
		"neither record may be auto-resolved while the conflict stands")
	require.Len(t, result.ManualReviewRequired, 2)

	unresolved := result.UnresolvedConflicts()
	require.Len(t, unresolved, 1)
	assert.Equal(t, types.SeverityHigh, unresolved[0].Severity)
	assert.Equal(t, types.AttrEmail, unresolved[0].Field)
	assert.Equal(t, 2, result.Metrics.ManualReviewCount)
}

func TestResolveSplitsEmailOutlier(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		emailEntity("em-1", "alice@example.com", 2),
		emailEntity("em-2", "alice@example.com", 1),
		emailEntity("em-3", "alice@example.com", 1),
		emailEntity("em-4", "alice@example.com", 1),
		emailEntity("em-5", "alice@example.org", 1),
	}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, result.ResolvedEntities, 2)
	assert.Equal(t, []string{"em-1", "em-5"}, resolvedIDs(result))

	for i := range result.ResolvedEntities {
		e := &result.ResolvedEntities[i]
		switch e.ID {
		case "em-1":
			assert.ElementsMatch(t, []string{"em-2", "em-3", "em-4"}, e.MergedEntities)
		case "em-5":
			assert.Empty(t, e.MergedEntities, "the outlier stays untouched")
			assert.Equal(t, 75.0, e.ConfidenceScore)
		}
	}
	assert.Equal(t, 3, result.Metrics.EntitiesMerged)
	assert.Equal(t, 2, result.Metrics.ClustersFound)
}

func TestResolveNeverMixesEntityTypes(t *testing.T) {
	r := newTestResolver(t, "aggressive")
	person := types.NewEntity(types.EntityTypePerson, map[string]any{types.AttrName: "Acme"})
	person.ID = "p-acme"
	company := types.NewEntity(types.EntityTypeCompany, map[string]any{types.AttrName: "Acme"})
	company.ID = "c-acme"

	result, err := r.Resolve(context.Background(), []types.Entity{*person, *company})
	require.NoError(t, err)

	assert.Equal(t, []string{"c-acme", "p-acme"}, resolvedIDs(result))
	assert.Zero(t, result.Metrics.EntitiesMerged)
}

func TestResolveKeepsSeparateUnderWeakEvidence(t *testing.T) {
	r := newTestResolver(t, "balanced")
	a := types.NewEntity(types.EntityTypeUsername, map[string]any{types.AttrUsername: "jdoe"})
	a.ID = "u-a"
	a.ConfidenceScore = 60
	b := types.NewEntity(types.EntityTypeUsername, map[string]any{types.AttrUsername: "jdoe"})
	b.ID = "u-b"
	b.ConfidenceScore = 60
	batch := []types.Entity{*withSources(a, 1), *withSources(b, 1)}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, result.ResolvedEntities, 2)
	for i := range result.ResolvedEntities {
		assert.Equal(t, 55.0, result.ResolvedEntities[i].ConfidenceScore,
			"ambiguous members are down-weighted to the floor")
	}
	assert.Equal(t, 2, result.Metrics.EntitiesKeptSeparate)
	assert.Empty(t, result.ManualReviewRequired)
}

func TestResolveStrategyChangesOutcome(t *testing.T) {
	// The same pair merges under aggressive but not under conservative.
	batch := []types.Entity{
		socialProfile("sp-a", 60, 1),
		socialProfile("sp-b", 58, 1),
	}

	aggressive := newTestResolver(t, "aggressive")
	result, err := aggressive.Resolve(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metrics.EntitiesMerged)

	conservative := newTestResolver(t, "conservative")
	result, err = conservative.Resolve(context.Background(), batch)
	require.NoError(t, err)
	assert.Zero(t, result.Metrics.EntitiesMerged)
}

func TestResolveRejectsMalformedEntities(t *testing.T) {
	r := newTestResolver(t, "balanced")
	bad := types.Entity{ID: "bad-1", Type: types.EntityTypePerson}
	good := types.NewEntity(types.EntityTypePerson, map[string]any{types.AttrName: "John Doe"})
	good.ID = "good-1"

	result, err := r.Resolve(context.Background(), []types.Entity{bad, *good})
	require.NoError(t, err, "one malformed entity never fails the batch")

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "bad-1", result.Rejected[0].EntityID)
	assert.Contains(t, result.Rejected[0].Reason, "no attributes")
	assert.Equal(t, []string{"good-1"}, resolvedIDs(result))
	assert.Equal(t, 1, result.Metrics.EntitiesProcessed,
		"rejected entities do not count as processed")
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
	}

	_, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 85.0, batch[0].ConfidenceScore)
	assert.Len(t, batch[0].Sources, 2)
	assert.Empty(t, batch[0].MergedEntities)
	assert.Equal(t, types.VerificationPossible, batch[0].VerificationStatus)
}

func TestResolveDeterministic(t *testing.T) {
	batch := []types.Entity{
		emailEntity("em-1", "alice@example.com", 2),
		emailEntity("em-2", "alice@example.com", 1),
		emailEntity("em-3", "alice@example.com", 1),
		emailEntity("em-5", "alice@example.org", 1),
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
		johnSmith("p-a", "jsmith@corp.com"),
		johnSmith("p-b", "john.smith@other.org"),
	}

	first, err := newTestResolver(t, "balanced").Resolve(context.Background(), batch)
	require.NoError(t, err)
	second, err := newTestResolver(t, "balanced").Resolve(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, resolvedIDs(first), resolvedIDs(second))
	require.Len(t, second.ResolvedEntities, len(first.ResolvedEntities))
	for i := range first.ResolvedEntities {
		assert.Equal(t, first.ResolvedEntities[i].ID, second.ResolvedEntities[i].ID)
		assert.Equal(t, first.ResolvedEntities[i].MergedEntities, second.ResolvedEntities[i].MergedEntities)
		assert.Equal(t, first.ResolvedEntities[i].ConfidenceScore, second.ResolvedEntities[i].ConfidenceScore)
	}
	assert.Len(t, second.ConflictsDetected, len(first.ConflictsDetected))
	assert.Len(t, second.ManualReviewRequired, len(first.ManualReviewRequired))
}

func TestResolveReresolutionIsFixedPoint(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		emailEntity("em-1", "alice@example.com", 2),
		emailEntity("em-2", "alice@example.com", 1),
		emailEntity("em-3", "alice@example.com", 1),
	}

	first, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 2, first.Metrics.EntitiesMerged)

	second, err := r.Resolve(context.Background(), first.ResolvedEntities)
	require.NoError(t, err)

	assert.Zero(t, second.Metrics.EntitiesMerged, "an already-resolved set stays put")
	assert.Equal(t, resolvedIDs(first), resolvedIDs(second))
}

func TestResolveCancelledContextYieldsPartialResult(t *testing.T) {
	r := newTestResolver(t, "balanced")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
	}
	result, err := r.Resolve(ctx, batch)
	require.NoError(t, err, "cancellation yields a partial result, not an error")

	assert.True(t, result.Partial)
	assert.Empty(t, result.ResolvedEntities)
	assert.Equal(t, 2, result.Metrics.EntitiesProcessed)
}

func TestResolveNoOrphanedConflicts(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
		johnSmith("p-a", "jsmith@corp.com"),
		johnSmith("p-b", "john.smith@other.org"),
	}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	known := make(map[string]bool)
	for i := range result.ResolvedEntities {
		e := &result.ResolvedEntities[i]
		known[e.ID] = true
		for _, absorbed := range e.MergedEntities {
			known[absorbed] = true
		}
	}
	for i := range result.ManualReviewRequired {
		known[result.ManualReviewRequired[i].ID] = true
	}

	require.NotEmpty(t, result.ConflictsDetected)
	for i := range result.ConflictsDetected {
		c := &result.ConflictsDetected[i]
		assert.True(t, known[c.Entity1ID], "conflict %s references unknown entity %s", c.ID, c.Entity1ID)
		assert.True(t, known[c.Entity2ID], "conflict %s references unknown entity %s", c.ID, c.Entity2ID)
	}
}

func TestResolveMixedBatchMetrics(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
		johnSmith("p-a", "jsmith@corp.com"),
		johnSmith("p-b", "john.smith@other.org"),
	}

	result, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	m := result.Metrics
	assert.Equal(t, 4, m.EntitiesProcessed)
	assert.Equal(t, 1, m.EntitiesResolved)
	assert.Equal(t, 1, m.EntitiesMerged)
	assert.Equal(t, 2, m.ManualReviewCount)
	assert.Equal(t, 2, m.ClustersFound)
	assert.Greater(t, m.ConflictRate, 0.0)
	assert.NotEmpty(t, m.ProcessingTime)

	profiles := m.ByType[types.EntityTypeSocialProfile]
	assert.Equal(t, 2, profiles.Processed)
	assert.Equal(t, 1, profiles.Merged)
	persons := m.ByType[types.EntityTypePerson]
	assert.Equal(t, 2, persons.ManualReview)
}

func TestResolverStatsAccumulate(t *testing.T) {
	r := newTestResolver(t, "balanced")
	batch := []types.Entity{
		socialProfile("sp-a", 85, 2),
		socialProfile("sp-b", 80, 1),
	}

	_, err := r.Resolve(context.Background(), batch)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), batch)
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.RunsCompleted)
	assert.Equal(t, int64(4), stats.EntitiesProcessed)
	assert.Equal(t, int64(2), stats.EntitiesMerged)
}

func TestResolveSingletonPassthrough(t *testing.T) {
	r := newTestResolver(t, "balanced")
	e := types.NewEntity(types.EntityTypeDomain, map[string]any{types.AttrDomain: "acme.com"})
	e.ID = "d-1"
	e.ConfidenceScore = 42
	e.VerificationStatus = types.VerificationVerified

	result, err := r.Resolve(context.Background(), []types.Entity{*e})
	require.NoError(t, err)

	require.Len(t, result.ResolvedEntities, 1)
	got := result.ResolvedEntities[0]
	assert.Equal(t, "d-1", got.ID)
	assert.Equal(t, 42.0, got.ConfidenceScore, "a lone entity passes through untouched")
	assert.Equal(t, types.VerificationVerified, got.VerificationStatus)
}
