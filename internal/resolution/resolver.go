// Package resolution implements the entity resolution and deduplication
// engine: conflict detection, strategy selection, merging and the batch
// orchestrator.
package resolution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"osint-resolver/internal/evidence"
	"osint-resolver/internal/graph"
	"osint-resolver/internal/logging"
	"osint-resolver/internal/similarity"
	"osint-resolver/pkg/types"
)

// keepSeparateFloor and keepSeparateFactor down-weight the confidence of
// cluster members kept apart under unresolved ambiguity.
const (
	keepSeparateFloor  = 55.0
	keepSeparateFactor = 0.8
)

const defaultWorkers = 4

// Options configures a Resolver.
type Options struct {
	// Strategy is the name of the threshold bundle: conservative,
	// balanced or aggressive.
	Strategy string

	// Workers bounds how many entity-type partitions resolve
	// concurrently. Zero means the default.
	Workers int

	// Logger receives structured progress and audit logs. Nil means no
	// logging.
	Logger logging.Logger
}

// Resolver coordinates similarity scoring, clustering, conflict detection
// and merging over a batch of entities. One resolver holds one strategy;
// there is no per-call override.
type Resolver struct {
	strategy Strategy
	evidence *evidence.Scorer
	workers  int
	logger   logging.Logger

	mu    sync.Mutex
	stats CumulativeStats
}

// CumulativeStats exposes counters accumulated across runs for an
// external metrics collector.
type CumulativeStats struct {
	RunsCompleted     int64 `json:"runs_completed"`
	EntitiesProcessed int64 `json:"entities_processed"`
	EntitiesMerged    int64 `json:"entities_merged"`
	ConflictsDetected int64 `json:"conflicts_detected"`
	ManualReviewCount int64 `json:"manual_review_count"`
}

// NewResolver creates a resolver for the named strategy.
func NewResolver(opts Options) (*Resolver, error) {
	strategy, err := StrategyByName(opts.Strategy)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &Resolver{
		strategy: strategy,
		evidence: evidence.NewScorer(),
		workers:  workers,
		logger:   logger.WithComponent("resolver"),
	}, nil
}

// Strategy returns the strategy in effect for this resolver.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Stats returns a snapshot of the cumulative counters.
func (r *Resolver) Stats() CumulativeStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// partitionResult carries one entity-type partition's outcome back to the
// aggregation step.
type partitionResult struct {
	entityType   types.EntityType
	resolved     []types.Entity
	conflicts    []types.EntityConflict
	manualReview []types.Entity
	metrics      types.TypeMetrics
	partial      bool
}

// Resolve runs the full pipeline over a batch: validation, per-type
// partitioning, graph clustering and per-cluster resolution. Malformed
// entities are rejected individually without blocking the batch;
// cancellation between clusters yields a valid partial result. Identical
// input and strategy produce identical output.
func (r *Resolver) Resolve(ctx context.Context, entities []types.Entity) (*types.ResolutionResult, error) {
	startedAt := time.Now().UTC()
	runID := uuid.New().String()
	log := r.logger.WithFields("run_id", runID, "strategy", string(r.strategy.Name))

	log.Info("resolution run started", "entities", len(entities))

	valid, rejected := r.validate(entities)
	for _, rej := range rejected {
		log.Warn("rejected malformed entity", "entity_id", rej.EntityID, "reason", rej.Reason)
	}

	partitions := partitionByType(valid)

	// One similarity cache per run; partitions share it read-mostly and
	// it dies with the run.
	cache := similarity.NewPairCache()
	scorer := similarity.NewScorer(cache)

	results, err := r.resolvePartitions(ctx, partitions, scorer)
	if err != nil {
		log.Error("resolution run failed", "error", err.Error())
		return nil, err
	}

	result := r.assemble(runID, startedAt, results, rejected, len(valid))
	if err := r.checkInvariants(valid, result); err != nil {
		log.Error("resolution run failed", "error", err.Error())
		return nil, err
	}

	r.accumulate(result)
	log.Info("resolution run completed",
		"resolved", len(result.ResolvedEntities),
		"merged", result.Metrics.EntitiesMerged,
		"manual_review", len(result.ManualReviewRequired),
		"conflicts", len(result.ConflictsDetected),
		"partial", result.Partial,
		"duration", result.Metrics.ProcessingTime,
	)
	return result, nil
}

// validate rejects malformed entities and deep-copies the rest so
// resolution never mutates caller-owned records.
func (r *Resolver) validate(entities []types.Entity) (valid []*types.Entity, rejected []types.RejectedEntity) {
	valid = make([]*types.Entity, 0, len(entities))
	for i := range entities {
		if err := entities[i].Validate(); err != nil {
			id := entities[i].ID
			if id == "" {
				id = fmt.Sprintf("input[%d]", i)
			}
			rejected = append(rejected, types.RejectedEntity{EntityID: id, Reason: err.Error()})
			continue
		}
		valid = append(valid, entities[i].Clone())
	}
	return valid, rejected
}

// partitionByType groups entities by entity type. Entities are only ever
// compared or merged within one partition.
func partitionByType(entities []*types.Entity) map[types.EntityType][]*types.Entity {
	partitions := make(map[types.EntityType][]*types.Entity)
	for _, e := range entities {
		partitions[e.Type] = append(partitions[e.Type], e)
	}
	return partitions
}

// resolvePartitions fans the type partitions out over the worker pool.
// Partitions are disjoint, so workers share nothing but the similarity
// cache. Results come back indexed, keeping aggregation deterministic
// regardless of scheduling.
func (r *Resolver) resolvePartitions(ctx context.Context, partitions map[types.EntityType][]*types.Entity, scorer *similarity.Scorer) ([]partitionResult, error) {
	order := make([]types.EntityType, 0, len(partitions))
	for _, et := range types.AllEntityTypes() {
		if len(partitions[et]) > 0 {
			order = append(order, et)
		}
	}

	results := make([]partitionResult, len(order))
	errs := make([]error, len(order))

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for i, entityType := range order {
		wg.Add(1)
		go func(idx int, et types.EntityType) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], errs[idx] = r.resolvePartition(ctx, et, partitions[et], scorer)
		}(i, entityType)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// resolvePartition clusters one entity-type partition and resolves each
// cluster independently. The context is checked between clusters: on
// cancellation the clusters already resolved stand and the rest of the
// partition is abandoned.
func (r *Resolver) resolvePartition(ctx context.Context, entityType types.EntityType, members []*types.Entity, scorer *similarity.Scorer) (partitionResult, error) {
	builder := graph.NewBuilder(scorer, r.strategy.SimilarityThreshold)
	g := builder.Build(members)
	clusters := g.Clusters()

	byID := make(map[string]*types.Entity, len(members))
	for _, e := range members {
		byID[e.ID] = e
	}

	detector := NewConflictDetector(scorer)
	out := partitionResult{
		entityType:   entityType,
		resolved:     []types.Entity{},
		conflicts:    []types.EntityConflict{},
		manualReview: []types.Entity{},
	}
	out.metrics.Processed = len(members)
	out.metrics.Clusters = len(clusters)

	assigned := make(map[string]bool, len(members))
	for _, clusterIDs := range clusters {
		if ctx.Err() != nil {
			out.partial = true
			break
		}

		clusterMembers := make([]*types.Entity, 0, len(clusterIDs))
		for _, id := range clusterIDs {
			if assigned[id] {
				return partitionResult{}, &types.InvariantViolationError{
					EntityID:  id,
					ClusterID: clusterIDs[0],
					Strategy:  string(r.strategy.Name),
					Detail:    "entity assigned to more than one cluster",
				}
			}
			assigned[id] = true
			clusterMembers = append(clusterMembers, byID[id])
		}

		if err := r.resolveCluster(clusterMembers, g.EdgesWithin(clusterIDs), detector, &out); err != nil {
			return partitionResult{}, err
		}
	}

	return out, nil
}

// resolveCluster applies the strategy's decision procedure to one
// cluster and appends the outcome to the partition result.
func (r *Resolver) resolveCluster(members []*types.Entity, edges []graph.Edge, detector *ConflictDetector, out *partitionResult) error {
	if len(members) == 1 {
		out.resolved = append(out.resolved, *members[0])
		out.metrics.Resolved++
		r.logger.Debug("cluster resolved",
			"decision", string(DecisionPassthrough), "entity", members[0].ID)
		return nil
	}

	ranked := r.rankByEvidence(members)
	primary := ranked[0]
	others := ranked[1:]
	clusterID := members[0].ID

	// Conflicts are detected before the merge decision: a high-severity
	// conflict vetoes the merge no matter how strong the primary is.
	conflicts := detector.DetectCluster(ranked)

	if r.strategy.mergeEligible(primary) && !HasBlocking(conflicts) {
		merged := Merge(primary, others)
		if merged.ConfidenceScore < 0 || merged.ConfidenceScore > 100 {
			return &types.InvariantViolationError{
				EntityID:  merged.ID,
				ClusterID: clusterID,
				Strategy:  string(r.strategy.Name),
				Detail:    fmt.Sprintf("merge produced out-of-range confidence %.2f", merged.ConfidenceScore),
			}
		}
		out.resolved = append(out.resolved, *merged)
		out.metrics.Resolved++
		out.metrics.Merged += len(others)

		// Lower-severity conflicts overridden by the merge stay on the
		// record as resolved, and one low-severity audit conflict per
		// absorbed entity keeps the merge itself traceable, carrying the
		// similarity weight of the qualifying edge when one exists.
		for i := range conflicts {
			conflicts[i].Resolve(types.ResolutionMergedIntoPrimary)
		}
		out.conflicts = append(out.conflicts, conflicts...)

		weights := edgeWeights(edges)
		for _, other := range others {
			audit := types.NewEntityConflict(primary.ID, other.ID, types.ConflictTypeMergeAudit, types.SeverityLow)
			if weight, ok := weights[edgeKey(primary.ID, other.ID)]; ok {
				audit.Details = map[string]any{"similarity": weight}
			}
			audit.Resolve(types.ResolutionMergedIntoPrimary)
			out.conflicts = append(out.conflicts, *audit)
		}
		r.logger.Debug("cluster resolved",
			"decision", string(DecisionMerge),
			"primary", primary.ID, "absorbed", len(others), "type", string(primary.Type))
		return nil
	}

	if len(conflicts) == 0 {
		// Ambiguous but non-contradictory: keep the members apart and
		// down-weight their confidence.
		for _, member := range ranked {
			member.ConfidenceScore = math.Max(keepSeparateFloor, member.ConfidenceScore*keepSeparateFactor)
			member.Touch()
			out.resolved = append(out.resolved, *member)
		}
		out.metrics.Resolved += len(ranked)
		out.metrics.KeptSeparate += len(ranked)
		r.logger.Debug("cluster resolved",
			"decision", string(DecisionKeepSeparate),
			"cluster", clusterID, "members", len(ranked))
		return nil
	}

	// Contradictory evidence: a designed outcome, not an error. The whole
	// cluster goes to a human with its conflicts unresolved.
	for _, member := range ranked {
		out.manualReview = append(out.manualReview, *member)
	}
	out.conflicts = append(out.conflicts, conflicts...)
	out.metrics.ManualReview += len(ranked)
	r.logger.Debug("cluster resolved",
		"decision", string(DecisionManualReview),
		"cluster", clusterID, "members", len(ranked), "conflicts", len(conflicts))
	return nil
}

// edgeWeights indexes cluster edges by unordered entity id pair.
func edgeWeights(edges []graph.Edge) map[string]float64 {
	weights := make(map[string]float64, len(edges))
	for _, edge := range edges {
		weights[edgeKey(edge.Entity1ID, edge.Entity2ID)] = edge.Weight
	}
	return weights
}

func edgeKey(id1, id2 string) string {
	if id2 < id1 {
		id1, id2 = id2, id1
	}
	return id1 + "|" + id2
}

// rankByEvidence orders cluster members by evidence score descending,
// ties broken by entity id ascending so primary selection is
// deterministic when scores tie exactly.
func (r *Resolver) rankByEvidence(members []*types.Entity) []*types.Entity {
	ranked := make([]*types.Entity, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := r.evidence.Score(ranked[i])
		sj := r.evidence.Score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// assemble concatenates partition results in fixed entity-type order and
// computes the run metrics.
func (r *Resolver) assemble(runID string, startedAt time.Time, results []partitionResult, rejected []types.RejectedEntity, processed int) *types.ResolutionResult {
	result := &types.ResolutionResult{
		RunID:                runID,
		Strategy:             string(r.strategy.Name),
		ResolvedEntities:     []types.Entity{},
		ConflictsDetected:    []types.EntityConflict{},
		ManualReviewRequired: []types.Entity{},
		Rejected:             rejected,
		StartedAt:            startedAt,
	}

	byType := make(map[types.EntityType]types.TypeMetrics)
	for i := range results {
		pr := &results[i]
		result.ResolvedEntities = append(result.ResolvedEntities, pr.resolved...)
		result.ConflictsDetected = append(result.ConflictsDetected, pr.conflicts...)
		result.ManualReviewRequired = append(result.ManualReviewRequired, pr.manualReview...)
		byType[pr.entityType] = pr.metrics
		result.Partial = result.Partial || pr.partial

		result.Metrics.EntitiesResolved += pr.metrics.Resolved
		result.Metrics.EntitiesMerged += pr.metrics.Merged
		result.Metrics.EntitiesKeptSeparate += pr.metrics.KeptSeparate
		result.Metrics.ManualReviewCount += pr.metrics.ManualReview
		result.Metrics.ClustersFound += pr.metrics.Clusters
	}

	result.Metrics.EntitiesProcessed = processed
	result.Metrics.ConflictsDetected = len(result.ConflictsDetected)
	result.Metrics.ByType = byType
	if processed > 0 {
		result.Metrics.ConflictRate = float64(len(result.ConflictsDetected)) / float64(processed)
	}
	if len(result.ResolvedEntities) > 0 {
		var total float64
		for i := range result.ResolvedEntities {
			total += result.ResolvedEntities[i].ConfidenceScore
		}
		result.Metrics.AverageConfidence = total / float64(len(result.ResolvedEntities))
	}

	result.CompletedAt = time.Now().UTC()
	result.Metrics.ProcessingTime = result.CompletedAt.Sub(startedAt).String()
	return result
}

// checkInvariants verifies the assembled result before it is returned:
// no entity may surface twice, every confidence must be in range, and
// every conflict must reference entities the result still accounts for.
func (r *Resolver) checkInvariants(input []*types.Entity, result *types.ResolutionResult) error {
	known := make(map[string]bool)
	surfaced := make(map[string]bool)

	record := func(e *types.Entity) error {
		if surfaced[e.ID] {
			return &types.InvariantViolationError{
				EntityID: e.ID,
				Strategy: string(r.strategy.Name),
				Detail:   "entity surfaced more than once in the result",
			}
		}
		surfaced[e.ID] = true
		known[e.ID] = true
		if e.ConfidenceScore < 0 || e.ConfidenceScore > 100 {
			return &types.InvariantViolationError{
				EntityID: e.ID,
				Strategy: string(r.strategy.Name),
				Detail:   fmt.Sprintf("confidence %.2f out of [0,100]", e.ConfidenceScore),
			}
		}
		for _, absorbed := range e.MergedEntities {
			known[absorbed] = true
		}
		return nil
	}

	for i := range result.ResolvedEntities {
		if err := record(&result.ResolvedEntities[i]); err != nil {
			return err
		}
	}
	for i := range result.ManualReviewRequired {
		if err := record(&result.ManualReviewRequired[i]); err != nil {
			return err
		}
	}

	// A partial run legitimately drops unprocessed entities; a complete
	// run must account for every valid input.
	if !result.Partial {
		for _, e := range input {
			if !known[e.ID] {
				return &types.InvariantViolationError{
					EntityID: e.ID,
					Strategy: string(r.strategy.Name),
					Detail:   "entity lost during resolution",
				}
			}
		}
	}

	for i := range result.ConflictsDetected {
		c := &result.ConflictsDetected[i]
		if !known[c.Entity1ID] || !known[c.Entity2ID] {
			return &types.InvariantViolationError{
				EntityID:  c.Entity1ID,
				ClusterID: c.ID,
				Strategy:  string(r.strategy.Name),
				Detail:    "conflict references an entity absent from the result",
			}
		}
	}
	return nil
}

func (r *Resolver) accumulate(result *types.ResolutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.RunsCompleted++
	r.stats.EntitiesProcessed += int64(result.Metrics.EntitiesProcessed)
	r.stats.EntitiesMerged += int64(result.Metrics.EntitiesMerged)
	r.stats.ConflictsDetected += int64(len(result.ConflictsDetected))
	r.stats.ManualReviewCount += int64(result.Metrics.ManualReviewCount)
}
