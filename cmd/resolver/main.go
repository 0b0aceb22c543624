// resolver is the command line front end for the entity resolution
// engine: it reads a batch of normalized entity records from a JSON file,
// resolves duplicates under the configured strategy and prints a summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"osint-resolver/internal/config"
	"osint-resolver/internal/logging"
	"osint-resolver/internal/resolution"
	"osint-resolver/internal/storage"
	"osint-resolver/pkg/types"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "Path to a JSON file containing the entity batch")
		configPath = flag.String("config", "", "Path to a YAML config file (optional)")
		strategy   = flag.String("strategy", "", "Override the resolution strategy: conservative, balanced or aggressive")
		outputPath = flag.String("output", "", "Write the full ResolutionResult JSON to this path (default: stdout summary only)")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: resolver -input entities.json [-config config.yaml] [-strategy balanced]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *strategy != "" {
		cfg.Resolution.Strategy = *strategy
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format)

	entities, err := loadEntities(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load entities: %v\n", err)
		os.Exit(1)
	}

	resolver, err := resolution.NewResolver(resolution.Options{
		Strategy: cfg.Resolution.Strategy,
		Workers:  cfg.Resolution.Workers,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create resolver: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := resolver.Resolve(ctx, entities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolution failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.Audit.Enabled {
		if err := recordAudit(ctx, cfg, logger, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to record audit run: %v\n", err)
		}
	}

	if *outputPath != "" {
		if err := writeResult(*outputPath, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
			os.Exit(1)
		}
	}

	printSummary(result)
}

func loadEntities(path string) ([]types.Entity, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
	if err != nil {
		return nil, err
	}
	var entities []types.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("invalid entity JSON in %s: %w", path, err)
	}
	return entities, nil
}

func recordAudit(ctx context.Context, cfg *config.Config, logger logging.Logger, result *types.ResolutionResult) error {
	store, err := storage.NewAuditStore(cfg.Audit.Path, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.RecordRun(ctx, result)
}

func writeResult(path string, result *types.ResolutionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printSummary(result *types.ResolutionResult) {
	title := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	_, _ = title.Printf("Resolution run %s (strategy: %s)\n", result.RunID, result.Strategy)
	if result.Partial {
		_, _ = warn.Println("  PARTIAL RESULT: the run was cancelled before completing")
	}

	m := result.Metrics
	fmt.Printf("  processed: %d   resolved: %d   merged: %d   kept separate: %d\n",
		m.EntitiesProcessed, m.EntitiesResolved, m.EntitiesMerged, m.EntitiesKeptSeparate)
	fmt.Printf("  clusters: %d   avg confidence: %.1f   duration: %s\n",
		m.ClustersFound, m.AverageConfidence, m.ProcessingTime)

	titleCase := cases.Title(language.English)
	entityTypes := make([]string, 0, len(m.ByType))
	for et := range m.ByType {
		entityTypes = append(entityTypes, string(et))
	}
	sort.Strings(entityTypes)
	for _, et := range entityTypes {
		tm := m.ByType[types.EntityType(et)]
		label := titleCase.String(string(et))
		fmt.Printf("    %-15s processed=%d resolved=%d merged=%d manual=%d\n",
			label, tm.Processed, tm.Resolved, tm.Merged, tm.ManualReview)
	}

	unresolved := result.UnresolvedConflicts()
	if len(unresolved) > 0 {
		_, _ = bad.Printf("  %d unresolved conflict(s)\n", len(unresolved))
	} else {
		_, _ = good.Println("  no unresolved conflicts")
	}

	// Manual-review clusters must never be silently auto-accepted; the
	// summary calls them out separately from the resolved inventory.
	if len(result.ManualReviewRequired) > 0 {
		_, _ = warn.Printf("  %d entit(ies) require manual review:\n", len(result.ManualReviewRequired))
		for i := range result.ManualReviewRequired {
			e := &result.ManualReviewRequired[i]
			fmt.Printf("    - %s [%s] %s\n", e.ID, e.Type, e.Principal())
		}
	}

	if len(result.Rejected) > 0 {
		_, _ = bad.Printf("  %d malformed entit(ies) rejected:\n", len(result.Rejected))
		for _, rej := range result.Rejected {
			fmt.Printf("    - %s: %s\n", rej.EntityID, rej.Reason)
		}
	}
}
