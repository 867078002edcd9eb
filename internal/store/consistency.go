package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// ConsistencyReport describes divergence between SQLite and the vector
// graphs for one namespace.
type ConsistencyReport struct {
	Namespace string
	// MissingFromGraph are chunk IDs present in SQLite but not in the graph.
	MissingFromGraph []string
	// OrphanedInGraph are live graph IDs with no SQLite chunk row.
	OrphanedInGraph []string
}

// Consistent reports whether the namespace needs no repair.
func (r ConsistencyReport) Consistent() bool {
	return len(r.MissingFromGraph) == 0 && len(r.OrphanedInGraph) == 0
}

// CheckConsistency compares every registered namespace's chunk rows against
// its graph. SQLite is authoritative, so the graph is the side that gets
// repaired.
func CheckConsistency(ctx context.Context, fs FingerprintStore, idx *NamespacedIndex) ([]ConsistencyReport, error) {
	namespaces, err := fs.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	reports := make([]ConsistencyReport, 0, len(namespaces))
	for ns := range namespaces {
		embeddings, err := fs.EmbeddingsByNamespace(ctx, ns)
		if err != nil {
			return nil, err
		}

		graphIDs := make(map[string]bool)
		for _, id := range idx.AllIDs(ns) {
			graphIDs[id] = true
		}

		report := ConsistencyReport{Namespace: ns}
		for id := range embeddings {
			if !graphIDs[id] {
				report.MissingFromGraph = append(report.MissingFromGraph, id)
			}
		}
		for id := range graphIDs {
			if _, ok := embeddings[id]; !ok {
				report.OrphanedInGraph = append(report.OrphanedInGraph, id)
			}
		}
		sort.Strings(report.MissingFromGraph)
		sort.Strings(report.OrphanedInGraph)
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Namespace < reports[j].Namespace })
	return reports, nil
}

// RepairConsistency rebuilds every inconsistent namespace from SQLite.
func RepairConsistency(ctx context.Context, fs FingerprintStore, idx *NamespacedIndex, logger *slog.Logger) error {
	reports, err := CheckConsistency(ctx, fs, idx)
	if err != nil {
		return err
	}

	namespaces, err := fs.Namespaces(ctx)
	if err != nil {
		return err
	}

	for _, r := range reports {
		if r.Consistent() {
			continue
		}
		logger.Warn("vector graph diverged from database, rebuilding",
			slog.String("namespace", r.Namespace),
			slog.Int("missing", len(r.MissingFromGraph)),
			slog.Int("orphaned", len(r.OrphanedInGraph)))

		if err := idx.Rebuild(ctx, fs, r.Namespace, namespaces[r.Namespace]); err != nil {
			return fmt.Errorf("repair %s: %w", r.Namespace, err)
		}
	}
	return nil
}
