/**
 * Knowledge Base
 *
 * Hybrid solution search over the relational store and the vector index.
 * Whether semantic search is available is decided once at construction:
 * with no index or embedder the knowledge base silently runs lexical-only.
 */

package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/errorscope/analysis-worker/internal/logging"
)

// KnowledgeBase combines the relational store and the vector index
type KnowledgeBase struct {
	store    SolutionStore
	index    VectorIndex
	embedder Embedder
	log      *logging.Logger
}

// NewKnowledgeBase creates a knowledge base. index and embedder may both be
// nil to run without semantic search; supplying only one of them is a
// configuration error.
func NewKnowledgeBase(store SolutionStore, index VectorIndex, embedder Embedder) (*KnowledgeBase, error) {
	if store == nil {
		return nil, fmt.Errorf("solution store is required")
	}
	if (index == nil) != (embedder == nil) {
		return nil, fmt.Errorf("vector index and embedder must be configured together")
	}

	logger := logging.NewLogger("KB")
	if index == nil {
		logger.Info("Vector index not configured, running lexical search only")
	}

	return &KnowledgeBase{store: store, index: index, embedder: embedder, log: logger}, nil
}

// SemanticEnabled reports whether the vector path is configured
func (k *KnowledgeBase) SemanticEnabled() bool {
	return k.index != nil
}

// Add stores the solution and then indexes it. The relational insert is
// authoritative; an indexing failure is logged and does not undo the add.
func (k *KnowledgeBase) Add(ctx context.Context, solution *Solution) (int64, error) {
	id, err := k.store.Add(ctx, solution)
	if err != nil {
		return 0, err
	}
	solution.ID = id

	if k.index != nil {
		if err := k.indexSolution(ctx, solution); err != nil {
			k.log.Warn("Failed to index solution, search degraded until reindex",
				"solution_id", id, "error", err)
		}
	}

	return id, nil
}

func (k *KnowledgeBase) indexSolution(ctx context.Context, solution *Solution) error {
	searchText := strings.TrimSpace(fmt.Sprintf("%s %s %s",
		solution.ErrorText, solution.ApplicationType, solution.ErrorCategory))

	vector, err := k.embedder.GenerateEmbedding(ctx, searchText)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	return k.index.Upsert(ctx, solution.ID, vector, map[string]string{
		"application_type": solution.ApplicationType,
		"error_category":   solution.ErrorCategory,
		"source":           solution.Source,
	})
}

// Search runs the hybrid lookup: the semantic path first when configured,
// then the lexical path. Results are merged semantic-first, deduplicated by
// id keeping the first occurrence, and truncated to limit.
func (k *KnowledgeBase) Search(ctx context.Context, query, applicationType string, limit int) ([]*Solution, error) {
	if limit <= 0 {
		limit = 10
	}

	var merged []*Solution

	if k.index != nil {
		semantic, err := k.semanticSearch(ctx, query, applicationType, limit)
		if err != nil {
			k.log.Warn("Semantic search failed, continuing with lexical", "error", err)
		} else {
			merged = append(merged, semantic...)
		}
	}

	lexical, err := k.store.TextSearch(ctx, query, applicationType, limit)
	if err != nil {
		if len(merged) == 0 {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		k.log.Warn("Lexical search failed, returning semantic results only", "error", err)
	} else {
		merged = append(merged, lexical...)
	}

	seen := make(map[int64]bool, len(merged))
	unique := make([]*Solution, 0, len(merged))
	for _, solution := range merged {
		if seen[solution.ID] {
			continue
		}
		seen[solution.ID] = true
		unique = append(unique, solution)
		if len(unique) == limit {
			break
		}
	}
	return unique, nil
}

func (k *KnowledgeBase) semanticSearch(ctx context.Context, query, applicationType string, limit int) ([]*Solution, error) {
	searchQuery := query
	if applicationType != "" {
		searchQuery += " " + applicationType
	}

	vector, err := k.embedder.GenerateEmbedding(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	ids, err := k.index.Query(ctx, vector, applicationType, limit)
	if err != nil {
		return nil, err
	}

	return k.store.GetByIDs(ctx, ids)
}

// GetByID resolves a single solution
func (k *KnowledgeBase) GetByID(ctx context.Context, id int64) (*Solution, error) {
	return k.store.GetByID(ctx, id)
}

// UpdateSuccessRate overwrites a solution's success rate
func (k *KnowledgeBase) UpdateSuccessRate(ctx context.Context, id int64, rate float64) error {
	return k.store.UpdateSuccessRate(ctx, id, rate)
}

// Statistics returns the store aggregates
func (k *KnowledgeBase) Statistics(ctx context.Context) (*Statistics, error) {
	return k.store.Statistics(ctx)
}
