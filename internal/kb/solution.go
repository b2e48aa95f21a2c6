/**
 * Knowledge Base Types for ErrorScope Analysis Worker
 *
 * The relational store is the source of truth for solutions; the vector
 * index holds derived search documents keyed by the same id and can be
 * rebuilt from the store at any time.
 */

package kb

import (
	"context"
	"time"
)

// Solution is a known fix for an error
type Solution struct {
	ID              int64
	ErrorText       string
	SolutionText    string
	ApplicationType string
	ErrorCategory   string
	Source          string
	SuccessRate     float64
	CreatedAt       time.Time
	Tags            []string
	Steps           []string
}

// Statistics summarizes the knowledge base contents
type Statistics struct {
	TotalSolutions int64
	ByApplication  map[string]int64
	ByCategory     map[string]int64
	AvgSuccessRate float64
}

// HistoryRecord is one analyzed error and the solution offered for it
type HistoryRecord struct {
	ID               int64
	ErrorText        string
	ErrorType        string
	ApplicationType  string
	SolutionID       int64
	SolutionTitle    string
	WasHelpful       *bool
	ProcessingTimeMs int64
	CreatedAt        time.Time
}

// SolutionStore is the authoritative relational store
type SolutionStore interface {
	Add(ctx context.Context, solution *Solution) (int64, error)
	GetByID(ctx context.Context, id int64) (*Solution, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*Solution, error)
	TextSearch(ctx context.Context, query, applicationType string, limit int) ([]*Solution, error)
	UpdateSuccessRate(ctx context.Context, id int64, rate float64) error
	Statistics(ctx context.Context) (*Statistics, error)
}

// VectorIndex is the derived semantic index over solutions
type VectorIndex interface {
	Upsert(ctx context.Context, id int64, vector []float32, payload map[string]string) error
	Query(ctx context.Context, vector []float32, applicationType string, limit int) ([]int64, error)
}

// Embedder turns text into a dense vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// HistoryStore records the analysis audit trail
type HistoryStore interface {
	RecordAnalysis(ctx context.Context, record *HistoryRecord) (int64, error)
	SetHelpful(ctx context.Context, recordID int64, helpful bool) error
}
