/**
 * PostgreSQL Solution Store
 *
 * Authoritative storage for solutions and the analysis history audit trail.
 * The schema is ensured at startup so the worker can run against a fresh
 * database.
 */

package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const solutionColumns = `id, error_text, solution_text, application_type,
	error_category, source, success_rate, created_at, tags, steps`

// PostgresStore implements SolutionStore and HistoryStore over PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, configures the pool and ensures the schema
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return store, nil
}

func (p *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS solutions (
			id BIGSERIAL PRIMARY KEY,
			error_text TEXT NOT NULL,
			solution_text TEXT NOT NULL,
			application_type TEXT NOT NULL DEFAULT '',
			error_category TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			tags JSONB NOT NULL DEFAULT '[]',
			steps JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_application_type
			ON solutions (application_type)`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_error_category
			ON solutions (error_category)`,
		`CREATE TABLE IF NOT EXISTS solution_history (
			id BIGSERIAL PRIMARY KEY,
			error_text TEXT NOT NULL,
			error_type TEXT NOT NULL DEFAULT '',
			application_type TEXT NOT NULL DEFAULT '',
			solution_id BIGINT,
			solution_title TEXT NOT NULL DEFAULT '',
			was_helpful BOOLEAN,
			processing_time_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_application_type
			ON solution_history (application_type)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created_at
			ON solution_history (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Add inserts a solution and returns its generated id
func (p *PostgresStore) Add(ctx context.Context, solution *Solution) (int64, error) {
	if solution == nil {
		return 0, fmt.Errorf("solution is required")
	}
	if solution.ErrorText == "" {
		return 0, fmt.Errorf("error text is required")
	}
	if solution.SolutionText == "" {
		return 0, fmt.Errorf("solution text is required")
	}

	tagsJSON, err := json.Marshal(orEmpty(solution.Tags))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tags: %w", err)
	}
	stepsJSON, err := json.Marshal(orEmpty(solution.Steps))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal steps: %w", err)
	}

	var id int64
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO solutions
			(error_text, solution_text, application_type, error_category,
			 source, success_rate, tags, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		solution.ErrorText,
		solution.SolutionText,
		solution.ApplicationType,
		solution.ErrorCategory,
		solution.Source,
		solution.SuccessRate,
		tagsJSON,
		stepsJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert solution: %w", err)
	}

	return id, nil
}

// GetByID fetches one solution; returns sql.ErrNoRows when absent
func (p *PostgresStore) GetByID(ctx context.Context, id int64) (*Solution, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE id = $1`, id)
	return scanSolution(row)
}

// GetByIDs fetches solutions for the given ids, preserving the input order.
// Missing ids are silently skipped.
func (p *PostgresStore) GetByIDs(ctx context.Context, ids []int64) ([]*Solution, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Solution, len(ids))
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		byID[solution.ID] = solution
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	// Input order carries the semantic ranking
	result := make([]*Solution, 0, len(ids))
	for _, id := range ids {
		if solution, ok := byID[id]; ok {
			result = append(result, solution)
		}
	}
	return result, nil
}

// TextSearch finds solutions whose error or solution text contains the
// query, best success rate first
func (p *PostgresStore) TextSearch(ctx context.Context, query, applicationType string, limit int) ([]*Solution, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `SELECT ` + solutionColumns + ` FROM solutions
		WHERE (error_text ILIKE $1 OR solution_text ILIKE $1)`
	args := []interface{}{"%" + query + "%"}

	if applicationType != "" {
		sqlQuery += ` AND application_type = $2
			ORDER BY success_rate DESC LIMIT $3`
		args = append(args, applicationType, limit)
	} else {
		sqlQuery += ` ORDER BY success_rate DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer rows.Close()

	var result []*Solution
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, solution)
	}
	return result, rows.Err()
}

// UpdateSuccessRate overwrites the success rate. The value is stored as
// given; bounds are the caller's responsibility.
func (p *PostgresStore) UpdateSuccessRate(ctx context.Context, id int64, rate float64) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE solutions SET success_rate = $1 WHERE id = $2`, rate, id)
	if err != nil {
		return fmt.Errorf("failed to update success rate: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("solution %d not found", id)
	}
	return nil
}

// Statistics aggregates knowledge base counts
func (p *PostgresStore) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ByApplication: make(map[string]int64),
		ByCategory:    make(map[string]int64),
	}

	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(success_rate), 0) FROM solutions`).
		Scan(&stats.TotalSolutions, &stats.AvgSuccessRate); err != nil {
		return nil, fmt.Errorf("failed to count solutions: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT application_type, COUNT(*) FROM solutions GROUP BY application_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by application: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var app string
		var count int64
		if err := rows.Scan(&app, &count); err != nil {
			return nil, err
		}
		stats.ByApplication[app] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	catRows, err := p.db.QueryContext(ctx,
		`SELECT error_category, COUNT(*) FROM solutions GROUP BY error_category`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var category string
		var count int64
		if err := catRows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, catRows.Err()
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSolution(row rowScanner) (*Solution, error) {
	var s Solution
	var tagsJSON, stepsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.ErrorText,
		&s.SolutionText,
		&s.ApplicationType,
		&s.ErrorCategory,
		&s.Source,
		&s.SuccessRate,
		&s.CreatedAt,
		&tagsJSON,
		&stepsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan solution: %w", err)
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &s.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &s.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	}
	return &s, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var (
	_ SolutionStore = (*PostgresStore)(nil)
	_ HistoryStore  = (*PostgresStore)(nil)
)
