package kb

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordAnalysis appends one analyzed error to the history audit trail.
// A zero SolutionID means no solution was offered.
func (p *PostgresStore) RecordAnalysis(ctx context.Context, record *HistoryRecord) (int64, error) {
	if record == nil {
		return 0, fmt.Errorf("history record is required")
	}
	if record.ErrorText == "" {
		return 0, fmt.Errorf("error text is required")
	}

	var solutionID sql.NullInt64
	if record.SolutionID > 0 {
		solutionID = sql.NullInt64{Int64: record.SolutionID, Valid: true}
	}

	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO solution_history
			(error_text, error_type, application_type, solution_id,
			 solution_title, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		record.ErrorText,
		record.ErrorType,
		record.ApplicationType,
		solutionID,
		record.SolutionTitle,
		record.ProcessingTimeMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record analysis: %w", err)
	}
	return id, nil
}

// SetHelpful marks a history record with user feedback
func (p *PostgresStore) SetHelpful(ctx context.Context, recordID int64, helpful bool) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE solution_history
		SET was_helpful = $1, updated_at = NOW()
		WHERE id = $2`,
		helpful, recordID)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("history record %d not found", recordID)
	}
	return nil
}

// HistoryStatistics summarizes the audit trail: total records, helpful
// count and the share of helpful feedback among all records.
func (p *PostgresStore) HistoryStatistics(ctx context.Context) (total, helpful int64, helpfulShare float64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE was_helpful)
		FROM solution_history`).Scan(&total, &helpful)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate history: %w", err)
	}
	if total > 0 {
		helpfulShare = float64(helpful) / float64(total) * 100
	}
	return total, helpful, helpfulShare, nil
}
