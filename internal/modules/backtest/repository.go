package backtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// RunRepository persists finished reports in the runs database.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "backtest_runs").Logger(),
	}
}

// Save stores a report. Reports are immutable, so saving an existing run ID fails.
func (r *RunRepository) Save(ctx context.Context, report Report) error {
	curve, err := msgpack.Marshal(report.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to encode equity curve: %w", err)
	}

	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			run_id, strategy_id, start_date, end_date, created_at,
			start_nav, final_nav, sharpe, max_drawdown, turnover, transaction_costs,
			rebalances, price_lookups, missing_prices, stale_prices, equity_curve
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID, report.StrategyID,
		report.Start.Format(marketdata.DateLayout), report.End.Format(marketdata.DateLayout),
		createdAt.Unix(),
		report.StartNAV, report.FinalNAV, report.Sharpe, report.MaxDrawdown, report.Turnover, report.TransactionCosts,
		report.Rebalances, report.PriceLookups, report.MissingPrices, report.StalePrices, curve,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest run %s: %w", report.RunID, err)
	}

	return nil
}

// Get loads a full report including its equity curve.
func (r *RunRepository) Get(ctx context.Context, runID string) (*Report, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, strategy_id, start_date, end_date, created_at,
			start_nav, final_nav, sharpe, max_drawdown, turnover, transaction_costs,
			rebalances, price_lookups, missing_prices, stale_prices, equity_curve
		FROM backtest_runs
		WHERE run_id = ?
	`, runID)

	var report Report
	var start, end string
	var createdAt int64
	var curve []byte
	err := row.Scan(
		&report.RunID, &report.StrategyID, &start, &end, &createdAt,
		&report.StartNAV, &report.FinalNAV, &report.Sharpe, &report.MaxDrawdown, &report.Turnover, &report.TransactionCosts,
		&report.Rebalances, &report.PriceLookups, &report.MissingPrices, &report.StalePrices, &curve,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run %s: %w", runID, err)
	}

	if report.Start, err = time.Parse(marketdata.DateLayout, start); err != nil {
		return nil, fmt.Errorf("invalid start date for run %s: %w", runID, err)
	}
	if report.End, err = time.Parse(marketdata.DateLayout, end); err != nil {
		return nil, fmt.Errorf("invalid end date for run %s: %w", runID, err)
	}
	report.CreatedAt = time.Unix(createdAt, 0).UTC()

	if err := msgpack.Unmarshal(curve, &report.EquityCurve); err != nil {
		return nil, fmt.Errorf("failed to decode equity curve for run %s: %w", runID, err)
	}
	for i := range report.EquityCurve {
		report.EquityCurve[i].Date = report.EquityCurve[i].Date.UTC()
	}

	return &report, nil
}

// List returns run summaries, newest first. An empty strategyID lists every strategy.
func (r *RunRepository) List(ctx context.Context, strategyID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT run_id, strategy_id, start_date, end_date, final_nav, sharpe, max_drawdown, turnover, created_at
		FROM backtest_runs
	`
	args := []interface{}{}
	if strategyID != "" {
		query += " WHERE strategy_id = ?"
		args = append(args, strategyID)
	}
	query += " ORDER BY created_at DESC, run_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var start, end string
		var createdAt int64
		if err := rows.Scan(&s.RunID, &s.StrategyID, &start, &end, &s.FinalNAV, &s.Sharpe, &s.MaxDrawdown, &s.Turnover, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		s.Start, _ = time.Parse(marketdata.DateLayout, start)
		s.End, _ = time.Parse(marketdata.DateLayout, end)
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}

	return summaries, nil
}

// DeleteOlderThan removes runs created before cutoff and returns the number deleted.
func (r *RunRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM backtest_runs WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old backtest runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Deleted old backtest runs")
	}
	return deleted, nil
}
