package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/meridian/internal/database"
	"github.com/aristath/meridian/internal/utils"
	"github.com/rs/zerolog"
)

// SignalRepository handles strategy signal persistence in the history database.
type SignalRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(db *sql.DB, log zerolog.Logger) *SignalRepository {
	return &SignalRepository{
		db:  db,
		log: log.With().Str("repo", "signals").Logger(),
	}
}

// InsertSignals inserts or replaces signals in a single transaction.
func (r *SignalRepository) InsertSignals(ctx context.Context, signals []Signal) error {
	if len(signals) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO signals (strategy_id, asof, symbol, score)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare signal insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range signals {
			if s.StrategyID == "" || s.Symbol == "" {
				return fmt.Errorf("signal requires strategy and symbol")
			}
			if _, err := stmt.ExecContext(ctx, s.StrategyID, Day(s.AsOf).Format(DateLayout), s.Symbol, s.Score); err != nil {
				return fmt.Errorf("failed to insert signal %s/%s: %w", s.StrategyID, s.Symbol, err)
			}
		}
		return nil
	})
}

// GetSignals returns a strategy's signals in [start, end] ordered by date, then symbol.
func (r *SignalRepository) GetSignals(ctx context.Context, strategyID string, start, end time.Time) ([]Signal, error) {
	done := utils.MeasureQuery("get_signals", r.log)

	rows, err := r.db.QueryContext(ctx, `
		SELECT strategy_id, asof, symbol, score
		FROM signals
		WHERE strategy_id = ? AND asof >= ? AND asof <= ?
		ORDER BY asof ASC, symbol ASC
	`, strategyID, Day(start).Format(DateLayout), Day(end).Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var s Signal
		var asof string
		if err := rows.Scan(&s.StrategyID, &asof, &s.Symbol, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if s.AsOf, err = time.Parse(DateLayout, asof); err != nil {
			return nil, fmt.Errorf("invalid signal date %q: %w", asof, err)
		}
		signals = append(signals, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	done(int64(len(signals)))
	return signals, nil
}
