package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/meridian/internal/database"
	"github.com/aristath/meridian/internal/utils"
	"github.com/rs/zerolog"
)

// BarRepository handles daily bar persistence in the history database.
type BarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBarRepository creates a new bar repository
func NewBarRepository(db *sql.DB, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		db:  db,
		log: log.With().Str("repo", "bars").Logger(),
	}
}

// UpsertBars inserts or replaces bars in a single transaction.
func (r *BarRepository) UpsertBars(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			if b.Symbol == "" {
				return fmt.Errorf("bar without symbol on %s", b.Date.Format(DateLayout))
			}
			if _, err := stmt.ExecContext(ctx, b.Symbol, Day(b.Date).Format(DateLayout),
				b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return fmt.Errorf("failed to upsert bar %s %s: %w", b.Symbol, b.Date.Format(DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("bars", len(bars)).Msg("Upserted bars")
	return nil
}

// GetBars returns bars for the symbols in [start, end], keyed by symbol and ordered
// by date ascending. Symbols without bars are absent from the map.
func (r *BarRepository) GetBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]Bar, error) {
	result := make(map[string][]Bar)
	if len(symbols) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, volume
		FROM bars
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY symbol ASC, date ASC
	`, placeholders(len(symbols)))

	args := make([]interface{}, 0, len(symbols)+2)
	for _, s := range symbols {
		args = append(args, s)
	}
	args = append(args, Day(start).Format(DateLayout), Day(end).Format(DateLayout))

	done := utils.MeasureQuery("get_bars", r.log)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		var b Bar
		var date string
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Date, err = time.Parse(DateLayout, date); err != nil {
			return nil, fmt.Errorf("invalid bar date %q for %s: %w", date, b.Symbol, err)
		}
		result[b.Symbol] = append(result[b.Symbol], b)
		count++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	done(count)

	return result, nil
}

// GetCloses returns the dates in [start, end] on which every symbol has a bar, oldest
// first, with one row of closes per date in symbol order.
func (r *BarRepository) GetCloses(ctx context.Context, symbols []string, start, end time.Time) ([]time.Time, [][]float64, error) {
	bars, err := r.GetBars(ctx, symbols, start, end)
	if err != nil {
		return nil, nil, err
	}
	if len(symbols) == 0 {
		return nil, nil, nil
	}

	closesBySymbol := make([]map[time.Time]float64, len(symbols))
	for j, symbol := range symbols {
		closesBySymbol[j] = make(map[time.Time]float64, len(bars[symbol]))
		for _, b := range bars[symbol] {
			closesBySymbol[j][b.Date] = b.Close
		}
	}

	var dates []time.Time
	var rows [][]float64
	// The first symbol's bars are date-ordered, so the intersection is too.
	for _, b := range bars[symbols[0]] {
		row := make([]float64, len(symbols))
		complete := true
		for j := range symbols {
			c, ok := closesBySymbol[j][b.Date]
			if !ok {
				complete = false
				break
			}
			row[j] = c
		}
		if complete {
			dates = append(dates, b.Date)
			rows = append(rows, row)
		}
	}

	if dropped := len(bars[symbols[0]]) - len(dates); dropped > 0 {
		r.log.Debug().
			Int("dropped_dates", dropped).
			Int("symbols", len(symbols)).
			Msg("Dropped dates without a close for every symbol")
	}

	return dates, rows, nil
}

// DeleteBefore removes bars dated before cutoff and returns the number deleted.
func (r *BarRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM bars WHERE date < ?", Day(cutoff).Format(DateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old bars: %w", err)
	}
	return result.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
