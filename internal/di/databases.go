package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/meridian/internal/config"
	"github.com/aristath/meridian/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
	}{
		// history.db - Daily bars and strategy signals
		{&container.HistoryDB, "history", database.ProfileStandard},
		// runs.db - Immutable backtest reports
		{&container.RunsDB, "runs", database.ProfileLedger},
		// cache.db - Ephemeral covariance matrices
		{&container.CacheDB, "cache", database.ProfileCache},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")

	return container, nil
}
