package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per pipeline bring-up
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			cache_mode TEXT NOT NULL,
			pixel_path TEXT NOT NULL CHECK(pixel_path IN ('hardware', 'software')),
			started_at DATETIME NOT NULL,
			stopped_at DATETIME,
			frames INTEGER NOT NULL DEFAULT 0,
			fault TEXT NOT NULL DEFAULT ''
		)`,

		// Classification results, one per processed frame
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			class_index INTEGER NOT NULL,
			label TEXT NOT NULL,
			score REAL NOT NULL,
			inference_ms REAL NOT NULL,
			fps REAL NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(run_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
