package store

func (s *Store) runMigrations() error {
	migrations := []string{
		// one row per analyzed trial; data holds the full report JSON
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			trial_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL CHECK(source IN ('json', 'csv', 'video', 'batch', 'websocket', 'cli')),
			dominant_side TEXT NOT NULL CHECK(dominant_side IN ('left', 'right')),
			ffc_frame INTEGER,
			release_frame INTEGER,
			fallback INTEGER NOT NULL DEFAULT 0,
			frames_processed INTEGER NOT NULL DEFAULT 0,
			frames_incomplete INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// summary rows in report order; NULL marks an undefined value
		`CREATE TABLE IF NOT EXISTS report_rows (
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			feature TEXT NOT NULL,
			average REAL,
			min REAL,
			max REAL,
			frames INTEGER NOT NULL,
			phase TEXT NOT NULL,
			PRIMARY KEY (report_id, position)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reports_trial_id ON reports(trial_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_report_rows_feature ON report_rows(feature)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
