package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("current schema version", "version", currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL UNIQUE,
					source_dir TEXT NOT NULL,
					dest_dir TEXT NOT NULL,
					strategy TEXT NOT NULL,
					dry_run BOOLEAN DEFAULT 0,
					start_time DATETIME NOT NULL,
					end_time DATETIME,
					total_files INTEGER DEFAULT 0,
					copied_files INTEGER DEFAULT 0,
					skipped_dups INTEGER DEFAULT 0,
					skipped_metadata INTEGER DEFAULT 0,
					renamed_files INTEGER DEFAULT 0,
					errors INTEGER DEFAULT 0,
					total_bytes INTEGER DEFAULT 0,
					copied_bytes INTEGER DEFAULT 0,
					status TEXT DEFAULT 'running',
					error_message TEXT,
					manifest_path TEXT
				);

				CREATE TABLE copied_files (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_db_id INTEGER NOT NULL,
					source TEXT NOT NULL,
					dest TEXT NOT NULL,
					size INTEGER DEFAULT 0,
					sha256 TEXT,
					renamed BOOLEAN DEFAULT 0,
					copied_at DATETIME,
					FOREIGN KEY(run_db_id) REFERENCES runs(id)
				);

				CREATE INDEX idx_copied_files_run ON copied_files(run_db_id);
			`,
		},
	}

	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("running migration", "version", mig.version)

			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}
		}
	}

	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}
