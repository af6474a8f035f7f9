package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for run history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRun inserts a new Run and sets its database ID.
func (s *Store) CreateRun(run *Run) error {
	const query = `
		INSERT INTO runs (
			run_id, source_dir, dest_dir, strategy, dry_run, start_time, end_time,
			total_files, copied_files, skipped_dups, skipped_metadata, renamed_files,
			errors, total_bytes, copied_bytes, status, error_message, manifest_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.RunID, run.SourceDir, run.DestDir, run.Strategy, run.DryRun,
		run.StartTime, run.EndTime, run.TotalFiles, run.CopiedFiles,
		run.SkippedDups, run.SkippedMetadata, run.RenamedFiles, run.Errors,
		run.TotalBytes, run.CopiedBytes, run.Status, run.ErrorMessage, run.ManifestPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateRun updates an existing Run by database ID.
func (s *Store) UpdateRun(run *Run) error {
	const query = `
		UPDATE runs SET
			source_dir = ?, dest_dir = ?, strategy = ?, dry_run = ?,
			start_time = ?, end_time = ?, total_files = ?, copied_files = ?,
			skipped_dups = ?, skipped_metadata = ?, renamed_files = ?, errors = ?,
			total_bytes = ?, copied_bytes = ?, status = ?, error_message = ?, manifest_path = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.SourceDir, run.DestDir, run.Strategy, run.DryRun,
		run.StartTime, run.EndTime, run.TotalFiles, run.CopiedFiles,
		run.SkippedDups, run.SkippedMetadata, run.RenamedFiles, run.Errors,
		run.TotalBytes, run.CopiedBytes, run.Status, run.ErrorMessage, run.ManifestPath,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %d", run.ID)
	}

	return nil
}

// GetRun retrieves a Run by its uuid.
func (s *Store) GetRun(runID string) (*Run, error) {
	const query = `
		SELECT id, run_id, source_dir, dest_dir, strategy, dry_run, start_time, end_time,
		       total_files, copied_files, skipped_dups, skipped_metadata, renamed_files,
		       errors, total_bytes, copied_bytes, status, error_message, manifest_path
		FROM runs WHERE run_id = ?
	`

	run := &Run{}
	err := s.db.QueryRow(query, runID).Scan(
		&run.ID, &run.RunID, &run.SourceDir, &run.DestDir, &run.Strategy, &run.DryRun,
		&run.StartTime, &run.EndTime, &run.TotalFiles, &run.CopiedFiles,
		&run.SkippedDups, &run.SkippedMetadata, &run.RenamedFiles, &run.Errors,
		&run.TotalBytes, &run.CopiedBytes, &run.Status, &run.ErrorMessage, &run.ManifestPath,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves runs, most recent first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, run_id, source_dir, dest_dir, strategy, dry_run, start_time, end_time,
		       total_files, copied_files, skipped_dups, skipped_metadata, renamed_files,
		       errors, total_bytes, copied_bytes, status, error_message, manifest_path
		FROM runs ORDER BY start_time DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run := Run{}
		err := rows.Scan(
			&run.ID, &run.RunID, &run.SourceDir, &run.DestDir, &run.Strategy, &run.DryRun,
			&run.StartTime, &run.EndTime, &run.TotalFiles, &run.CopiedFiles,
			&run.SkippedDups, &run.SkippedMetadata, &run.RenamedFiles, &run.Errors,
			&run.TotalBytes, &run.CopiedBytes, &run.Status, &run.ErrorMessage, &run.ManifestPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// AddCopiedFile records a file placed by a run.
func (s *Store) AddCopiedFile(rec *CopiedFile) error {
	const query = `
		INSERT INTO copied_files (run_db_id, source, dest, size, sha256, renamed, copied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.RunDBID, rec.Source, rec.Dest, rec.Size, rec.SHA256, rec.Renamed, rec.CopiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert copied file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id

	return nil
}

// ListCopiedFiles retrieves the files recorded for a run, in insert order.
func (s *Store) ListCopiedFiles(runDBID int64) ([]CopiedFile, error) {
	const query = `
		SELECT id, run_db_id, source, dest, size, sha256, renamed, copied_at
		FROM copied_files WHERE run_db_id = ? ORDER BY id
	`

	rows, err := s.db.Query(query, runDBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query copied files: %w", err)
	}
	defer rows.Close()

	var recs []CopiedFile
	for rows.Next() {
		rec := CopiedFile{}
		if err := rows.Scan(
			&rec.ID, &rec.RunDBID, &rec.Source, &rec.Dest,
			&rec.Size, &rec.SHA256, &rec.Renamed, &rec.CopiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan copied file: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating copied files: %w", err)
	}

	return recs, nil
}

// CountCopiedFiles returns how many files a run recorded.
func (s *Store) CountCopiedFiles(runDBID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM copied_files WHERE run_db_id = ?", runDBID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count copied files: %w", err)
	}
	return count, nil
}
