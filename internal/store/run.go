package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is one pipeline session, from bring-up to stop or fault.
type Run struct {
	ID        string     `json:"id"`
	Profile   string     `json:"profile"`
	CacheMode string     `json:"cache_mode"`
	PixelPath string     `json:"pixel_path"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Frames    int64      `json:"frames"`
	Fault     string     `json:"fault,omitempty"`
}

// RunRepository provides access to runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new run. An empty ID is filled with a fresh UUID.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, profile, cache_mode, pixel_path, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Profile, run.CacheMode, run.PixelPath, run.StartedAt,
	)
	return err
}

// Finish records how a run ended. An empty fault means a clean stop.
func (r *RunRepository) Finish(id string, frames int64, fault string) error {
	result, err := r.db.Exec(
		`UPDATE runs SET stopped_at = ?, frames = ?, fault = ? WHERE id = ?`,
		time.Now(), frames, fault, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(
		`SELECT id, profile, cache_mode, pixel_path, started_at, stopped_at, frames, fault
		 FROM runs WHERE id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(
		`SELECT id, profile, cache_mode, pixel_path, started_at, stopped_at, frames, fault
		 FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var stopped sql.NullTime
	if err := s.Scan(&run.ID, &run.Profile, &run.CacheMode, &run.PixelPath, &run.StartedAt, &stopped, &run.Frames, &run.Fault); err != nil {
		return nil, err
	}
	if stopped.Valid {
		run.StoppedAt = &stopped.Time
	}
	return run, nil
}
