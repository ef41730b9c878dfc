package store

import (
	"database/sql"
	"time"
)

// DefaultResultLimit caps ListByRun when no limit is given.
const DefaultResultLimit = 100

// Result is one classification recorded for a run.
type Result struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Seq         uint64    `json:"seq"`
	ClassIndex  int       `json:"class_index"`
	Label       string    `json:"label"`
	Score       float64   `json:"score"`
	InferenceMs float64   `json:"inference_ms"`
	FPS         float64   `json:"fps"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultRepository provides access to results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// CreateBatch inserts results in a single transaction.
func (r *ResultRepository) CreateBatch(results []Result) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, seq, class_index, label, score, inference_ms, fps, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, res := range results {
		if res.CreatedAt.IsZero() {
			res.CreatedAt = time.Now()
		}
		if _, err := stmt.Exec(res.RunID, res.Seq, res.ClassIndex, res.Label, res.Score, res.InferenceMs, res.FPS, res.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListByRun retrieves the latest results of a run, oldest first. A limit
// of zero or less means DefaultResultLimit.
func (r *ResultRepository) ListByRun(runID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	rows, err := r.db.Query(
		`SELECT id, run_id, seq, class_index, label, score, inference_ms, fps, created_at
		 FROM (SELECT * FROM results WHERE run_id = ? ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.RunID, &res.Seq, &res.ClassIndex, &res.Label, &res.Score, &res.InferenceMs, &res.FPS, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Count returns how many results a run has.
func (r *ResultRepository) Count(runID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM results WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
