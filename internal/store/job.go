package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/shopgrab/internal/model"
)

// ErrJobFinalized is returned when a job has already left the processing state.
var ErrJobFinalized = errors.New("job already finalized")

type JobStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db, now: time.Now}
}

func scanJob(scanner interface{ Scan(...any) error }) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var errText sql.NullString
	var duration sql.NullInt64
	var completedAt sql.NullTime
	err := scanner.Scan(
		&j.ID, &j.AccountID, &j.URL, &j.Status, &errText, &duration,
		&j.CreatedAt, &j.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if errText.Valid {
		j.Error = &errText.String
	}
	if duration.Valid {
		j.DurationMS = &duration.Int64
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

const jobCols = `id, account_id, url, status, error, duration_ms, created_at, started_at, completed_at`

// Create inserts a job in the processing state.
func (s *JobStore) Create(accountID int64, url string) (*model.ExtractionJob, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO extraction_jobs (id, account_id, url, status, created_at, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, accountID, url, model.JobProcessing, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(id)
}

func (s *JobStore) GetByID(id string) (*model.ExtractionJob, error) {
	row := s.db.QueryRow(`SELECT `+jobCols+` FROM extraction_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Complete stores the product and marks the job completed in one transaction.
func (s *JobStore) Complete(jobID string, data *model.ProductData, durationMS int64) (*model.ExtractedProduct, error) {
	now := s.now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := finalize(tx, jobID, model.JobCompleted, nil, durationMS, now); err != nil {
		return nil, err
	}

	p, err := insertProduct(tx, jobID, data, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// Fail marks the job failed with the given message.
func (s *JobStore) Fail(jobID, message string, durationMS int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := finalize(tx, jobID, model.JobFailed, &message, durationMS, s.now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func finalize(tx *sql.Tx, jobID, status string, message *string, durationMS int64, at time.Time) error {
	result, err := tx.Exec(
		`UPDATE extraction_jobs SET status = ?, error = ?, duration_ms = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		status, message, durationMS, at, jobID, model.JobProcessing,
	)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobFinalized
	}
	return nil
}

// CountSince returns how many jobs the account created at or after since.
func (s *JobStore) CountSince(accountID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM extraction_jobs WHERE account_id = ? AND created_at >= ?`,
		accountID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// ListRecent returns the account's newest jobs with their products attached.
func (s *JobStore) ListRecent(accountID int64, limit int) ([]model.ExtractionJob, error) {
	rows, err := s.db.Query(
		`SELECT `+jobCols+` FROM extraction_jobs WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.ExtractionJob
	index := make(map[string]int)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		index[j.ID] = len(jobs)
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	rows.Close()

	if len(jobs) == 0 {
		return jobs, nil
	}

	prows, err := s.db.Query(
		`SELECT `+productCols+` FROM extracted_products WHERE job_id IN (
			SELECT id FROM extraction_jobs WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		p, err := scanProduct(prows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if i, ok := index[p.JobID]; ok {
			jobs[i].Product = p
		}
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return jobs, nil
}
