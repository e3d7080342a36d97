package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const jobColumns = `id, sequence, playlist_id, status, error, error_category, tracks_total, found, downloaded, not_found, errored, destination_key, created_at, started_at, finished_at, updated_at`

var terminalStatuses = `('` + string(models.JobCompleted) + `', '` + string(models.JobFailed) + `')`

// SyncJobRepository persists sync jobs. Jobs are never deleted.
type SyncJobRepository struct {
	db *sql.DB
}

// NewSyncJobRepository creates a new SyncJobRepository with the given database connection
func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a pending job.
//
// The schema allows one non-terminal job per playlist; a second insert fails with a [shared.ConflictError]
// naming the active job.
func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	job.Sequence = sequence

	query := `INSERT INTO sync_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Exec(query,
		job.ID,
		job.Sequence,
		job.PlaylistID,
		job.Status,
		job.Error,
		job.ErrorCategory,
		job.TracksTotal,
		job.Counters.Found,
		job.Counters.Downloaded,
		job.Counters.NotFound,
		job.Counters.Errored,
		job.DestinationKey,
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.UpdatedAt,
	)
	if isUniqueViolation(err) {
		conflict := &shared.ConflictError{PlaylistID: job.PlaylistID}
		if active, aerr := r.ActiveForPlaylist(job.PlaylistID); aerr == nil {
			conflict.ActiveJobID = active.ID
		}
		return conflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert sync job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID
func (r *SyncJobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// ActiveForPlaylist returns the non-terminal job for a playlist, if any
func (r *SyncJobRepository) ActiveForPlaylist(playlistID string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE playlist_id = ? AND status NOT IN ` + terminalStatuses
	return r.scanOne(r.db.QueryRow(query, playlistID))
}

// Update writes the full job record in one statement.
//
// A job that is already terminal in the store is never written again; the update fails with
// [shared.ErrJobFinished] so a worker whose job was failed by another process stops.
func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE sync_jobs
		SET status = ?, error = ?, error_category = ?, tracks_total = ?, found = ?, downloaded = ?, not_found = ?,
			errored = ?, destination_key = ?, started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ` + terminalStatuses

	result, err := r.db.Exec(query,
		job.Status,
		job.Error,
		job.ErrorCategory,
		job.TracksTotal,
		job.Counters.Found,
		job.Counters.Downloaded,
		job.Counters.NotFound,
		job.Counters.Errored,
		job.DestinationKey,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := r.Get(job.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", err, job.ID)
	}
	return fmt.Errorf("%w: job %s is %s", shared.ErrJobFinished, job.ID, current.Status)
}

// List retrieves jobs newest first.
//
// Supported criteria: "playlist_id" (string), "status" ([models.JobStatus]), "active" (bool), "limit" (int).
func (r *SyncJobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	var (
		where []string
		args  []any
	)

	if playlistID, ok := criteria["playlist_id"].(string); ok && playlistID != "" {
		where = append(where, "playlist_id = ?")
		args = append(args, playlistID)
	}

	if status, ok := criteria["status"].(models.JobStatus); ok && status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}

	if active, ok := criteria["active"].(bool); ok {
		if active {
			where = append(where, "status NOT IN "+terminalStatuses)
		} else {
			where = append(where, "status IN "+terminalStatuses)
		}
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

func (r *SyncJobRepository) scanOne(row *sql.Row) (*models.SyncJob, error) {
	job, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrJobNotFound
	}
	return job, err
}

func (r *SyncJobRepository) scanRow(rows *sql.Rows) (*models.SyncJob, error) {
	return r.scan(rows)
}

func (r *SyncJobRepository) scan(s scanner) (*models.SyncJob, error) {
	var (
		j          models.SyncJob
		status     string
		category   string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := s.Scan(&j.ID, &j.Sequence, &j.PlaylistID, &status, &j.Error, &category, &j.TracksTotal,
		&j.Counters.Found, &j.Counters.Downloaded, &j.Counters.NotFound, &j.Counters.Errored,
		&j.DestinationKey, &j.CreatedAt, &startedAt, &finishedAt, &j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}

	j.Status = models.JobStatus(status)
	j.ErrorCategory = models.ErrorCategory(category)
	j.StartedAt = timePtr(startedAt)
	j.FinishedAt = timePtr(finishedAt)
	return &j, nil
}
