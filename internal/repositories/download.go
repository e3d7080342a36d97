package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const downloadColumns = `id, job_id, track_match_id, album_url, album_title, artist, handle, status, attempts, max_attempts, progress, last_error, last_polled_at, created_at, finished_at, updated_at`

var errDownloadNotFound = errors.New("album download not found")

// DownloadRepository persists album download requests.
type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Create inserts a request. An album is requested at most once per job.
func (r *DownloadRepository) Create(d *models.AlbumDownloadRequest) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO album_downloads (` + downloadColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		d.ID, d.JobID, d.TrackMatchID, d.AlbumURL, d.AlbumTitle, d.Artist, d.Handle, d.Status, d.Attempts,
		d.MaxAttempts, d.Progress, d.LastError, nullTime(d.LastPolledAt), d.CreatedAt, nullTime(d.FinishedAt), d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: album %s already requested for job %s", shared.ErrInvalidInput, d.AlbumURL, d.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert album download: %w", err)
	}
	return nil
}

// Get retrieves a request by ID
func (r *DownloadRepository) Get(id string) (*models.AlbumDownloadRequest, error) {
	d, err := r.scan(r.db.QueryRow(`SELECT `+downloadColumns+` FROM album_downloads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errDownloadNotFound, id)
	}
	return d, err
}

// Update writes the full record in one statement.
func (r *DownloadRepository) Update(d *models.AlbumDownloadRequest) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE album_downloads
		SET handle = ?, status = ?, attempts = ?, progress = ?, last_error = ?, last_polled_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		d.Handle, d.Status, d.Attempts, d.Progress, d.LastError, nullTime(d.LastPolledAt), nullTime(d.FinishedAt), d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update album download: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", errDownloadNotFound, d.ID))
}

// List returns requests newest first.
//
// Supported criteria: "job_id" (string), "status" ([models.DownloadStatus]), "limit" (int).
func (r *DownloadRepository) List(criteria map[string]any) ([]*models.AlbumDownloadRequest, error) {
	query := `SELECT ` + downloadColumns + ` FROM album_downloads WHERE 1 = 1`
	args := []any{}

	if jobID, ok := criteria["job_id"].(string); ok && jobID != "" {
		query += " AND job_id = ?"
		args = append(args, jobID)
	}

	if status, ok := criteria["status"].(models.DownloadStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, id ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query album downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*models.AlbumDownloadRequest
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return downloads, nil
}

func (r *DownloadRepository) scan(s scanner) (*models.AlbumDownloadRequest, error) {
	var (
		d          models.AlbumDownloadRequest
		status     string
		polledAt   sql.NullTime
		finishedAt sql.NullTime
	)
	err := s.Scan(&d.ID, &d.JobID, &d.TrackMatchID, &d.AlbumURL, &d.AlbumTitle, &d.Artist, &d.Handle, &status,
		&d.Attempts, &d.MaxAttempts, &d.Progress, &d.LastError, &polledAt, &d.CreatedAt, &finishedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan album download: %w", err)
	}
	d.Status = models.DownloadStatus(status)
	d.LastPolledAt = timePtr(polledAt)
	d.FinishedAt = timePtr(finishedAt)
	return &d, nil
}
