package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const trackMatchColumns = `id, job_id, position, external_id, title, artist, album, release_id, status, library_id, album_url, download_id, retry_count, last_error, created_at, updated_at`

// TrackMatchRepository persists per-track outcomes of a job.
type TrackMatchRepository struct {
	db *sql.DB
}

func NewTrackMatchRepository(db *sql.DB) *TrackMatchRepository {
	return &TrackMatchRepository{db: db}
}

// Create inserts a track match. Each playlist position appears once per job.
func (r *TrackMatchRepository) Create(m *models.TrackMatch) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO track_matches (` + trackMatchColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		m.ID, m.JobID, m.Position, m.ExternalID, m.Title, m.Artist, m.Album, m.ReleaseID,
		m.Status, m.LibraryID, m.AlbumURL, m.DownloadID, m.RetryCount, m.LastError, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: job %s already has a track at position %d", shared.ErrInvalidInput, m.JobID, m.Position)
	}
	if err != nil {
		return fmt.Errorf("failed to insert track match: %w", err)
	}
	return nil
}

// Get retrieves a track match by ID
func (r *TrackMatchRepository) Get(id string) (*models.TrackMatch, error) {
	m, err := r.scan(r.db.QueryRow(`SELECT `+trackMatchColumns+` FROM track_matches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	return m, err
}

// Update writes the full record in one statement.
func (r *TrackMatchRepository) Update(m *models.TrackMatch) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE track_matches
		SET status = ?, library_id = ?, album_url = ?, download_id = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query, m.Status, m.LibraryID, m.AlbumURL, m.DownloadID, m.RetryCount, m.LastError, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update track match: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, m.ID))
}

// ListByJob returns a job's tracks in playlist order
func (r *TrackMatchRepository) ListByJob(jobID string) ([]*models.TrackMatch, error) {
	rows, err := r.db.Query(`SELECT `+trackMatchColumns+` FROM track_matches WHERE job_id = ? ORDER BY position ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.TrackMatch
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return matches, nil
}

func (r *TrackMatchRepository) scan(s scanner) (*models.TrackMatch, error) {
	var (
		m      models.TrackMatch
		status string
	)
	err := s.Scan(&m.ID, &m.JobID, &m.Position, &m.ExternalID, &m.Title, &m.Artist, &m.Album, &m.ReleaseID,
		&status, &m.LibraryID, &m.AlbumURL, &m.DownloadID, &m.RetryCount, &m.LastError, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track match: %w", err)
	}
	m.Status = models.TrackStatus(status)
	return &m, nil
}
