package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const playlistColumns = `id, sequence, ref, name, creator, created_for, kind, enabled, sync_day, sync_time, last_synced_at, created_at, updated_at`

// PlaylistRepository persists mirrored playlists with soft delete support and ref lookups.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist with generated ID and sequence. A playlist ref may only be registered once.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if playlist.Kind == "" {
		playlist.Kind = models.ClassifyPlaylist(playlist.Name)
	}
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC()
	playlist.ID = shared.GenerateID()
	playlist.Sequence = sequence
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	query := `
		INSERT INTO playlists (id, sequence, ref, name, creator, created_for, kind, enabled, sync_day, sync_time, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		playlist.ID,
		sequence,
		playlist.Ref,
		playlist.Name,
		playlist.Creator,
		playlist.CreatedFor,
		playlist.Kind,
		playlist.Enabled,
		playlist.SyncDay,
		playlist.SyncTime,
		nullTime(playlist.LastSyncedAt),
		now,
		now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: playlist %s already registered", shared.ErrInvalidInput, playlist.Ref)
	}
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	return nil
}

// Get retrieves a playlist by ID, excluding soft-deleted playlists
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByRef retrieves a playlist by its ListenBrainz playlist MBID
func (r *PlaylistRepository) GetByRef(ref string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE ref = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, ref))
}

// Update writes the mutable playlist fields
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	playlist.UpdatedAt = now

	query := `
		UPDATE playlists
		SET name = ?, creator = ?, created_for = ?, kind = ?, enabled = ?, sync_day = ?, sync_time = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		playlist.Name,
		playlist.Creator,
		playlist.CreatedFor,
		playlist.Kind,
		playlist.Enabled,
		playlist.SyncDay,
		playlist.SyncTime,
		nullTime(playlist.LastSyncedAt),
		now,
		playlist.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlist.ID))
}

// MarkSynced records a completed sync
func (r *PlaylistRepository) MarkSynced(id string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE playlists SET last_synced_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at, at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark playlist synced: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id))
}

// Delete soft-deletes a playlist by ID
func (r *PlaylistRepository) Delete(id string) error {
	now := time.Now().UTC()

	result, err := r.db.Exec(`UPDATE playlists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id))
}

// List retrieves all playlists matching the given criteria, excluding soft-deleted playlists.
//
// Supported criteria: "enabled" (bool), "kind" ([models.PlaylistKind]), "scheduled" (bool).
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE deleted_at IS NULL`
	args := []any{}

	if enabled, ok := criteria["enabled"].(bool); ok {
		query += " AND enabled = ?"
		args = append(args, enabled)
	}

	if kind, ok := criteria["kind"].(models.PlaylistKind); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}

	if scheduled, ok := criteria["scheduled"].(bool); ok && scheduled {
		query += " AND sync_day != '' AND sync_time != ''"
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// scanOne scans a single row into a [models.Playlist]
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.Playlist, error) {
	playlist, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPlaylistNotFound
	}
	return playlist, err
}

// scanRow scans a row from [sql.Rows] into a [models.Playlist]
func (r *PlaylistRepository) scanRow(rows *sql.Rows) (*models.Playlist, error) {
	return r.scan(rows)
}

func (r *PlaylistRepository) scan(s scanner) (*models.Playlist, error) {
	var (
		p            models.Playlist
		kind         string
		lastSyncedAt sql.NullTime
	)

	err := s.Scan(&p.ID, &p.Sequence, &p.Ref, &p.Name, &p.Creator, &p.CreatedFor, &kind, &p.Enabled,
		&p.SyncDay, &p.SyncTime, &lastSyncedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	p.Kind = models.PlaylistKind(kind)
	p.LastSyncedAt = timePtr(lastSyncedAt)
	return &p, nil
}
