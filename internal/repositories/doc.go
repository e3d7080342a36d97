// Package repositories implements SQLite persistence for the sync engine.
//
// Each repository handles CRUD operations for one entity with atomic sequence generation for
// human-readable ordering. Playlists support soft deletes via deleted_at; sync jobs, track
// matches and album downloads are history and are never deleted.
//
// Key Implementations:
//   - [PlaylistRepository] : Mirrored playlists and their schedules
//   - [SyncJobRepository] : Sync jobs, with the one-active-job-per-playlist rule enforced by a partial unique index
//   - [TrackMatchRepository] : Per-track outcomes in playlist order
//   - [DownloadRepository] : Album download requests and their attempt counts
//   - [Store] : The job state store consumed by the orchestrator
//
// Every update writes the full record in a single statement so a crash leaves the last
// completed transition on disk rather than a partial one.
package repositories
