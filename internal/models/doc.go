// Package models defines domain entities for the jamknife playlist sync service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs describing data owned by external services
//   - [RemotePlaylist] : A generated playlist fetched from ListenBrainz
//   - [RemoteTrack] : One playlist entry with its recording MBID
//   - [LibraryTrack] : A track already present in the Plex library
//   - [AlbumCandidate] : A catalog album that can be downloaded
//
// 2. Persistent Entities: Database-backed records owned by the job state store
//   - [Playlist] : A mirrored playlist with its sync schedule
//   - [SyncJob] : One synchronization attempt and its counters
//   - [TrackMatch] : The resolution outcome for one track within a job
//   - [AlbumDownloadRequest] : One album download submitted to the fetch service
//
// Persistent entities never change status in place. Each status change goes through a
// transition method ([SyncJob.Transition], [TrackMatch.Transition], [AlbumDownloadRequest.Advance])
// that validates the move and returns the updated copy, which the store then writes as a whole.
package models
