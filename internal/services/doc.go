// Package services implements clients for the external systems the sync engine depends on.
//
// # Playlist source
//
// [ListenBrainzService] fetches generated playlists as JSPF documents. The recording MBID of
// each track is taken from its identifier URL and the release MBID from the MusicBrainz track
// extension. A user token, when configured, is sent through an [oauth2.Transport] using the
// "Token" authorization scheme.
//
// # Media library
//
// [PlexService] searches the music section by title (MusicBrainz ids come from "mbid://" guids),
// triggers section refreshes and upserts playlists. Search never fails: errors are logged and
// reported as an empty candidate list.
//
// # Catalog
//
// [YTMusicService] talks to the FastAPI proxy wrapping ytmusicapi. Calls are rate limited with
// a token bucket.
//
// # Downloads
//
// [YubalService] submits album URLs and maps Yubal job states to download statuses:
//   - pending, fetching_info : queued
//   - downloading, importing : running
//   - completed : succeeded
//   - failed, cancelled : failed
//
// # Error Handling
//
// All clients share one [http.Client] whose transport is a [retry.Transport], so connection
// failures are retried with exponential backoff before surfacing as [retry.TransientFailure].
// Non-2xx responses become [StatusError] and are never retried. Undecodable bodies wrap
// [shared.ErrMalformedResponse].
package services
