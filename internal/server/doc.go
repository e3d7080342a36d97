// Package server exposes sync jobs over a small JSON API.
//
// # Routes
//
//	GET  /api/health                 fetch service reachability
//	GET  /api/playlists              registered playlists (?enabled=true|false)
//	POST /api/sync-jobs              reserve and enqueue a job: {"playlistId": "..."}
//	GET  /api/sync-jobs              jobs, newest first (?playlistId, ?status, ?limit)
//	GET  /api/sync-jobs/{id}         one job with its counters
//	GET  /api/sync-jobs/{id}/tracks  per-track outcomes in playlist order
//	POST /api/sync-jobs/{id}/cancel  cancel a job
//	GET  /api/downloads              album download requests (?jobId, ?status)
//
// # Errors
//
// Errors are written as {"error": "..."} with a status derived from the sentinel errors in
// internal/shared: a playlist that is already syncing is 409 and carries the active job id,
// a disabled playlist is 422, unknown playlists and jobs are 404.
//
// # Middleware
//
// Every request passes through [Recover] and [Logging], registered on the [mux.Router] with Use.
// Routing, path variables and method matching are handled by gorilla/mux.
package server
