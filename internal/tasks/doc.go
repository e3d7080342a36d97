// Package tasks runs playlist sync jobs with real-time progress reporting.
//
// # Sync Jobs
//
// [Orchestrator.Run] drives one job through its phases:
//
//  1. fetching: load the remote playlist from ListenBrainz. Failure here is the only error that
//     fails a job.
//  2. matching: resolve every track against the library with a [Matcher], in playlist order.
//  3. downloading: resolve missing tracks to catalog albums with a [Resolver] and download each
//     album once through a [DownloadCoordinator] running in a fixed-size worker pool.
//     Skipped when nothing is missing.
//  4. finalizing: refresh the library, re-match the tracks whose album downloaded, and write the
//     found and downloaded tracks to the destination playlist in playlist order.
//
// A track that cannot be found, resolved or downloaded is recorded as not_found or errored and the
// job still completes. Cancellation ([Orchestrator.Cancel]) and the job timeout fail the job with
// counters reflecting what was resolved so far.
//
// # Persistence
//
// Every state change of a job, track or download request is one write of the full record to the
// [JobStateStore], so a job interrupted at any point can be resumed with [Orchestrator.Execute].
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for
// advanced UI rendering. Updates use select with default to prevent blocking.
package tasks
