package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/jamknife/internal/shared"
)

// JobStatus is the lifecycle state of a [SyncJob].
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobFetching    JobStatus = "fetching"
	JobMatching    JobStatus = "matching"
	JobDownloading JobStatus = "downloading"
	JobFinalizing  JobStatus = "finalizing"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:     {JobFetching, JobFailed},
	JobFetching:    {JobMatching, JobFailed},
	JobMatching:    {JobDownloading, JobFinalizing, JobFailed},
	JobDownloading: {JobFinalizing, JobFailed},
	JobFinalizing:  {JobCompleted, JobFailed},
	JobCompleted:   {},
	JobFailed:      {},
}

// ErrorCategory is the coarse failure reason exposed for failed jobs.
type ErrorCategory string

const (
	CategoryNone      ErrorCategory = ""
	CategoryFetch     ErrorCategory = "fetch_failed"
	CategoryCancelled ErrorCategory = "cancelled"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryInternal  ErrorCategory = "internal"
)

// Counters aggregates final track outcomes.
type Counters struct {
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	NotFound   int `json:"not_found"`
	Errored    int `json:"errored"`
}

// SyncJob is one synchronization attempt for a playlist.
type SyncJob struct {
	ID             string        `json:"id"`
	Sequence       int           `json:"-"`
	PlaylistID     string        `json:"playlistId"`
	Status         JobStatus     `json:"status"`
	Error          string        `json:"-"`
	ErrorCategory  ErrorCategory `json:"error,omitempty"`
	TracksTotal    int           `json:"tracksTotal"`
	Counters       Counters      `json:"counters"`
	DestinationKey string        `json:"destinationKey,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	StartedAt      *time.Time    `json:"startedAt"`
	FinishedAt     *time.Time    `json:"finishedAt"`
	UpdatedAt      time.Time     `json:"-"`
}

// NewSyncJob builds a pending job for the playlist.
func NewSyncJob(playlistID string, now time.Time) SyncJob {
	return SyncJob{
		ID:         shared.GenerateID(),
		PlaylistID: playlistID,
		Status:     JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks required fields.
func (j SyncJob) Validate() error {
	if j.ID == "" || j.PlaylistID == "" {
		return fmt.Errorf("%w: sync job requires id and playlist id", shared.ErrInvalidInput)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", shared.ErrInvalidInput, j.Status)
	}
	return nil
}

// Transition returns a copy of the job moved to status to.
//
// Leaving pending stamps StartedAt and reaching a terminal status stamps FinishedAt.
func (j SyncJob) Transition(to JobStatus, at time.Time) (SyncJob, error) {
	if !slices.Contains(jobTransitions[j.Status], to) {
		return j, fmt.Errorf("%w: job %s %s -> %s", shared.ErrInvalidTransition, j.ID, j.Status, to)
	}

	next := j
	next.Status = to
	next.UpdatedAt = at
	if j.Status == JobPending {
		started := at
		next.StartedAt = &started
	}
	if to.Terminal() {
		finished := at
		next.FinishedAt = &finished
	}
	return next, nil
}

// Fail moves the job to failed with an error category and message.
func (j SyncJob) Fail(category ErrorCategory, cause error, counters Counters, at time.Time) (SyncJob, error) {
	next, err := j.Transition(JobFailed, at)
	if err != nil {
		return j, err
	}
	next.ErrorCategory = category
	next.Counters = counters
	if cause != nil {
		next.Error = cause.Error()
	}
	return next, nil
}

// Complete moves a finalizing job to completed with its final counters.
func (j SyncJob) Complete(counters Counters, at time.Time) (SyncJob, error) {
	next, err := j.Transition(JobCompleted, at)
	if err != nil {
		return j, err
	}
	next.Counters = counters
	return next, nil
}
