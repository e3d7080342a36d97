// package queue runs sync jobs on a durable sqlite task queue.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/tasks"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// taskTimeout bounds one execution; the orchestrator enforces the job timeout itself.
const taskTimeout = 3 * time.Hour

// Executor drives reserved jobs to a terminal state.
type Executor interface {
	Execute(ctx context.Context, jobID string, progress chan<- tasks.ProgressUpdate) (*models.SyncJob, error)
	Running(jobID string) bool
}

// ActiveJobs lists jobs that have not reached a terminal state.
type ActiveJobs interface {
	ActiveJobs() ([]*models.SyncJob, error)
}

// SyncTask executes one reserved sync job.
type SyncTask struct {
	JobID string `json:"job_id"`
}

// Config returns the queue configuration for sync tasks. A second attempt resumes the job.
func (t SyncTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_job",
		MaxAttempts: 2,
		Backoff:     time.Minute,
		Timeout:     taskTimeout,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncProcessor executes the task's job. A job already running in this process is left alone.
func SyncProcessor(executor Executor, logger *log.Logger) backlite.QueueProcessor[SyncTask] {
	return func(ctx context.Context, task SyncTask) error {
		job, err := executor.Execute(ctx, task.JobID, nil)
		if errors.Is(err, shared.ErrConflict) {
			logger.Info("sync job already running, task dropped", "job", task.JobID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("execute sync job %s: %w", task.JobID, err)
		}
		logger.Info("sync task finished", "job", job.ID, "status", job.Status, "error", job.ErrorCategory)
		return nil
	}
}

// Queue wraps a backlite client with a dedicated sqlite database.
type Queue struct {
	client   *backlite.Client
	db       *sql.DB
	executor Executor
	jobs     ActiveJobs
	workers  int
	logger   *log.Logger

	mu      sync.RWMutex
	started bool
}

// Path returns the queue database path stored alongside the main database with a "-tasks" suffix.
func Path(mainDBPath string) string {
	if mainDBPath == ":memory:" || mainDBPath == "" {
		return filepath.Join(".", "jamknife-tasks.db")
	}
	dir := filepath.Dir(mainDBPath)
	base := filepath.Base(mainDBPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+"-tasks"+filepath.Ext(base))
}

// Open creates the queue database at path, installs the backlite schema and registers the sync
// task queue.
func Open(path string, cfg shared.QueueConfig, executor Executor, jobs ActiveJobs, logger *log.Logger) (*Queue, error) {
	workers := max(cfg.Workers, 1)

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	db.SetMaxOpenConns(workers + 5)
	db.SetMaxIdleConns(workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	releaseAfter := cfg.ReleaseAfter.Duration
	if releaseAfter <= taskTimeout {
		releaseAfter = taskTimeout + time.Hour
	}

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      workers,
		ReleaseAfter:    releaseAfter,
		CleanupInterval: time.Hour,
		Logger:          backliteLogger{logger},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}
	client.Register(backlite.NewQueue(SyncProcessor(executor, logger)))

	return &Queue{
		client:   client,
		db:       db,
		executor: executor,
		jobs:     jobs,
		workers:  workers,
		logger:   logger,
	}, nil
}

// Dispatch enqueues a reserved job.
func (q *Queue) Dispatch(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := q.client.Add(SyncTask{JobID: jobID}).Save(); err != nil {
		return fmt.Errorf("failed to enqueue sync job %s: %w", jobID, err)
	}
	q.logger.Debug("sync job enqueued", "job", jobID)
	return nil
}

// Resume enqueues every non-terminal job that is not running in this process, so jobs interrupted
// by a crash continue where they stopped. Returns the number of jobs enqueued.
func (q *Queue) Resume(ctx context.Context) (int, error) {
	active, err := q.jobs.ActiveJobs()
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	n := 0
	for _, job := range active {
		if q.executor.Running(job.ID) {
			continue
		}
		if err := q.Dispatch(ctx, job.ID); err != nil {
			return n, err
		}
		q.logger.Info("resuming sync job", "job", job.ID, "status", job.Status)
		n++
	}
	return n, nil
}

// Start resumes orphaned jobs and begins processing tasks. Use Stop for graceful shutdown.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = true
	q.mu.Unlock()

	if _, err := q.Resume(ctx); err != nil {
		return err
	}
	q.logger.Info("task queue started", "workers", q.workers)
	q.client.Start(ctx)
	return nil
}

// Stop waits for active tasks until ctx is done. Returns true if every worker finished.
func (q *Queue) Stop(ctx context.Context) bool {
	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if !started {
		return true
	}

	ok := q.client.Stop(ctx)
	if ok {
		q.logger.Info("task queue stopped")
	} else {
		q.logger.Warn("task queue stopped before every task finished")
	}
	return ok
}

// Close releases the database. Call after Stop.
func (q *Queue) Close() error {
	return q.db.Close()
}

// backliteLogger adapts a charmbracelet logger to [backlite.Logger].
type backliteLogger struct {
	l *log.Logger
}

func (b backliteLogger) Info(message string, params ...any) {
	b.l.Debug("queue: "+message, params...)
}

func (b backliteLogger) Error(message string, params ...any) {
	b.l.Error("queue: "+message, params...)
}
