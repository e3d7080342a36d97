package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/retry"
	"github.com/desertthunder/jamknife/internal/shared"
	"golang.org/x/time/rate"
)

// DownloadCoordinator submits album downloads to the fetch service and polls them to a terminal
// state. Every change to a request is written to the store before the next call.
type DownloadCoordinator struct {
	downloader    Downloader
	store         DownloadStore
	limiter       *rate.Limiter
	pollInterval  time.Duration
	timeout       time.Duration
	submitTimeout time.Duration
	sleep         retry.SleepFunc
	now           func() time.Time
	logger        *log.Logger
}

func NewDownloadCoordinator(downloader Downloader, store DownloadStore, opts Options, logger *log.Logger) *DownloadCoordinator {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.SubmitRate > 0 {
		limit = rate.Limit(opts.SubmitRate)
	}

	return &DownloadCoordinator{
		downloader:    downloader,
		store:         store,
		limiter:       rate.NewLimiter(limit, 1),
		pollInterval:  opts.PollInterval,
		timeout:       opts.DownloadTimeout,
		submitTimeout: opts.SubmitTimeout,
		sleep:         opts.Sleep,
		now:           opts.Now,
		logger:        logger,
	}
}

// Submit sends the request's album to the fetch service and records the new handle and attempt.
//
// The call itself runs detached from ctx cancellation so a submission is never cut in half;
// cancellation is only checked before it starts.
func (c *DownloadCoordinator) Submit(ctx context.Context, req models.AlbumDownloadRequest) (models.AlbumDownloadRequest, error) {
	if !req.CanSubmit() {
		return req, fmt.Errorf("%w: %d of %d attempts used", shared.ErrDownloadFailed, req.Attempts, req.MaxAttempts)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return req, err
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	defer cancel()

	handle, err := c.downloader.SubmitDownload(subCtx, req.AlbumURL)
	if err != nil {
		return req, fmt.Errorf("failed to submit %s: %w", req.AlbumURL, err)
	}

	next, err := req.Submitted(handle, c.now())
	if err != nil {
		return req, err
	}
	if err := c.store.UpdateDownload(&next); err != nil {
		return req, err
	}
	c.logger.Info("submitted album download", "album", req.AlbumTitle, "handle", handle, "attempt", next.Attempts)
	return next, nil
}

// PollUntilTerminal polls the request's handle every poll interval until the fetch service reports
// a terminal state, ctx is done, or timeout elapses.
//
// The loop is bounded both by iteration count and by a wall-clock deadline. On success the
// request is returned succeeded. A fetch service failure is returned as [shared.ErrDownloadFailed]
// with the request left running so it can be resubmitted. On timeout the request is marked failed
// and [shared.ErrDownloadTimeout] is returned. Transient poll call failures keep polling.
func (c *DownloadCoordinator) PollUntilTerminal(ctx context.Context, req models.AlbumDownloadRequest, timeout time.Duration) (models.AlbumDownloadRequest, error) {
	deadline := c.now().Add(timeout)
	maxPolls := int(timeout/c.pollInterval) + 1

	for i := 0; i < maxPolls; i++ {
		if err := ctx.Err(); err != nil {
			return req, err
		}

		state, err := c.downloader.PollDownload(ctx, req.Handle)
		switch {
		case err != nil && ctx.Err() != nil:
			return req, ctx.Err()
		case err != nil && retry.IsTransientFailure(err):
			c.logger.Warn("download poll failed, will poll again", "handle", req.Handle, "error", err)
		case err != nil:
			req.LastError = err.Error()
			return req, fmt.Errorf("%w: poll %s: %v", shared.ErrDownloadFailed, req.Handle, err)
		default:
			next, err := c.record(req, state)
			if err != nil {
				return req, err
			}
			req = next

			switch state.Status {
			case models.DownloadSucceeded:
				return req, nil
			case models.DownloadFailed:
				return req, fmt.Errorf("%w: %s", shared.ErrDownloadFailed, state.Error)
			}
		}

		if !c.now().Before(deadline) {
			break
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return req, err
		}
	}

	cause := fmt.Errorf("%w after %s", shared.ErrDownloadTimeout, timeout)
	failed, err := req.Fail(cause, c.now())
	if err != nil {
		return req, err
	}
	if err := c.store.UpdateDownload(&failed); err != nil {
		return req, err
	}
	return failed, cause
}

// record applies one poll result. A failed poll only updates the error: whether the request
// fails for good is decided by the caller.
func (c *DownloadCoordinator) record(req models.AlbumDownloadRequest, state models.DownloadState) (models.AlbumDownloadRequest, error) {
	now := c.now()
	next := req.Polled(state.Progress, now)

	switch state.Status {
	case models.DownloadRunning:
		advanced, err := next.Advance(models.DownloadRunning, now)
		if err != nil {
			return req, err
		}
		next = advanced
	case models.DownloadSucceeded:
		advanced, err := next.Advance(models.DownloadSucceeded, now)
		if err != nil {
			return req, err
		}
		next = advanced
		next.LastError = ""
	case models.DownloadFailed:
		next.LastError = state.Error
	}

	if err := c.store.UpdateDownload(&next); err != nil {
		return req, err
	}
	return next, nil
}

// Download drives a request to a terminal state: submit (unless it already has a live handle),
// poll, and resubmit after fetch service failures until MaxAttempts is used.
//
// onSubmit is called after every successful submission. Context errors are returned with the
// request left as is; any other error comes with the request marked failed.
func (c *DownloadCoordinator) Download(ctx context.Context, req models.AlbumDownloadRequest, onSubmit func(models.AlbumDownloadRequest)) (models.AlbumDownloadRequest, error) {
	if req.Status.Terminal() {
		return req, nil
	}

	resume := req.Handle != ""
	for {
		if !resume {
			next, err := c.Submit(ctx, req)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return req, ctxErr
				}
				return c.fail(req, err)
			}
			req = next
			if onSubmit != nil {
				onSubmit(req)
			}
		}
		resume = false

		next, err := c.PollUntilTerminal(ctx, req, c.timeout)
		req = next
		switch {
		case err == nil:
			return req, nil
		case ctx.Err() != nil:
			return req, ctx.Err()
		case errors.Is(err, shared.ErrDownloadTimeout), req.Status.Terminal():
			return req, err
		case !errors.Is(err, shared.ErrDownloadFailed):
			return req, err
		case req.CanSubmit():
			c.logger.Warn("album download failed, resubmitting", "album", req.AlbumTitle, "attempt", req.Attempts, "max", req.MaxAttempts, "error", err)
			continue
		default:
			return c.fail(req, err)
		}
	}
}

func (c *DownloadCoordinator) fail(req models.AlbumDownloadRequest, cause error) (models.AlbumDownloadRequest, error) {
	failed, err := req.Fail(cause, c.now())
	if err != nil {
		return req, err
	}
	if err := c.store.UpdateDownload(&failed); err != nil {
		return req, err
	}
	c.logger.Error("album download failed", "album", req.AlbumTitle, "attempts", failed.Attempts, "error", cause)
	return failed, cause
}
