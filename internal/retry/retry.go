// Package retry applies a bounded exponential backoff policy to outbound calls.
//
// Only transient, connection-level failures are retried. Well formed error responses, decode
// failures and cancellation of the caller's context surface immediately. When every attempt
// fails the last error is returned wrapped in a [TransientFailure].
package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// Defaults for connection retries: three attempts, waiting 1s then 2s.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultFactor      = 2.0
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how many times to try a call and how long to wait between tries.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	// Sleep defaults to a timer that honours context cancellation.
	Sleep SleepFunc
	// Classify reports whether an error is worth retrying. Defaults to [IsTransient].
	Classify func(error) bool
	Logger   *log.Logger
}

// DefaultPolicy returns the standard connection retry policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, Factor: DefaultFactor}
}

// TransientFailure is returned when every attempt failed with a transient error.
type TransientFailure struct {
	Attempts int
	Err      error
}

func (e *TransientFailure) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientFailure) Unwrap() error { return e.Err }

// IsTransientFailure reports whether err carries a [TransientFailure].
func IsTransientFailure(err error) bool {
	var tf *TransientFailure
	return errors.As(err, &tf)
}

// Delay returns the wait before attempt n+1, where n counts completed attempts from 1.
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.baseDelay())
	for i := 1; i < n; i++ {
		d *= p.factor()
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, fails with a non-transient error, or the attempts are used up.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.attempts()
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !classify(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.Logger != nil {
			p.Logger.Warn("transient failure, retrying", "attempt", attempt, "of", attempts, "delay", delay, "error", err)
		}
		if serr := p.sleep()(ctx, delay); serr != nil {
			return err
		}
	}
	return &TransientFailure{Attempts: attempts, Err: err}
}

// Execute is [Policy.Do] for calls that return a value.
func Execute[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) factor() float64 {
	if p.Factor < 1 {
		return DefaultFactor
	}
	return p.Factor
}

func (p Policy) sleep() SleepFunc {
	if p.Sleep != nil {
		return p.Sleep
	}
	return Sleep
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient reports whether err is a connection-level failure: reset, refused, handshake
// failure, timeout or a connection closed mid response.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}
