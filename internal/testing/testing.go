// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// RoundTripStep is one scripted outcome of a [SequenceRoundTripper].
type RoundTripStep struct {
	Response *http.Response
	Err      error
}

// SequenceRoundTripper replays scripted responses in order and records every request.
// The last step repeats once the script runs out.
type SequenceRoundTripper struct {
	mu       sync.Mutex
	steps    []RoundTripStep
	Requests []*http.Request
	Bodies   []string
}

func NewSequenceRoundTripper(steps ...RoundTripStep) *SequenceRoundTripper {
	return &SequenceRoundTripper{steps: steps}
}

func (m *SequenceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(b)
	}
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, body)

	i := min(len(m.Requests)-1, len(m.steps)-1)
	step := m.steps[i]
	if step.Response != nil {
		step.Response.Request = req
	}
	return step.Response, step.Err
}

// Calls returns the number of requests seen.
func (m *SequenceRoundTripper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// SleepRecorder records requested delays instead of sleeping.
type SleepRecorder struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Delays = append(s.Delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Recorded returns a copy of the recorded delays.
func (s *SleepRecorder) Recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Delays...)
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
