package retry

import (
	"context"
	"net/http"
)

// Transport is an [http.RoundTripper] that applies a [Policy] to every request.
//
// Only round trip errors are retried. Any response that arrives, whatever its status code,
// is returned to the caller as is.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
}

// NewTransport wraps base (or [http.DefaultTransport] when nil) with policy.
func NewTransport(base http.RoundTripper, policy Policy) *Transport {
	return &Transport{Base: base, Policy: policy}
}

// Client returns an [http.Client] using t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// A body that cannot be replayed gets exactly one attempt.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return base.RoundTrip(req)
	}

	attempt := 0
	return Execute(req.Context(), t.Policy, func(ctx context.Context) (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 {
			r = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				r.Body = body
			}
		}
		return base.RoundTrip(r)
	})
}
