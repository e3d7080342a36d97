// Shared JSON client used by every external service
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/jamknife/internal/retry"
	"github.com/desertthunder/jamknife/internal/shared"
)

// StatusError is a well formed non-2xx response. It is never retried.
type StatusError struct {
	Service    string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s API error: status %d", e.Service, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return shared.ErrAPIRequest }

// IsStatus reports whether err is a [StatusError] with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// NewHTTPClient builds the client shared by all services: every request goes through a
// [retry.Transport] applying policy.
func NewHTTPClient(policy retry.Policy) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: retry.NewTransport(base, policy)}
}

// APIService performs JSON requests against one base URL.
type APIService struct {
	name       string
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewAPIService creates a new API client for the named service.
func NewAPIService(name, baseURL string, client *http.Client) *APIService {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		headers:    http.Header{"Accept": []string{"application/json"}},
	}
}

// SetHeader adds a header sent with every request.
func (a *APIService) SetHeader(key, value string) {
	a.headers.Set(key, value)
}

// BaseURL returns the configured base URL.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// doRequest sends body (JSON encoded when not nil) and decodes a 2xx response into result.
func (a *APIService) doRequest(ctx context.Context, method, path string, query url.Values, body, result any) error {
	apiURL := a.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range a.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Service: a.name, StatusCode: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}

	if result == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", a.name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrMalformedResponse, a.name, err)
	}

	return nil
}

// errorDetail extracts a message from FastAPI ({"detail": ...}) and generic ({"error": ...}) error bodies.
func errorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if s, ok := body.Detail.(string); ok && s != "" {
		return s
	}
	return body.Error
}
