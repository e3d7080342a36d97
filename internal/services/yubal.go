// Yubal download service
//
// Yubal downloads YouTube Music albums and imports them into the library folder.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

const defaultYubalURL = "http://localhost:8080"

type yubalJob struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error"`
}

// YubalService submits and polls album downloads.
type YubalService struct {
	api *APIService
}

func NewYubalService(baseURL string, client *http.Client) *YubalService {
	if baseURL == "" {
		baseURL = defaultYubalURL
	}
	return &YubalService{api: NewAPIService("Yubal", baseURL, client)}
}

func (y *YubalService) Name() string {
	return "Yubal"
}

// SubmitDownload calls POST /jobs and returns the Yubal job id.
func (y *YubalService) SubmitDownload(ctx context.Context, albumURL string) (string, error) {
	var resp struct {
		yubalJob
		Job *yubalJob `json:"job"`
	}
	if err := y.api.doRequest(ctx, http.MethodPost, "/jobs", nil, map[string]string{"url": albumURL}, &resp); err != nil {
		return "", err
	}

	id := resp.ID
	if resp.Job != nil && resp.Job.ID != "" {
		id = resp.Job.ID
	}
	if id == "" {
		return "", fmt.Errorf("%w: yubal job without id", shared.ErrMalformedResponse)
	}
	return id, nil
}

// PollDownload reads the job list (GET /jobs) and maps the job's status.
//
// A job missing from the list is reported as failed.
func (y *YubalService) PollDownload(ctx context.Context, handle string) (models.DownloadState, error) {
	var resp struct {
		Jobs []yubalJob `json:"jobs"`
	}
	if err := y.api.doRequest(ctx, http.MethodGet, "/jobs", nil, nil, &resp); err != nil {
		return models.DownloadState{}, err
	}

	for _, j := range resp.Jobs {
		if j.ID == handle {
			return j.toState(), nil
		}
	}
	return models.DownloadState{Status: models.DownloadFailed, Error: "job " + handle + " no longer known to yubal"}, nil
}

// CancelDownload calls POST /jobs/{id}/cancel.
func (y *YubalService) CancelDownload(ctx context.Context, handle string) error {
	return y.api.doRequest(ctx, http.MethodPost, "/jobs/"+url.PathEscape(handle)+"/cancel", nil, nil, nil)
}

// Health calls GET /health.
func (y *YubalService) Health(ctx context.Context) error {
	return y.api.doRequest(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (j yubalJob) toState() models.DownloadState {
	state := models.DownloadState{Progress: j.Progress, Error: j.Error}
	if state.Progress > 1 {
		state.Progress /= 100
	}

	switch j.Status {
	case "pending", "fetching_info":
		state.Status = models.DownloadQueued
	case "downloading", "importing":
		state.Status = models.DownloadRunning
	case "completed":
		state.Status = models.DownloadSucceeded
		state.Progress = 1
	case "failed", "cancelled":
		state.Status = models.DownloadFailed
		if state.Error == "" {
			state.Error = "yubal job " + j.Status
		}
	default:
		state.Status = models.DownloadRunning
	}
	return state
}
