// package formatter renders sync job reports to various formats (text, Markdown, CSV, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/shared"
)

// Format names an output format for [Render].
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

var extensions = map[Format]string{
	FormatText:     "txt",
	FormatMarkdown: "md",
	FormatCSV:      "csv",
	FormatJSON:     "json",
}

// ParseFormat accepts a format name or a common alias ("md", "txt").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Report is a sync job with its playlist, per-track outcomes and album downloads.
type Report struct {
	Playlist  *models.Playlist               `json:"playlist,omitempty"`
	Job       *models.SyncJob                `json:"job"`
	Tracks    []*models.TrackMatch           `json:"tracks"`
	Downloads []*models.AlbumDownloadRequest `json:"downloads"`
}

func (r *Report) title() string {
	if r.Playlist != nil && r.Playlist.Name != "" {
		return r.Playlist.Name
	}
	return r.Job.PlaylistID
}

// Elapsed is the time between the job starting and finishing, or zero if it has not done both.
func (r *Report) Elapsed() time.Duration {
	if r.Job.StartedAt == nil || r.Job.FinishedAt == nil {
		return 0
	}
	return r.Job.FinishedAt.Sub(*r.Job.StartedAt).Round(time.Second)
}

// Render dispatches to the exporter for f.
func Render(r *Report, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return ExportToText(r)
	case FormatMarkdown:
		return ExportToMarkdown(r)
	case FormatCSV:
		return ExportToCSV(r)
	case FormatJSON:
		return ExportToJSON(r)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
}

// ExportToCSV writes one row per track with columns: Position, Title, Artist, Album, Status, LibraryID, AlbumURL, Retries, Error
func ExportToCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Artist", "Album", "Status", "LibraryID", "AlbumURL", "Retries", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range r.Tracks {
		record := []string{
			strconv.Itoa(track.Position + 1),
			track.Title,
			track.Artist,
			track.Album,
			string(track.Status),
			track.LibraryID,
			track.AlbumURL,
			strconv.Itoa(track.RetryCount),
			track.LastError,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary table followed by the track list and any album downloads.
func ExportToMarkdown(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	job := r.Job

	buf.WriteString(fmt.Sprintf("# %s\n\n", r.title()))
	buf.WriteString(fmt.Sprintf("**Job**: `%s`\n", job.ID))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", statusLine(job)))
	if d := r.Elapsed(); d > 0 {
		buf.WriteString(fmt.Sprintf("**Duration**: %s\n", d))
	}
	buf.WriteString("\n| Tracks | Found | Downloaded | Not found | Errored |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	buf.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d |\n\n",
		job.TracksTotal, job.Counters.Found, job.Counters.Downloaded, job.Counters.NotFound, job.Counters.Errored))

	buf.WriteString("## Tracks\n\n")
	for _, track := range r.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s `%s`", track.Position+1, track.Artist, track.Title, albumPart, track.Status))
		if track.LastError != "" {
			buf.WriteString(fmt.Sprintf(" _%s_", track.LastError))
		}
		buf.WriteString("\n")
	}

	if len(r.Downloads) > 0 {
		buf.WriteString("\n## Downloads\n\n")
		for _, d := range r.Downloads {
			name := d.AlbumTitle
			if name == "" {
				name = d.AlbumURL
			}
			buf.WriteString(fmt.Sprintf("- [%s](%s) `%s` attempts %d/%d\n", name, d.AlbumURL, d.Status, d.Attempts, d.MaxAttempts))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders a plain text report
func ExportToText(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	job := r.Job

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", r.title()))
	buf.WriteString(fmt.Sprintf("Job: %s\n", job.ID))
	buf.WriteString(fmt.Sprintf("Status: %s\n", statusLine(job)))
	if d := r.Elapsed(); d > 0 {
		buf.WriteString(fmt.Sprintf("Duration: %s\n", d))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d (found %d, downloaded %d, not found %d, errored %d)\n\n",
		job.TracksTotal, job.Counters.Found, job.Counters.Downloaded, job.Counters.NotFound, job.Counters.Errored))

	for _, track := range r.Tracks {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s - %s", track.Position+1, track.Status, track.Artist, track.Title))
		if track.LastError != "" {
			buf.WriteString(fmt.Sprintf(": %s", track.LastError))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the report as indented JSON.
func ExportToJSON(r *Report) ([]byte, error) {
	if r.Tracks == nil {
		r.Tracks = []*models.TrackMatch{}
	}
	if r.Downloads == nil {
		r.Downloads = []*models.AlbumDownloadRequest{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteReport renders r in format f and writes it to path.
//
// Defaults to {job.ID}_report.{ext} as the filename.
func WriteReport(r *Report, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_report.%s", r.Job.ID, extensions[f])
	}

	data, err := Render(r, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

func statusLine(job *models.SyncJob) string {
	if job.ErrorCategory != models.CategoryNone {
		return fmt.Sprintf("%s (%s)", job.Status, job.ErrorCategory)
	}
	return string(job.Status)
}
