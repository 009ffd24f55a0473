package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"execq/internal/model"
)

// Reporter delivers dispatch acknowledgments, result messages, and heartbeats
// from a worker process to the coordinator.
type Reporter interface {
	// ReportStarted acknowledges that the worker claimed the dispatch.
	ReportStarted(ctx context.Context, taskID string) error

	// ReportResult publishes the outcome of a dispatch attempt.
	ReportResult(ctx context.Context, msg *model.ResultMessage) error

	// Heartbeat pushes a liveness signal.
	Heartbeat(ctx context.Context) error
}

// HTTPReporter reports to the coordinator's worker-facing API.
type HTTPReporter struct {
	baseURL    string
	workerID   string
	workerType string
	apiKey     string
	client     *http.Client
}

// NewHTTPReporter creates a reporter for the given coordinator base URL
func NewHTTPReporter(baseURL, workerID, workerType, apiKey string) *HTTPReporter {
	return &HTTPReporter{
		baseURL:    baseURL,
		workerID:   workerID,
		workerType: workerType,
		apiKey:     apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ReportStarted implements Reporter
func (r *HTTPReporter) ReportStarted(ctx context.Context, taskID string) error {
	url := fmt.Sprintf("%s/v2/job-start/%s/%s", r.baseURL, r.workerID, taskID)
	return r.post(ctx, url, nil)
}

// ReportResult implements Reporter
func (r *HTTPReporter) ReportResult(ctx context.Context, msg *model.ResultMessage) error {
	url := fmt.Sprintf("%s/v2/job-done/%s/%s", r.baseURL, r.workerID, msg.TaskID)
	return r.post(ctx, url, msg)
}

// Heartbeat implements Reporter
func (r *HTTPReporter) Heartbeat(ctx context.Context) error {
	url := fmt.Sprintf("%s/v2/ping/%s?type=%s", r.baseURL, r.workerID, r.workerType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	r.setHeaders(req)

	return r.do(req)
}

func (r *HTTPReporter) post(ctx context.Context, url string, body interface{}) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal report body: %w", err)
		}
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return err
	}
	r.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return r.do(req)
}

func (r *HTTPReporter) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "execq-worker/1.0")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

func (r *HTTPReporter) do(req *http.Request) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
