package model

import (
	"encoding/json"
	"time"

	"execq/pkg/constants"
)

// Task is the unit of submitted work, tracked through its status lifecycle.
// StartedAt is set exactly once on QUEUED->RUNNING, CompletedAt exactly once
// on entering a terminal state.
type Task struct {
	ID           string               `json:"id"`
	Status       constants.TaskStatus `json:"status"`
	Prompt       string               `json:"prompt"`
	Code         string               `json:"code,omitempty"`
	Timeout      int                  `json:"timeout"` // seconds
	WorkerID     string               `json:"worker_id,omitempty"`
	Result       string               `json:"result,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	WebhookURL   string               `json:"webhook_url,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// DispatchPayload is the broker message instructing a worker to execute a task.
// Keyed by TaskID so re-enqueues of the same task deduplicate in the broker.
type DispatchPayload struct {
	TaskID  string `json:"task_id"`
	Prompt  string `json:"prompt"`
	Code    string `json:"code,omitempty"`
	Timeout int    `json:"timeout"` // seconds
}

// ResultMessage is emitted by a worker after attempting a task, once per
// dispatch attempt that reaches the executor.
type ResultMessage struct {
	TaskID          string `json:"task_id"`
	WorkerID        string `json:"worker_id"`
	Status          string `json:"status"` // completed, failed
	Result          string `json:"result,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	TimedOut        bool   `json:"timed_out,omitempty"`
}

// SubmitRequest submit task request
type SubmitRequest struct {
	Prompt     string `json:"prompt" binding:"required"`
	Code       string `json:"code,omitempty"`
	Timeout    int    `json:"timeout,omitempty"` // seconds, defaults to 300
	WebhookURL string `json:"webhook,omitempty"`
}

// SubmitResponse submit task response
type SubmitResponse struct {
	ID        string               `json:"id"`
	Status    constants.TaskStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

// TaskResponse task status response
type TaskResponse struct {
	ID              string               `json:"id"`
	Status          constants.TaskStatus `json:"status"`
	Prompt          string               `json:"prompt,omitempty"`
	WorkerID        string               `json:"worker_id,omitempty"`
	Result          string               `json:"result,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	DelayTimeMs     int64                `json:"delay_time_ms"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

// TaskStats aggregate task counts by status
type TaskStats struct {
	Counts map[constants.TaskStatus]int64 `json:"counts"`
	Total  int64                          `json:"total"`
}

// ToJSON converts the payload to JSON bytes
func (p *DispatchPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// FromJSON fills the payload from JSON bytes
func (p *DispatchPayload) FromJSON(data []byte) error {
	return json.Unmarshal(data, p)
}
