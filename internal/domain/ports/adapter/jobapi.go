package adapter

import (
	"context"
	"encoding/json"
)

// CreateJobResponse is the remote service's answer to a job creation call.
// Status may already be a "cached" equivalent, in which case the work is
// satisfied and no polling is required.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status,omitempty"`
}

// JobStatusResponse is one observation of a remote job. Status strings are
// uninterpreted here; normalization happens in the domain model.
type JobStatusResponse struct {
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// HasResult reports whether the response carries a non-empty result payload.
// JSON null does not count.
func (r *JobStatusResponse) HasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}

// JobAPIAdapter is the port for the remote analysis-job service.
type JobAPIAdapter interface {
	CreateJob(ctx context.Context, input, instruction string) (*CreateJobResponse, error)
	GetJob(ctx context.Context, jobID string) (*JobStatusResponse, error)
}
