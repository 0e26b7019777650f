package model

import (
	"encoding/json"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further polling may occur for this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// NormalizeStatus maps the remote service's status vocabulary onto the
// closed client-side enum. The remote reports statuses in arbitrary letter
// case, and "cached" is an alias for completed. Any status accompanied by a
// non-empty result payload is treated as completed regardless of the literal
// string, so a result can never be dropped because of a surprising status.
// This is the only place raw remote status strings are interpreted.
func NormalizeStatus(raw string, hasResult bool) JobStatus {
	if hasResult {
		return JobStatusCompleted
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued":
		return JobStatusQueued
	case "cached", "completed":
		return JobStatusCompleted
	case "failed":
		return JobStatusFailed
	case "", "processing":
		return JobStatusProcessing
	default:
		return JobStatusProcessing
	}
}

// Job is the client-side view of one unit of remote work.
type Job struct {
	ID          string          `json:"id"`
	Input       string          `json:"input"`
	Instruction string          `json:"instruction,omitempty"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobSnapshot is the poller's externally visible state at one instant.
type JobSnapshot struct {
	JobID    string          `json:"job_id"`
	Status   JobStatus       `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts int             `json:"attempts"`
}

// HistoryEntry is a terminal job retained for user recall. Entries are
// unique by ID within the history collection.
type HistoryEntry struct {
	ID          string          `json:"id"`
	Input       string          `json:"input"`
	Instruction string          `json:"instruction,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Merge overlays non-zero fields of other onto a copy of e. New fields win;
// fields absent from other keep their existing values.
func (e HistoryEntry) Merge(other HistoryEntry) HistoryEntry {
	out := e
	if other.Input != "" {
		out.Input = other.Input
	}
	if other.Instruction != "" {
		out.Instruction = other.Instruction
	}
	if len(other.Result) > 0 {
		out.Result = other.Result
	}
	if !other.CreatedAt.IsZero() {
		out.CreatedAt = other.CreatedAt
	}
	if !other.UpdatedAt.IsZero() {
		out.UpdatedAt = other.UpdatedAt
	}
	return out
}

// SubmissionAttempt is the ephemeral record of one user-initiated submission.
// It is never persisted; AcceptedAt uses the monotonic clock for cooldown
// arithmetic.
type SubmissionAttempt struct {
	ID          string // ULID assigned by the orchestrator
	Input       string
	Instruction string
	AcceptedAt  time.Time
}
