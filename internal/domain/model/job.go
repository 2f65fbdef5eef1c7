// Package model defines the core data types shared across the rebalancing pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType identifies the kind of work a queue item carries.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

const (
	// JobTypePolicyRunV1 is a request to compute one rebalancing run.
	JobTypePolicyRunV1 JobType = "policy.run_v1"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is one the workers know how to execute.
func (t JobType) Valid() bool {
	return t == JobTypePolicyRunV1
}

// ErrNoJobsAvailable is returned when a claim finds no visible jobs.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job is one durable queue item. A job is mutated only by claim (attempts
// incremented, lease extended) and removed by ack or by escalation to the DLQ.
type Job struct {
	ID          string          `json:"id"                   db:"job_id"`
	Type        JobType         `json:"type"                 db:"type"`
	Payload     json.RawMessage `json:"payload"              db:"payload_json"`
	DedupeKey   *string         `json:"dedupe_key,omitempty" db:"dedupe_key"`
	VisibleAt   time.Time       `json:"visible_at"           db:"visible_at"`
	Attempts    int             `json:"attempts"             db:"attempts"`
	MaxAttempts int             `json:"max_attempts"         db:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"           db:"created_at"`
}

// EnqueueRequest describes a job to insert.
type EnqueueRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	DedupeKey   *string         `json:"dedupe_key,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// Validate checks the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.DedupeKey != nil && strings.TrimSpace(*r.DedupeKey) == "" {
		return errors.New("dedupe key must not be blank when present")
	}
	if r.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	return nil
}

// EnqueueResult reports the outcome of an enqueue. Deduped means an undeleted
// job with the same (type, dedupe_key) already existed and no row was inserted.
type EnqueueResult struct {
	JobID   string `json:"job_id,omitempty"`
	Deduped bool   `json:"deduped"`
}

// DlqRecord is the terminal snapshot of a job that exhausted its retry budget.
// It preserves the original payload for manual resolution.
type DlqRecord struct {
	DlqID       int64           `json:"dlq_id"               db:"dlq_id"`
	JobID       string          `json:"job_id"               db:"job_id"`
	Type        JobType         `json:"type"                 db:"type"`
	Payload     json.RawMessage `json:"payload"              db:"payload_json"`
	DedupeKey   *string         `json:"dedupe_key,omitempty" db:"dedupe_key"`
	ReasonCode  string          `json:"reason_code"          db:"reason_code"`
	Details     json.RawMessage `json:"details,omitempty"    db:"details_json"`
	Attempts    int             `json:"attempts"             db:"attempts"`
	MaxAttempts int             `json:"max_attempts"         db:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"           db:"created_at"`
	FailedAt    time.Time       `json:"failed_at"            db:"failed_at"`
}

// FailResult reports what happened to a failed job.
type FailResult struct {
	MovedToDLQ bool `json:"moved_to_dlq"`
}

// QueueStats summarizes queue depth for operators.
type QueueStats struct {
	Visible      int `json:"visible"`
	Leased       int `json:"leased"`
	DeadLettered int `json:"dead_lettered"`
}
