package jobrun

import "time"

const (
	WorkflowName       = "deck_rebuild_job"
	ActivityRunAttempt = "deck_rebuild_attempt"

	// ErrTypeDeterministic marks failures that retrying with the same inputs
	// cannot fix. The activity retry policy lists it as non-retryable.
	ErrTypeDeterministic = "DeterministicJobFailure"
	ErrTypeRetryable     = "RetryableJobFailure"
)

// RetryConfig is the fixed-delay retry budget for one job.
type RetryConfig struct {
	MaxAttempts      int           `json:"max_attempts"`
	Delay            time.Duration `json:"delay"`
	AttemptTimeout   time.Duration `json:"attempt_timeout"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`
}

type WorkflowInput struct {
	JobID string      `json:"job_id"`
	Retry RetryConfig `json:"retry"`
}

type AttemptResult struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	Attempt   int    `json:"attempt"`
	Ran       bool   `json:"ran"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
