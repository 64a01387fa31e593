package model

import "time"

// DeadLetterEntry records a background job that exhausted its retry
// budget.  Entries carry enough context (arguments, exception text,
// attempt count, correlation id) for manual diagnosis and requeue.
// They are mutated only to mark a requeue and hard-deleted only by
// the retention cleanup or an explicit delete.
//
// Fields:
//  ID            – primary key identifier.
//  JobID         – identity of the failed job instance.
//  CorrelationID – request correlation id carried through the job.
//  JobType       – handler name / method that failed.
//  Args          – serialized job arguments (JSON).
//  Queue         – queue the job was consumed from.
//  RetryAttempts – number of attempts before giving up.
//  Exception     – textual error from the final attempt.
//  FirstFailedAt – when the first attempt failed.
//  MovedAt       – when the job was moved to the dead letter store.
//  IsRequeued    – whether the entry has been requeued.
//  RequeuedBy    – operator who requeued the entry (nullable).
//  RequeuedAt    – when the entry was requeued (nullable).
//  CreatedAt     – creation timestamp.
type DeadLetterEntry struct {
	ID            uint64     // dead_letter_entries.id
	JobID         string     // dead_letter_entries.job_id
	CorrelationID string     // dead_letter_entries.correlation_id
	JobType       string     // dead_letter_entries.job_type
	Args          string     // dead_letter_entries.args
	Queue         string     // dead_letter_entries.queue
	RetryAttempts int        // dead_letter_entries.retry_attempts
	Exception     string     // dead_letter_entries.exception
	FirstFailedAt time.Time  // dead_letter_entries.first_failed_at
	MovedAt       time.Time  // dead_letter_entries.moved_at
	IsRequeued    bool       // dead_letter_entries.is_requeued
	RequeuedBy    *string    // dead_letter_entries.requeued_by (nullable)
	RequeuedAt    *time.Time // dead_letter_entries.requeued_at (nullable)
	CreatedAt     time.Time  // dead_letter_entries.created_at
}
