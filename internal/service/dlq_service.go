package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/queue"
	"github.com/aerovia/flight-booking/internal/repository"
)

// DeadLetterStore persists dead letter entries.
type DeadLetterStore interface {
	Insert(ctx context.Context, e *model.DeadLetterEntry) error
	GetByID(ctx context.Context, id uint64) (*model.DeadLetterEntry, error)
	Query(ctx context.Context, f repository.DeadLetterFilter, offset, limit int) (*repository.DeadLetterPage, error)
	ListForRequeue(ctx context.Context, f repository.DeadLetterFilter, limit int) ([]model.DeadLetterEntry, error)
	MarkRequeued(ctx context.Context, id uint64, by string) error
	Delete(ctx context.Context, id uint64) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*repository.DeadLetterStats, error)
}

// JobPublisher republishes requeued jobs onto the broker.
type JobPublisher interface {
	PublishJob(ctx context.Context, queueName string, job queue.JobMessage) error
}

// DLQService manages the durable dead letter store: capture from the
// job runtime, operator queries, requeue back onto the broker and
// retention cleanup.
type DLQService struct {
	store DeadLetterStore
	pub   JobPublisher
	log   zerolog.Logger
}

// NewDLQService constructs a DLQService.
func NewDLQService(store DeadLetterStore, pub JobPublisher, log zerolog.Logger) *DLQService {
	return &DLQService{store: store, pub: pub, log: log}
}

// Capture records a job that exhausted its retry budget.  It
// satisfies the consumer's dead letter sink.
func (s *DLQService) Capture(ctx context.Context, job queue.JobMessage, queueName string, attempts int, firstFailedAt time.Time, jobErr error) error {
	entry := model.DeadLetterEntry{
		JobID:         job.JobID,
		CorrelationID: job.CorrelationID,
		JobType:       job.Type,
		Args:          string(job.Args),
		Queue:         queueName,
		RetryAttempts: attempts,
		Exception:     jobErr.Error(),
		FirstFailedAt: firstFailedAt.UTC(),
		MovedAt:       time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, &entry); err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	s.log.Warn().
		Str("job_id", job.JobID).
		Str("job_type", job.Type).
		Int("attempts", attempts).
		Str("error", jobErr.Error()).
		Msg("job moved to dead letter store")
	return nil
}

// Get loads one entry.
func (s *DLQService) Get(ctx context.Context, id uint64) (*model.DeadLetterEntry, error) {
	return s.store.GetByID(ctx, id)
}

// Query pages through entries matching the filter, newest first.
func (s *DLQService) Query(ctx context.Context, f repository.DeadLetterFilter, offset, limit int) (*repository.DeadLetterPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Query(ctx, f, offset, limit)
}

// Requeue publishes an entry's original job back onto the broker and
// marks the entry requeued.  targetQueue overrides the original
// queue when non-empty.  Requeueing twice returns
// ErrAlreadyRequeued.
func (s *DLQService) Requeue(ctx context.Context, id uint64, by, targetQueue string) (*model.DeadLetterEntry, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.IsRequeued {
		return nil, ErrAlreadyRequeued
	}

	queueName := entry.Queue
	if targetQueue != "" {
		queueName = targetQueue
	}
	job := queue.JobMessage{
		JobID:         entry.JobID,
		CorrelationID: entry.CorrelationID,
		Type:          entry.JobType,
		Args:          json.RawMessage(entry.Args),
	}
	if err := s.pub.PublishJob(ctx, queueName, job); err != nil {
		return nil, fmt.Errorf("republish job %s: %w", entry.JobID, err)
	}
	if err := s.store.MarkRequeued(ctx, id, by); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, ErrAlreadyRequeued
		}
		return nil, fmt.Errorf("mark requeued: %w", err)
	}

	s.log.Info().
		Uint64("entry_id", id).
		Str("job_id", entry.JobID).
		Str("queue", queueName).
		Str("by", by).
		Msg("dead letter entry requeued")
	return s.store.GetByID(ctx, id)
}

// BulkRequeue requeues up to limit entries matching the filter,
// oldest first.  Entries that fail to publish are skipped and
// counted; the rest proceed.
func (s *DLQService) BulkRequeue(ctx context.Context, f repository.DeadLetterFilter, limit int, by string) (requeued, failed int, err error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.store.ListForRequeue(ctx, f, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if _, reqErr := s.Requeue(ctx, e.ID, by, ""); reqErr != nil {
			if errors.Is(reqErr, ErrAlreadyRequeued) {
				continue
			}
			failed++
			s.log.Error().Err(reqErr).Uint64("entry_id", e.ID).Msg("bulk requeue entry failed")
			continue
		}
		requeued++
	}
	return requeued, failed, nil
}

// Delete removes one entry permanently.
func (s *DLQService) Delete(ctx context.Context, id uint64) error {
	return s.store.Delete(ctx, id)
}

// Stats summarizes the store for dashboards.
func (s *DLQService) Stats(ctx context.Context) (*repository.DeadLetterStats, error) {
	return s.store.Stats(ctx)
}

// Cleanup deletes entries older than the retention window.
func (s *DLQService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("dead letter retention cleanup")
	}
	return n, nil
}

// csvHeader is the column order of ExportCsv.
var csvHeader = []string{
	"id", "job_id", "correlation_id", "job_type", "queue",
	"retry_attempts", "exception", "first_failed_at", "moved_at",
	"is_requeued", "requeued_by", "requeued_at",
}

// ExportCsv streams entries matching the filter to w as CSV, paging
// through the store until exhausted.
func (s *DLQService) ExportCsv(ctx context.Context, f repository.DeadLetterFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, err := s.store.Query(ctx, f, offset, pageSize)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			requeuedBy := ""
			if e.RequeuedBy != nil {
				requeuedBy = *e.RequeuedBy
			}
			requeuedAt := ""
			if e.RequeuedAt != nil {
				requeuedAt = e.RequeuedAt.UTC().Format(time.RFC3339)
			}
			row := []string{
				strconv.FormatUint(e.ID, 10),
				e.JobID,
				e.CorrelationID,
				e.JobType,
				e.Queue,
				strconv.Itoa(e.RetryAttempts),
				e.Exception,
				e.FirstFailedAt.UTC().Format(time.RFC3339),
				e.MovedAt.UTC().Format(time.RFC3339),
				strconv.FormatBool(e.IsRequeued),
				requeuedBy,
				requeuedAt,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		if len(page.Entries) < pageSize {
			break
		}
	}
	cw.Flush()
	return cw.Error()
}
