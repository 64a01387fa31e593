package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aerovia/flight-booking/internal/model"
)

// DeadLetterFilter narrows dead letter queries.  Zero values mean
// "no restriction".  Requeued entries are excluded unless
// IncludeRequeued is set, so default listings show only work that
// still needs an operator.
type DeadLetterFilter struct {
	JobType         string
	Queue           string
	CorrelationID   string
	IncludeRequeued bool
	MovedAfter      time.Time
	MovedBefore     time.Time
}

// DeadLetterPage is one page of query results.
type DeadLetterPage struct {
	Entries []model.DeadLetterEntry
	Total   int64
}

// DeadLetterStats summarises the dead letter store for dashboards.
type DeadLetterStats struct {
	Total     int64            `json:"total"`
	Requeued  int64            `json:"requeued"`
	Pending   int64            `json:"pending"`
	ByJobType map[string]int64 `json:"by_job_type"`
}

// DeadLetterRepo persists jobs that exhausted their retry budget.
// Rows are append-only except for the requeue flag; the retention
// cleanup and explicit deletes are the only hard-delete paths.
type DeadLetterRepo struct {
	db *sql.DB
}

// NewDeadLetterRepo returns a DeadLetterRepo bound to the given database.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo { return &DeadLetterRepo{db: db} }

const deadLetterColumns = `id, job_id, correlation_id, job_type, args, queue, retry_attempts, exception, first_failed_at, moved_at, is_requeued, requeued_by, requeued_at, created_at`

func scanDeadLetter(scan func(dest ...interface{}) error) (model.DeadLetterEntry, error) {
	var e model.DeadLetterEntry
	var requeuedBy sql.NullString
	var requeuedAt sql.NullTime
	err := scan(&e.ID, &e.JobID, &e.CorrelationID, &e.JobType, &e.Args, &e.Queue,
		&e.RetryAttempts, &e.Exception, &e.FirstFailedAt, &e.MovedAt,
		&e.IsRequeued, &requeuedBy, &requeuedAt, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if requeuedBy.Valid {
		s := requeuedBy.String
		e.RequeuedBy = &s
	}
	if requeuedAt.Valid {
		t := requeuedAt.Time
		e.RequeuedAt = &t
	}
	return e, nil
}

// Insert stores a terminally failed job and populates the generated ID.
func (r *DeadLetterRepo) Insert(ctx context.Context, e *model.DeadLetterEntry) error {
	const q = `INSERT INTO dead_letter_entries
	           (job_id, correlation_id, job_type, args, queue, retry_attempts, exception, first_failed_at, moved_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.JobID, e.CorrelationID, e.JobType, e.Args, e.Queue,
		e.RetryAttempts, e.Exception, e.FirstFailedAt.UTC(), e.MovedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID loads a single entry.  Returns ErrNotFound when absent.
func (r *DeadLetterRepo) GetByID(ctx context.Context, id uint64) (*model.DeadLetterEntry, error) {
	const q = `SELECT ` + deadLetterColumns + ` FROM dead_letter_entries WHERE id = ?`
	e, err := scanDeadLetter(r.db.QueryRowContext(ctx, q, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (f DeadLetterFilter) where() (string, []interface{}) {
	conds := []string{"1=1"}
	var args []interface{}
	if !f.IncludeRequeued {
		conds = append(conds, "is_requeued = 0")
	}
	if f.JobType != "" {
		conds = append(conds, "job_type = ?")
		args = append(args, f.JobType)
	}
	if f.Queue != "" {
		conds = append(conds, "queue = ?")
		args = append(args, f.Queue)
	}
	if f.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}
	if !f.MovedAfter.IsZero() {
		conds = append(conds, "moved_at >= ?")
		args = append(args, f.MovedAfter.UTC())
	}
	if !f.MovedBefore.IsZero() {
		conds = append(conds, "moved_at <= ?")
		args = append(args, f.MovedBefore.UTC())
	}
	return strings.Join(conds, " AND "), args
}

// Query returns one page of entries matching the filter, newest moved
// first, along with the total match count for paging.
func (r *DeadLetterRepo) Query(ctx context.Context, f DeadLetterFilter, offset, limit int) (*DeadLetterPage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	where, args := f.where()

	var total int64
	countQ := `SELECT COUNT(*) FROM dead_letter_entries WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, err
	}

	listQ := `SELECT ` + deadLetterColumns + ` FROM dead_letter_entries WHERE ` + where +
		` ORDER BY moved_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, listQ, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	page := &DeadLetterPage{Total: total, Entries: []model.DeadLetterEntry{}}
	for rows.Next() {
		e, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, e)
	}
	return page, rows.Err()
}

// ListForRequeue returns the non-requeued entries matching the filter
// for a bulk requeue, oldest first so the backlog drains in order.
func (r *DeadLetterRepo) ListForRequeue(ctx context.Context, f DeadLetterFilter, limit int) ([]model.DeadLetterEntry, error) {
	f.IncludeRequeued = false
	where, args := f.where()
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT ` + deadLetterColumns + ` FROM dead_letter_entries WHERE ` + where +
		` ORDER BY moved_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.DeadLetterEntry
	for rows.Next() {
		e, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkRequeued flags an entry as requeued by an operator.  The guard
// on is_requeued keeps the operation idempotent; ErrStale means the
// entry was already requeued.
func (r *DeadLetterRepo) MarkRequeued(ctx context.Context, id uint64, by string) error {
	const q = `UPDATE dead_letter_entries
	           SET is_requeued = 1, requeued_by = ?, requeued_at = UTC_TIMESTAMP()
	           WHERE id = ? AND is_requeued = 0`
	res, err := r.db.ExecContext(ctx, q, by, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// Delete removes a single entry.  Returns ErrNotFound when absent.
func (r *DeadLetterRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dead_letter_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes entries moved to the store before the
// cutoff, regardless of requeue state.  This is the retention policy.
func (r *DeadLetterRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM dead_letter_entries WHERE moved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats aggregates counts for dashboards.
func (r *DeadLetterRepo) Stats(ctx context.Context) (*DeadLetterStats, error) {
	stats := &DeadLetterStats{ByJobType: map[string]int64{}}
	const totalsQ = `SELECT COUNT(*), COALESCE(SUM(is_requeued), 0) FROM dead_letter_entries`
	if err := r.db.QueryRowContext(ctx, totalsQ).Scan(&stats.Total, &stats.Requeued); err != nil {
		return nil, err
	}
	stats.Pending = stats.Total - stats.Requeued
	const byTypeQ = `SELECT job_type, COUNT(*) FROM dead_letter_entries GROUP BY job_type`
	rows, err := r.db.QueryContext(ctx, byTypeQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var jobType string
		var count int64
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		stats.ByJobType[jobType] = count
	}
	return stats, rows.Err()
}
