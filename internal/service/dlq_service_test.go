package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/queue"
	"github.com/aerovia/flight-booking/internal/repository"
)

type fakeDeadLetterStore struct {
	entries map[uint64]*model.DeadLetterEntry
	nextID  uint64
}

func newFakeDeadLetterStore() *fakeDeadLetterStore {
	return &fakeDeadLetterStore{entries: map[uint64]*model.DeadLetterEntry{}}
}

func (f *fakeDeadLetterStore) Insert(_ context.Context, e *model.DeadLetterEntry) error {
	f.nextID++
	e.ID = f.nextID
	e.CreatedAt = time.Now().UTC()
	cp := *e
	f.entries[e.ID] = &cp
	return nil
}

func (f *fakeDeadLetterStore) GetByID(_ context.Context, id uint64) (*model.DeadLetterEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeDeadLetterStore) matches(e *model.DeadLetterEntry, filter repository.DeadLetterFilter) bool {
	if !filter.IncludeRequeued && e.IsRequeued {
		return false
	}
	if filter.JobType != "" && e.JobType != filter.JobType {
		return false
	}
	if filter.Queue != "" && e.Queue != filter.Queue {
		return false
	}
	if filter.CorrelationID != "" && e.CorrelationID != filter.CorrelationID {
		return false
	}
	return true
}

func (f *fakeDeadLetterStore) Query(_ context.Context, filter repository.DeadLetterFilter, offset, limit int) (*repository.DeadLetterPage, error) {
	var all []model.DeadLetterEntry
	for id := f.nextID; id >= 1; id-- {
		if e, ok := f.entries[id]; ok && f.matches(e, filter) {
			all = append(all, *e)
		}
	}
	page := &repository.DeadLetterPage{Total: int64(len(all))}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		page.Entries = append(page.Entries, all[i])
	}
	return page, nil
}

func (f *fakeDeadLetterStore) ListForRequeue(_ context.Context, filter repository.DeadLetterFilter, limit int) ([]model.DeadLetterEntry, error) {
	var out []model.DeadLetterEntry
	for id := uint64(1); id <= f.nextID && len(out) < limit; id++ {
		if e, ok := f.entries[id]; ok && !e.IsRequeued && f.matches(e, filter) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeDeadLetterStore) MarkRequeued(_ context.Context, id uint64, by string) error {
	e, ok := f.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.IsRequeued {
		return repository.ErrStale
	}
	now := time.Now().UTC()
	e.IsRequeued = true
	e.RequeuedBy = &by
	e.RequeuedAt = &now
	return nil
}

func (f *fakeDeadLetterStore) Delete(_ context.Context, id uint64) error {
	if _, ok := f.entries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeDeadLetterStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, e := range f.entries {
		if e.MovedAt.Before(cutoff) {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeDeadLetterStore) Stats(_ context.Context) (*repository.DeadLetterStats, error) {
	stats := &repository.DeadLetterStats{ByJobType: map[string]int64{}}
	for _, e := range f.entries {
		stats.Total++
		if e.IsRequeued {
			stats.Requeued++
		} else {
			stats.Pending++
		}
		stats.ByJobType[e.JobType]++
	}
	return stats, nil
}

type fakeJobPublisher struct {
	published []struct {
		Queue string
		Job   queue.JobMessage
	}
	err error
}

func (f *fakeJobPublisher) PublishJob(_ context.Context, queueName string, job queue.JobMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, struct {
		Queue string
		Job   queue.JobMessage
	}{queueName, job})
	return nil
}

func newDLQTestService() (*DLQService, *fakeDeadLetterStore, *fakeJobPublisher) {
	store := newFakeDeadLetterStore()
	pub := &fakeJobPublisher{}
	return NewDLQService(store, pub, zerolog.Nop()), store, pub
}

func captureJob(t *testing.T, svc *DLQService, jobID, jobType string, attempts int) {
	t.Helper()
	job := queue.JobMessage{
		JobID:         jobID,
		CorrelationID: "corr-" + jobID,
		Type:          jobType,
		Args:          []byte(`{"booking_id":42}`),
	}
	err := svc.Capture(context.Background(), job, "booking.jobs", attempts, time.Now().Add(-time.Hour), errors.New("handler blew up"))
	require.NoError(t, err)
}

func TestDLQCaptureRecordsAttempts(t *testing.T) {
	svc, store, _ := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobNotifyConfirmed, 3)

	e, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "job-1", e.JobID)
	assert.Equal(t, 3, e.RetryAttempts)
	assert.Equal(t, "booking.jobs", e.Queue)
	assert.Equal(t, "handler blew up", e.Exception)
	assert.False(t, e.IsRequeued)
}

func TestDLQRequeueRoundTrip(t *testing.T) {
	svc, _, pub := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobNotifyConfirmed, 3)

	e, err := svc.Requeue(context.Background(), 1, "ops@example.com", "")
	require.NoError(t, err)
	assert.True(t, e.IsRequeued)
	require.NotNil(t, e.RequeuedBy)
	assert.Equal(t, "ops@example.com", *e.RequeuedBy)
	assert.NotNil(t, e.RequeuedAt)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "booking.jobs", pub.published[0].Queue)
	assert.Equal(t, "job-1", pub.published[0].Job.JobID)
	assert.JSONEq(t, `{"booking_id":42}`, string(pub.published[0].Job.Args))

	// Second requeue is rejected.
	_, err = svc.Requeue(context.Background(), 1, "ops@example.com", "")
	assert.ErrorIs(t, err, ErrAlreadyRequeued)

	// Requeued entries drop out of the default listing.
	page, err := svc.Query(context.Background(), repository.DeadLetterFilter{}, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)

	page, err = svc.Query(context.Background(), repository.DeadLetterFilter{IncludeRequeued: true}, 0, 50)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)
}

func TestDLQRequeueToOverrideQueue(t *testing.T) {
	svc, _, pub := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobSweepExpired, 1)

	_, err := svc.Requeue(context.Background(), 1, "ops", "booking.jobs.retry")
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "booking.jobs.retry", pub.published[0].Queue)
}

func TestDLQRequeueKeepsEntryWhenPublishFails(t *testing.T) {
	svc, store, pub := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobNotifyConfirmed, 2)
	pub.err = errors.New("broker down")

	_, err := svc.Requeue(context.Background(), 1, "ops", "")
	require.Error(t, err)

	e, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, e.IsRequeued, "failed publish must not mark the entry requeued")
}

func TestDLQBulkRequeue(t *testing.T) {
	svc, _, pub := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobNotifyConfirmed, 1)
	captureJob(t, svc, "job-2", queue.JobNotifyConfirmed, 1)
	captureJob(t, svc, "job-3", queue.JobSweepExpired, 1)

	requeued, failed, err := svc.BulkRequeue(context.Background(), repository.DeadLetterFilter{JobType: queue.JobNotifyConfirmed}, 100, "ops")
	require.NoError(t, err)
	assert.Equal(t, 2, requeued)
	assert.Zero(t, failed)
	assert.Len(t, pub.published, 2)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Requeued)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestDLQCleanupHonorsRetention(t *testing.T) {
	svc, store, _ := newDLQTestService()
	captureJob(t, svc, "job-old", queue.JobNotifyConfirmed, 1)
	captureJob(t, svc, "job-new", queue.JobNotifyConfirmed, 1)
	store.entries[1].MovedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)

	n, err := svc.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.GetByID(context.Background(), 2)
	assert.NoError(t, err)
}

func TestDLQExportCsv(t *testing.T) {
	svc, _, _ := newDLQTestService()
	captureJob(t, svc, "job-1", queue.JobNotifyConfirmed, 3)
	captureJob(t, svc, "job-2", queue.JobSweepExpired, 1)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCsv(context.Background(), repository.DeadLetterFilter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "job-2", records[1][1], "newest entry first")
	assert.Equal(t, "job-1", records[2][1])
}
