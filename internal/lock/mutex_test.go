package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMutex is an in-process Mutex used to exercise ExecuteWithMutex.
type fakeMutex struct {
	mu     sync.Mutex
	owners map[string]string
	seq    int
}

func newFakeMutex() *fakeMutex {
	return &fakeMutex{owners: map[string]string{}}
}

func (f *fakeMutex) Acquire(_ context.Context, resource string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.owners[resource]; held {
		return "", ErrNotAcquired
	}
	f.seq++
	token := string(rune('a' + f.seq))
	f.owners[resource] = token
	return token, nil
}

func (f *fakeMutex) Release(_ context.Context, resource, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners[resource] == token {
		delete(f.owners, resource)
	}
	return nil
}

func TestExecuteWithMutexReleasesAfterRun(t *testing.T) {
	m := newFakeMutex()
	ran := false
	err := ExecuteWithMutex(context.Background(), m, "promo:SUMMER", time.Second, func(context.Context) error {
		ran = true
		// While fn runs, the resource must be owned.
		_, err := m.Acquire(context.Background(), "promo:SUMMER", time.Second)
		assert.ErrorIs(t, err, ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// Released afterwards: a fresh acquire succeeds.
	_, err = m.Acquire(context.Background(), "promo:SUMMER", time.Second)
	require.NoError(t, err)
}

func TestExecuteWithMutexReleasesOnError(t *testing.T) {
	m := newFakeMutex()
	boom := errors.New("boom")
	err := ExecuteWithMutex(context.Background(), m, "promo:WINTER", time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Acquire(context.Background(), "promo:WINTER", time.Second)
	require.NoError(t, err)
}

func TestExecuteWithMutexBusy(t *testing.T) {
	m := newFakeMutex()
	_, err := m.Acquire(context.Background(), "promo:VIP", time.Second)
	require.NoError(t, err)

	err = ExecuteWithMutex(context.Background(), m, "promo:VIP", time.Second, func(context.Context) error {
		t.Fatal("must not run while the resource is busy")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
}
