package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	a, b := uuid.New(), uuid.New()

	release, err := l.TryLock(ctx, a)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, a)
	assert.ErrorIs(t, err, ErrLocked)

	releaseB, err := l.TryLock(ctx, b)
	require.NoError(t, err, "other devices are independent")
	releaseB()

	release()
	release() // idempotent

	again, err := l.TryLock(ctx, a)
	require.NoError(t, err)
	again()
}

func TestLocalLockerSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	device := uuid.New()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.TryLock(ctx, device); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestAdvisoryKeyStable(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-0000-4000-8000-000000000001")
	assert.Equal(t, AdvisoryKey(id), AdvisoryKey(id))
	assert.NotEqual(t, AdvisoryKey(id), AdvisoryKey(uuid.New()))
}

func TestPGAdvisoryLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	first, err := NewPGAdvisoryLocker(ctx, dsn)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewPGAdvisoryLocker(ctx, dsn)
	require.NoError(t, err)
	defer second.Close()

	device := uuid.New()
	release, err := first.TryLock(ctx, device)
	require.NoError(t, err)

	_, err = second.TryLock(ctx, device)
	assert.ErrorIs(t, err, ErrLocked)

	release()

	releaseAgain, err := second.TryLock(ctx, device)
	require.NoError(t, err)
	releaseAgain()
}
