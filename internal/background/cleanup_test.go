package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCleaner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCleaner) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	f.calls.Add(1)
	return 2, f.err
}

type fakeSweeper struct {
	running atomic.Bool
	stopped atomic.Bool
}

func (f *fakeSweeper) Run(ctx context.Context, interval time.Duration) {
	f.running.Store(true)
	<-ctx.Done()
	f.stopped.Store(true)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunsTasksUntilStopped(t *testing.T) {
	cleaner := &fakeCleaner{}
	sweeper := &fakeSweeper{}
	cm := NewCleanupManager(cleaner, sweeper, testLogger(), CleanupConfig{
		ResetTokenInterval: 5 * time.Millisecond,
		CacheSweepInterval: time.Minute,
	})

	cm.Start(context.Background())

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 2 && sweeper.running.Load()
	}, time.Second, time.Millisecond)

	cm.Stop()

	assert.True(t, sweeper.stopped.Load())
	calls := cleaner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, cleaner.calls.Load())
}

func TestCleanupManager_SurvivesStoreErrors(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("connection refused")}
	cm := NewCleanupManager(cleaner, nil, testLogger(), CleanupConfig{ResetTokenInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cm.Start(ctx)

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	cm.Stop()
}
