package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ResetTokenCleaner removes password reset tickets that expired unused
type ResetTokenCleaner interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// CacheSweeper evicts stale cache entries until ctx is cancelled
type CacheSweeper interface {
	Run(ctx context.Context, interval time.Duration)
}

// CleanupConfig holds the intervals of the periodic tasks
type CleanupConfig struct {
	ResetTokenInterval time.Duration
	CacheSweepInterval time.Duration
}

// CleanupManager periodically clears expired reset tickets and sweeps the
// user cache
type CleanupManager struct {
	resetTokens ResetTokenCleaner
	cache       CacheSweeper
	logger      *slog.Logger
	config      CleanupConfig
	now         func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupManager creates a new cleanup manager. cache may be nil.
func NewCleanupManager(resetTokens ResetTokenCleaner, cache CacheSweeper, logger *slog.Logger, config CleanupConfig) *CleanupManager {
	if config.ResetTokenInterval <= 0 {
		config.ResetTokenInterval = 15 * time.Minute
	}
	return &CleanupManager{
		resetTokens: resetTokens,
		cache:       cache,
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// Start launches the periodic tasks and returns immediately. They run until
// ctx is cancelled or Stop is called.
func (cm *CleanupManager) Start(ctx context.Context) {
	ctx, cm.cancel = context.WithCancel(ctx)

	if cm.cache != nil {
		cm.wg.Add(1)
		go func() {
			defer cm.wg.Done()
			cm.cache.Run(ctx, cm.config.CacheSweepInterval)
		}()
	}

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		cm.loop(ctx)
	}()
}

func (cm *CleanupManager) loop(ctx context.Context) {
	ticker := time.NewTicker(cm.config.ResetTokenInterval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager stopped")
			return
		}
	}
}

// runCleanup clears expired reset tickets
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := cm.resetTokens.ClearExpiredResetTokens(cleanupCtx, cm.now())
	if err != nil {
		cm.logger.Error("failed to clear expired reset tokens", slog.Any("error", err))
		return
	}

	if cleared > 0 {
		cm.logger.Info("expired reset tokens cleared", slog.Int64("rows_updated", cleared))
	}
}

// Stop cancels the periodic tasks and waits for them to return
func (cm *CleanupManager) Stop() {
	if cm.cancel != nil {
		cm.cancel()
	}
	cm.wg.Wait()
}
