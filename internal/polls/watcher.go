package polls

import (
	"context"
	"sync"
	"time"

	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// ExpiryWatcher periodically flips polls past their deadline to inactive
// and broadcasts the expiry to subscribers.
type ExpiryWatcher struct {
	store       storage.PollStore
	broadcaster realtime.Broadcaster
	interval    time.Duration
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewExpiryWatcher creates a watcher sweeping at the given interval.
func NewExpiryWatcher(store storage.PollStore, broadcaster realtime.Broadcaster, interval time.Duration) *ExpiryWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &ExpiryWatcher{
		store:       store,
		broadcaster: broadcaster,
		interval:    interval,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the sweep loop.
func (w *ExpiryWatcher) Start() {
	logger.Info("Starting poll expiry watcher",
		logger.Duration("interval", w.interval),
	)

	w.wg.Add(1)
	go w.run()
}

// Stop stops the sweep loop and waits for it to finish.
func (w *ExpiryWatcher) Stop() {
	w.cancel()
	w.wg.Wait()
	logger.Info("Poll expiry watcher stopped")
}

func (w *ExpiryWatcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(w.ctx)
		}
	}
}

// Sweep closes every active poll whose deadline has passed. Exported so a
// sweep can be forced in tests and on startup.
func (w *ExpiryWatcher) Sweep(ctx context.Context) {
	expired, err := w.store.ListExpiredActivePolls(ctx, w.now())
	if err != nil {
		logger.Error("Failed to list expired polls", logger.ErrorField(err))
		return
	}

	for _, poll := range expired {
		poll.IsActive = false
		if err := w.store.UpdatePoll(ctx, poll); err != nil {
			logger.Error("Failed to close expired poll",
				logger.ErrorField(err),
				logger.String("poll_id", poll.ID),
			)
			continue
		}

		logger.Info("Poll expired",
			logger.String("poll_id", poll.ID),
			logger.String("slug", poll.Slug),
		)
		w.broadcaster.BroadcastToPoll(poll.ID, realtime.NewPollExpiredEvent(poll.ID))

		// The author gets a direct notification on their own sessions.
		if poll.AuthorID != "" {
			w.broadcaster.BroadcastToUser(poll.AuthorID, realtime.NewNotificationEvent(poll.AuthorID, map[string]string{
				"event":   "poll_expired",
				"poll_id": poll.ID,
				"title":   poll.Title,
			}))
		}
	}
}
