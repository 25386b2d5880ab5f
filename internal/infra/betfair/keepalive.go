package betfair

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionKeeper polls the keep-alive endpoint so a long-running process
// does not lose its session between logins. Failures are logged and the
// next tick tries again; nothing downstream depends on the poller.
type SessionKeeper struct {
	client   *Client
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSessionKeeper creates a keeper polling at the given interval.
func NewSessionKeeper(client *Client, interval time.Duration) *SessionKeeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionKeeper{client: client, interval: interval}
}

// Start launches the background poll loop.
func (k *SessionKeeper) Start(ctx context.Context) {
	ctx, k.cancel = context.WithCancel(ctx)
	k.wg.Add(1)
	go k.loop(ctx)
}

// Stop terminates the poll loop and waits for it to exit.
func (k *SessionKeeper) Stop() {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
}

func (k *SessionKeeper) loop(ctx context.Context) {
	defer k.wg.Done()
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.client.KeepAlive(ctx); err != nil {
				slog.Warn("session keep-alive failed", slog.Any("error", err))
			} else {
				slog.Debug("session keep-alive ok")
			}
		}
	}
}
