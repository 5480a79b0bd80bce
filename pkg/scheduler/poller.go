// Package scheduler drives everything that happens on a clock: resuming waiting runs
// whose wait is over and firing the cron schedules of active workflows. Both poll the
// store instead of keeping in-process timers, so nothing is lost across restarts.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// poller calls tick every interval until stopped or ctx is done. The first tick runs
// immediately on start.
type poller struct {
	logger   *slog.Logger
	interval time.Duration
	tick     func(ctx context.Context)

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	started bool
	wg      sync.WaitGroup
}

func (p *poller) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan struct{})
	p.started = true

	p.logger.InfoContext(ctx, "Poller started", "interval", p.interval)

	p.wg.Add(1)

	go p.loop(ctx, p.ticker, p.done)
}

func (p *poller) stop(ctx context.Context) {
	p.mu.Lock()

	if !p.started {
		p.mu.Unlock()

		return
	}

	p.ticker.Stop()
	close(p.done)
	p.started = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.InfoContext(ctx, "Poller stopped")
}

func (p *poller) loop(ctx context.Context, ticker *time.Ticker, done chan struct{}) {
	defer p.wg.Done()

	p.tick(ctx)

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}
