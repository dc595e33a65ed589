package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop runs tick on a fixed interval until its context is canceled or stop is called.
// Both workers embed one so a stop function can be handed to the shutdown path.
type loop struct {
	name      string
	interval  time.Duration
	immediate bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newLoop(name string, interval time.Duration, immediate bool) *loop {
	return &loop{name: name, interval: interval, immediate: immediate, stopCh: make(chan struct{})}
}

func (l *loop) setInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

func (l *loop) run(ctx context.Context, tick func(context.Context)) {
	log := zap.L().With(zap.String("worker", l.name))
	log.Info("worker starting", zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if l.immediate {
		tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled")
			return
		case <-l.stopCh:
			log.Info("worker stop signal received")
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Stop ends the loop. It is safe to call more than once.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
