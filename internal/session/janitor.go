package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// janitor runs sweep on a fixed interval until stopped.
type janitor struct {
	interval time.Duration
	sweep    func(ctx context.Context) (int64, error)
	name     string

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func startJanitor(name string, interval time.Duration, sweep func(ctx context.Context) (int64, error)) *janitor {
	j := &janitor{
		interval: interval,
		sweep:    sweep,
		name:     name,
		done:     make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

func (j *janitor) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.interval)
			n, err := j.sweep(ctx)
			cancel()
			if err != nil {
				slog.Warn("Session cleanup failed", "store", j.name, "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("Expired sessions removed", "store", j.name, "count", n)
			}
		}
	}
}

// stop is idempotent and waits for an in-flight sweep.
func (j *janitor) stop() {
	j.once.Do(func() { close(j.done) })
	j.wg.Wait()
}
