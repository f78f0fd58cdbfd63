package services

import (
	"context"
	"sync"
	"time"
)

// RunPerfLogger calls sample every interval until ctx ends or stop is called.
// stop waits for the logger goroutine to exit.
func RunPerfLogger(ctx context.Context, interval time.Duration, sample func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample()
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
