package sandbox

import (
	"context"
	"time"
)

// Reaper periodically evicts idle sandboxes until stopped.
type Reaper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartReaper runs LazyCleanup every interval in the background.
func (m *Manager) StartReaper(ctx context.Context, interval, idleTimeout time.Duration) *Reaper {
	ctx, cancel := context.WithCancel(ctx)
	r := &Reaper{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.LazyCleanup(ctx, idleTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					m.log.Warn().Err(err).Msg("idle cleanup failed")
					continue
				}
				if n > 0 {
					m.log.Info().Int("count", n).Msg("cleaned up idle sandboxes")
				}
			}
		}
	}()
	return r
}

// Stop cancels the reaper and waits for an in-flight pass to finish.
func (r *Reaper) Stop() {
	r.cancel()
	<-r.done
}

// Done is closed once the reaper has exited.
func (r *Reaper) Done() <-chan struct{} {
	return r.done
}

// Shutdown stops the reaper, then removes every owned sandbox. The final
// cleanup runs even if ctx is already cancelled.
func (m *Manager) Shutdown(ctx context.Context, r *Reaper) int {
	if r != nil {
		r.Stop()
	}
	n, err := m.CleanupAll(context.WithoutCancel(ctx))
	if err != nil {
		m.log.Warn().Err(err).Msg("shutdown cleanup failed")
		return n
	}
	m.log.Info().Int("count", n).Msg("cleaned up sandboxes on shutdown")
	return n
}
