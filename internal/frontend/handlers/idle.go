package handlers

import (
	"sync"
	"sync/atomic"
	"time"
)

// IdleMonitorConfig configures StartIdleMonitor.
type IdleMonitorConfig struct {
	// LastInput holds the UnixNano time of the player's most recent line.
	LastInput *atomic.Int64
	// IdleTimeout is how long a player may be silent before the warning.
	IdleTimeout time.Duration
	// GracePeriod is the time between the warning and the disconnect.
	GracePeriod  time.Duration
	TickInterval time.Duration
	OnWarning    func()
	OnDisconnect func()
}

// StartIdleMonitor watches cfg.LastInput in a goroutine. After IdleTimeout of
// silence it calls OnWarning once; if no input arrives within GracePeriod it
// calls OnDisconnect and exits. Input after the warning re-arms it.
//
// Postcondition: the returned stop function is idempotent and, once it
// returns, no callback will run.
func StartIdleMonitor(cfg IdleMonitorConfig) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		var warnedAt time.Time
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				last := time.Unix(0, cfg.LastInput.Load())
				if !warnedAt.IsZero() && last.After(warnedAt) {
					warnedAt = time.Time{}
				}
				switch {
				case warnedAt.IsZero() && now.Sub(last) >= cfg.IdleTimeout:
					warnedAt = now
					cfg.OnWarning()
				case !warnedAt.IsZero() && now.Sub(warnedAt) >= cfg.GracePeriod:
					cfg.OnDisconnect()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
