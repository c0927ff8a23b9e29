package lease

import (
	"context"
	"sync"
	"time"
)

// renewGate serializes renewal attempts per Factory when UseGate is
// configured, so a burst of concurrently-expiring leases doesn't hammer
// the store all at once (spec §4.2's "advisory pre-gate").
type renewGate struct {
	mu sync.Mutex
}

func (g *renewGate) acquire(ctx context.Context, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(done)
	}()

	gateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-gateCtx.Done():
		// The locking goroutine may still win the mutex later; hand it
		// straight back so the next cycle can use the gate.
		go func() {
			<-done
			g.mu.Unlock()
		}()
		return false
	}
}

func (g *renewGate) release() { g.mu.Unlock() }

var factoryGates sync.Map // map[*Factory]*renewGate

func (f *Factory) gate() *renewGate {
	v, _ := factoryGates.LoadOrStore(f, &renewGate{})
	return v.(*renewGate)
}

// startAutoRenew schedules renewals at RenewPercent × duration until the
// lease is lost or disposed (spec §4.2).
func (f *Factory) startAutoRenew(l *Lease, duration time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.stopFn = cancel
	l.mu.Unlock()

	interval := time.Duration(float64(duration) * f.renewPercent)
	if interval <= 0 {
		interval = duration / 2
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if l.isLost() {
					return
				}
				f.attemptRenew(ctx, l, duration)
			}
		}
	}()
}

func (f *Factory) attemptRenew(ctx context.Context, l *Lease, duration time.Duration) {
	if f.useGate {
		timeout := time.Duration(f.gateTimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		g := f.gate()
		if !g.acquire(ctx, timeout) {
			f.log.Warn().Str("resource", l.Resource()).Msg("lease renew gate timed out, skipping this cycle")
			return
		}
		defer g.release()
	}

	if err := f.Renew(ctx, l, duration); err != nil {
		f.log.Warn().Err(err).Str("resource", l.Resource()).Msg("lease renew failed")
	}
}
