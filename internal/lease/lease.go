// Package lease implements the fencing lease (spec §3, §4.2): mutual
// exclusion over a named resource with a monotonically increasing
// fencing token and a loss-cancellation signal for downstream writers.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/ids"
)

// Lease is a live handle returned by a successful Acquire. Callers attach
// FencingToken to downstream writes and watch Lost() to stop doing so the
// moment a renewal definitively fails.
type Lease struct {
	resource     string
	owner        ids.OwnerToken
	fencingToken int64

	mu       sync.Mutex
	lost     bool
	lostCh   chan struct{}
	lostOnce sync.Once
	stopFn   context.CancelFunc
}

func newLease(resource string, owner ids.OwnerToken, fencingToken int64) *Lease {
	return &Lease{
		resource:     resource,
		owner:        owner,
		fencingToken: fencingToken,
		lostCh:       make(chan struct{}),
	}
}

// Resource is the locked resource name.
func (l *Lease) Resource() string { return l.resource }

// Owner is the owning token.
func (l *Lease) Owner() ids.OwnerToken { return l.owner }

// FencingToken returns the token observed at acquire/last successful
// renew. Monotone per resource across the cluster (I3).
func (l *Lease) FencingToken() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fencingToken
}

func (l *Lease) setFencingToken(token int64) {
	l.mu.Lock()
	l.fencingToken = token
	l.mu.Unlock()
}

// Lost returns a channel that closes the moment a renewal definitively
// fails (expired lease or lost ownership).
func (l *Lease) Lost() <-chan struct{} { return l.lostCh }

// ThrowIfLost is a guard callers issue before a fenced write downstream.
func (l *Lease) ThrowIfLost() error {
	select {
	case <-l.lostCh:
		return apperr.ErrLeaseLost
	default:
		return nil
	}
}

func (l *Lease) markLost() {
	l.lostOnce.Do(func() {
		l.mu.Lock()
		l.lost = true
		l.mu.Unlock()
		close(l.lostCh)
	})
}

func (l *Lease) isLost() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// stopAutoRenew cancels the background renewal task, if one was started.
func (l *Lease) stopAutoRenew() {
	l.mu.Lock()
	stop := l.stopFn
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// AcquireResult is returned by Factory.Acquire.
type AcquireResult struct {
	Lease      *Lease
	Acquired   bool
	ObservedAt time.Time
}
