package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/apperr"
)

type fakeCleaner struct {
	calls int
	err   error
	n     int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestService_ToleratesMissingProcedure(t *testing.T) {
	cleaner := &fakeCleaner{err: apperr.ErrMissingProcedure}
	svc := New("outbox", cleaner, time.Hour, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	svc.Start(ctx)

	require.Greater(t, cleaner.calls, 1, "loop must keep running across missing-procedure errors")
}

func TestService_StopsOnCancellation(t *testing.T) {
	cleaner := &fakeCleaner{}
	svc := New("inbox", cleaner, time.Hour, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestSweep_LogsOtherErrorsWithoutPanicking(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("connection reset")}
	svc := New("outbox", cleaner, time.Hour, time.Hour, zerolog.Nop())
	svc.sweep(context.Background())
	require.Equal(t, 1, cleaner.calls)
}
