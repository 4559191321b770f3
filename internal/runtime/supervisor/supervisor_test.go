package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	s := NewSupervisor(t.Context(), WithCancelOnError(true))

	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "fails:")

	snap := s.Snapshot()
	require.Len(t, snap.Goroutines, 2)
	require.Equal(t, "fails", snap.Goroutines[0].Name)
	require.Equal(t, "fails: boom", snap.Goroutines[0].LastErr)
	require.Zero(t, snap.Goroutines[1].Active)
}

func TestGoPanicBecomesError(t *testing.T) {
	s := NewSupervisor(t.Context())
	s.Go("panics", func(ctx context.Context) error { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic: bad")
	require.Equal(t, uint64(1), s.Snapshot().Goroutines[0].Panics)
}

func TestGoRestartRetriesUntilCleanExit(t *testing.T) {
	s := NewSupervisor(t.Context())

	var calls atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("first")
		case 2:
			panic("second")
		default:
			return nil
		}
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.ErrorContains(t, err, "flaky: first")
	require.Equal(t, int32(3), calls.Load())

	st := s.Snapshot().Goroutines[0]
	require.Equal(t, uint64(3), st.Started)
	require.Equal(t, uint64(2), st.Restarts)
	require.Equal(t, uint64(1), st.Panics)
}

func TestGoRestartWithoutPublishKeepsErrClean(t *testing.T) {
	s := NewSupervisor(t.Context())

	var calls atomic.Int32
	s.GoRestart("quiet", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("retry")
		}
		<-ctx.Done()
		return ctx.Err()
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestWaitHonoursDeadline(t *testing.T) {
	s := NewSupervisor(context.Background())
	release := make(chan struct{})
	s.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}
