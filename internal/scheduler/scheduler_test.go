package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryRunsTaskRepeatedly(t *testing.T) {
	s := New()
	defer s.StopAll()

	var count int64
	s.Every("tick", 5*time.Millisecond, func(ctx context.Context, tick time.Time) {
		atomic.AddInt64(&count, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) >= 3
	}, time.Second, time.Millisecond)
}

func TestRemoveJobStopsTicking(t *testing.T) {
	s := New()
	defer s.StopAll()

	var count int64
	id := s.Every("tick", 5*time.Millisecond, func(ctx context.Context, tick time.Time) {
		atomic.AddInt64(&count, 1)
	})

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) >= 1 }, time.Second, time.Millisecond)
	require.True(t, s.RemoveJob(id))

	observed := atomic.LoadInt64(&count)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, observed, atomic.LoadInt64(&count))

	_, exists := s.GetJob(id)
	require.False(t, exists)
}

func TestRemoveJobUnknownIDReturnsFalse(t *testing.T) {
	s := New()
	require.False(t, s.RemoveJob(999))
}
