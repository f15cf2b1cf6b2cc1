package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain[T any](t *testing.T, q *Queue[T]) []T {
	t.Helper()
	var out []T
	for q.Len() > 0 {
		item, err := q.Pop(context.Background())
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "block", want: PolicyBlock},
		{in: " Drop_Oldest ", want: PolicyDropOldest},
		{in: "", want: PolicyDropOldest},
		{in: "drop_newest", want: PolicyDropNewest},
		{in: "spill", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePolicy(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestQueuePreservesFIFOOrder(t *testing.T) {
	q := New[int]("fifo", 4, PolicyBlock)
	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Push(context.Background(), i))
	}
	require.Equal(t, []int{1, 2, 3, 4}, drain(t, q))
}

func TestQueueDropOldestEvictsHead(t *testing.T) {
	var drops []Drop
	q := New[int]("utterances", 2, PolicyDropOldest, WithDropHook(func(d Drop) {
		drops = append(drops, d)
	}))

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Push(context.Background(), i))
	}

	require.Equal(t, []int{4, 5}, drain(t, q))
	require.Len(t, drops, 3)
	require.Equal(t, "utterances", drops[0].Queue)
	require.Equal(t, PolicyDropOldest, drops[0].Policy)

	stats := q.Stats()
	require.Equal(t, uint64(5), stats.Pushed)
	require.Equal(t, uint64(2), stats.Popped)
	require.Equal(t, uint64(3), stats.Dropped)
	require.Equal(t, 2, stats.Capacity)
}

func TestQueueDropNewestRejectsItem(t *testing.T) {
	q := New[string]("triggers", 1, PolicyDropNewest)
	require.NoError(t, q.Push(context.Background(), "a"))
	require.ErrorIs(t, q.Push(context.Background(), "b"), ErrDropped)
	require.Equal(t, []string{"a"}, drain(t, q))
	require.Equal(t, uint64(1), q.Stats().Dropped)
}

func TestQueueBlockWaitsForSpace(t *testing.T) {
	q := New[int]("block", 1, PolicyBlock)
	require.NoError(t, q.Push(context.Background(), 1))

	done := make(chan error, 1)
	go func() {
		done <- q.Push(context.Background(), 2)
	}()

	select {
	case err := <-done:
		t.Fatalf("push returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, item)
	require.NoError(t, <-done)
	require.Equal(t, []int{2}, drain(t, q))
	require.Zero(t, q.Stats().Dropped)
}

func TestQueueBlockHonorsContext(t *testing.T) {
	q := New[int]("block", 1, PolicyBlock)
	require.NoError(t, q.Push(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Push(ctx, 2), context.DeadlineExceeded)
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	q := New[int]("close", 3, PolicyBlock)
	require.NoError(t, q.Push(context.Background(), 1))
	require.NoError(t, q.Push(context.Background(), 2))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Push(context.Background(), 3), ErrClosed)

	for _, want := range []int{1, 2} {
		got, err := q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseUnblocksWaiters(t *testing.T) {
	q := New[int]("close", 1, PolicyBlock)

	popErr := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		popErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	require.ErrorIs(t, <-popErr, ErrClosed)
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := New[int]("pop", 1, PolicyBlock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueConcurrentDropOldestNeverExceedsCapacity(t *testing.T) {
	q := New[int]("race", 8, PolicyDropOldest)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				require.NoError(t, q.Push(context.Background(), base+i))
				require.LessOrEqual(t, q.Len(), q.Cap())
			}
		}(p * 1000)
	}
	wg.Wait()

	stats := q.Stats()
	require.Equal(t, uint64(800), stats.Pushed)
	require.Equal(t, uint64(800-8), stats.Dropped)
	require.Equal(t, 8, stats.Depth)
}

func TestNewClampsCapacityAndDefaultsPolicy(t *testing.T) {
	q := New[int]("tiny", 0, "")
	require.Equal(t, 1, q.Cap())
	require.Equal(t, PolicyDropOldest, q.Policy())
	require.Equal(t, "tiny", q.Name())
}
