package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoop_RunsPostsInOrder(t *testing.T) {
	l := startLoop(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, l.Call(context.Background(), func() {}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_CallSurvivesPanic(t *testing.T) {
	l := startLoop(t)

	require.NoError(t, l.Call(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Run(ctx), context.Canceled)

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestLoop_ScheduleAndCancel(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{}, 1)
	l.Schedule(10*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task did not run")
	}

	cancelled := make(chan struct{}, 1)
	task := l.Schedule(50*time.Millisecond, func() { cancelled <- struct{}{} })
	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())
	select {
	case <-cancelled:
		t.Fatal("cancelled task ran")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestManual_AdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var got []string
	var at []time.Duration
	record := func(name string) func() {
		return func() {
			got = append(got, name)
			at = append(at, m.Now().Sub(start))
		}
	}
	m.Schedule(3*time.Second, record("c"))
	m.Schedule(1*time.Second, record("a"))
	m.Schedule(1*time.Second, record("b"))

	m.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, []time.Duration{time.Second, time.Second, 3 * time.Second}, at)
	assert.Equal(t, 3*time.Second, m.Now().Sub(start))
}

func TestManual_CancelAndChainedSchedules(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	ran := 0
	task := m.Schedule(time.Second, func() { ran++ })
	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())
	assert.Equal(t, 0, m.Pending())

	// a task scheduled from inside a firing task is honoured within the same Advance
	m.Schedule(time.Second, func() {
		m.Schedule(time.Second, func() { ran += 10 })
	})
	m.Advance(5 * time.Second)
	assert.Equal(t, 10, ran)
}

func TestManual_PostQueuesUntilDrained(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var got []int
	m.Post(func() {
		got = append(got, 1)
		m.Post(func() { got = append(got, 3) })
	})
	m.Post(func() { got = append(got, 2) })
	assert.Empty(t, got)

	m.RunPending()
	assert.Equal(t, []int{1, 2, 3}, got)
}
