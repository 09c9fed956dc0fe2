package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/perfguard/internal/logging"
)

func newLoop() *Loop {
	return New(logging.NewNopLogger())
}

func TestPostRunsInOrder(t *testing.T) {
	loop := newLoop()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() { got = append(got, i) })
	}
	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestIdleRunsAfterQueueDrains(t *testing.T) {
	loop := newLoop()
	var order []string
	var timedOut bool

	loop.RequestIdle(func(didTimeout bool) {
		order = append(order, "idle")
		timedOut = didTimeout
	}, time.Second)
	loop.Post(func() { order = append(order, "a") })
	loop.Post(func() {
		order = append(order, "b")
		loop.Post(func() { order = append(order, "c") })
	})

	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.Equal(t, []string{"a", "b", "c", "idle"}, order)
	assert.False(t, timedOut)
}

func TestIdleTimeoutWhileBusy(t *testing.T) {
	loop := newLoop()
	calls := 0
	var timedOut bool

	loop.RequestIdle(func(didTimeout bool) {
		calls++
		timedOut = didTimeout
	}, 10*time.Millisecond)

	// Keep the queue non-empty for well past the idle timeout.
	remaining := 12
	var busy Task
	busy = func() {
		if remaining == 0 {
			return
		}
		remaining--
		loop.Post(busy)
		time.Sleep(5 * time.Millisecond)
	}
	loop.Post(busy)

	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.Equal(t, 1, calls)
	assert.True(t, timedOut)
}

func TestIdleCancel(t *testing.T) {
	loop := newLoop()
	ran := false
	cancel := loop.RequestIdle(func(bool) { ran = true }, time.Hour)
	cancel()
	cancel()

	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.False(t, ran)
}

func TestAfterFunc(t *testing.T) {
	loop := newLoop()
	fired := make([]string, 0, 1)

	loop.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "kept") })
	cancel := loop.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "cancelled") })
	cancel()

	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.Equal(t, []string{"kept"}, fired)
}

func TestPanicDoesNotStopLoop(t *testing.T) {
	loop := newLoop()
	ran := false
	loop.Post(func() { panic("observer exploded") })
	loop.Post(func() { ran = true })

	require.NoError(t, loop.RunUntilIdle(context.Background()))
	assert.True(t, ran)
}

func TestCallWithRunningLoop(t *testing.T) {
	loop := newLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	value := 0
	require.NoError(t, loop.Call(ctx, func() { value = 42 }))
	assert.Equal(t, 42, value)

	// Call returned, so Run owns the loop.
	assert.ErrorIs(t, loop.Run(ctx), ErrRunning)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestClosedLoopRejectsWork(t *testing.T) {
	loop := newLoop()
	loop.RequestIdle(func(bool) {}, time.Hour)
	loop.Close()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Call(context.Background(), func() {}), ErrClosed)
	require.NoError(t, loop.RunUntilIdle(context.Background()))
}
