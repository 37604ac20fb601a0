package runloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_SubmitRunsInOrder(t *testing.T) {
	l := newTestLoop(t)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 5 {
		require.NoError(t, l.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Do(ctx, func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_ShutdownStopsLoop(t *testing.T) {
	l, err := New(zerolog.Nop())
	require.NoError(t, err)
	l.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))

	select {
	case <-l.Done():
	case <-ctx.Done():
		t.Fatal("loop did not stop")
	}
	assert.NoError(t, l.Err())
	assert.ErrorIs(t, l.Submit(func() {}), ErrTerminated)
}

func TestLoop_AfterFunc(t *testing.T) {
	l := newTestLoop(t)

	fired := make(chan struct{})
	stopFired, err := l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	require.NoError(t, err)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	assert.Eventually(t, func() bool { return !stopFired() }, time.Second, 5*time.Millisecond)

	stop, err := l.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	require.NoError(t, err)
	assert.True(t, stop())
	assert.False(t, stop())
}

func TestLoop_AfterFuncOrder(t *testing.T) {
	l := newTestLoop(t)

	var got []int
	done := make(chan struct{})
	require.NoError(t, l.Do(context.Background(), func() {
		_, err := l.AfterFunc(20*time.Millisecond, func() {
			got = append(got, 2)
			close(done)
		})
		assert.NoError(t, err)
		// cancelling from the loop goroutine must not block
		stop, err := l.AfterFunc(5*time.Millisecond, func() { got = append(got, -1) })
		assert.NoError(t, err)
		assert.True(t, stop())
		_, err = l.AfterFunc(0, func() { got = append(got, 1) })
		assert.NoError(t, err)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timers never fired")
	}
	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() { snapshot = append(snapshot, got...) }))
	assert.Equal(t, []int{1, 2}, snapshot)
}

func TestLoop_AfterFuncAfterClose(t *testing.T) {
	l, err := New(zerolog.Nop())
	require.NoError(t, err)
	l.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	<-l.Done()

	_, err = l.AfterFunc(time.Millisecond, func() {})
	assert.Error(t, err)
}
