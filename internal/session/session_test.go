package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/eventsound/internal/native"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/runloop"
	"github.com/llehouerou/eventsound/internal/sounderr"
	"github.com/llehouerou/eventsound/internal/wake"
)

// stepLoop holds submitted functions until the test runs them.
type stepLoop struct {
	mu    sync.Mutex
	tasks []func()
}

func (l *stepLoop) Submit(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, fn)
	return nil
}

func (l *stepLoop) run() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		fn()
	}
}

type result struct {
	id   uint32
	code sounderr.Code
}

type recorder struct {
	mu      sync.Mutex
	results []result
}

func (r *recorder) callback(id uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result{id, sounderr.CodeOf(err)})
}

func (r *recorder) get() []result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result(nil), r.results...)
}

func props(t *testing.T, kv ...string) *proplist.Proplist {
	t.Helper()
	p := proplist.New()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, p.Sets(kv[i], kv[i+1]))
	}
	return p
}

func openTestSession(t *testing.T, opts ...Option) (*Session, *native.Fake, *stepLoop, *recorder) {
	t.Helper()
	loop := &stepLoop{}
	fake := native.NewFake()
	rec := &recorder{}
	s, err := Open(loop, fake.Creator(), props(t, proplist.ApplicationName, "test"), rec.callback, opts...)
	require.NoError(t, err)
	return s, fake, loop, rec
}

func TestOpen_AppliesPropsAndOpens(t *testing.T) {
	s, fake, _, _ := openTestSession(t)

	assert.True(t, fake.Opened)
	assert.Equal(t, "test", fake.Props.Get(proplist.ApplicationName))
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 2, s.Refs())
}

func TestOpen_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *native.Fake)
		code  sounderr.Code
	}{
		{"open fails", func(f *native.Fake) { f.OpenErr = sounderr.New(sounderr.NoDriver) }, sounderr.NoDriver},
		{"props rejected", func(f *native.Fake) { f.ChangePropsErr = sounderr.New(sounderr.Invalid) }, sounderr.Invalid},
		{"plain error", func(f *native.Fake) { f.OpenErr = errors.New("boom") }, sounderr.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := native.NewFake()
			tt.setup(fake)

			s, err := Open(&stepLoop{}, fake.Creator(), props(t, "a", "b"), func(uint32, error) {})

			require.Error(t, err)
			assert.Nil(t, s)
			assert.Equal(t, tt.code, sounderr.CodeOf(err))
			assert.Equal(t, 1, fake.DestroyCount())
		})
	}
}

func TestOpen_CreateFails(t *testing.T) {
	create := func() (native.Context, error) { return nil, sounderr.New(sounderr.OOM) }

	_, err := Open(&stepLoop{}, create, nil, func(uint32, error) {})

	assert.ErrorIs(t, err, sounderr.New(sounderr.OOM))
}

func TestOpen_InvalidArguments(t *testing.T) {
	fake := native.NewFake()

	_, err := Open(&stepLoop{}, fake.Creator(), nil, nil)

	assert.ErrorIs(t, err, sounderr.ErrInvalid)
}

func TestPlay_CompletionDeliveredOnLoop(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)

	s.Play(1, props(t, proplist.EventID, "bell"))
	assert.Empty(t, rec.get())

	require.True(t, fake.Complete(1, sounderr.Success))
	assert.Empty(t, rec.get(), "callback must not run before the loop does")

	loop.run()
	assert.Equal(t, []result{{1, sounderr.Success}}, rec.get())
}

func TestPlay_NativeRejectIsAsync(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)
	fake.PlayErr = sounderr.New(sounderr.NotFound)

	s.Play(7, props(t, proplist.EventID, "missing"))
	assert.Empty(t, rec.get())

	loop.run()
	assert.Equal(t, []result{{7, sounderr.NotFound}}, rec.get())
}

func TestDispatch_FIFOAndCoalesced(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)

	for id := uint32(1); id <= 5; id++ {
		s.Play(id, nil)
	}
	for id := uint32(1); id <= 5; id++ {
		fake.Complete(id, sounderr.Success)
	}
	fake.Complete(3, sounderr.Canceled) // already completed, ignored

	loop.mu.Lock()
	queued := len(loop.tasks)
	loop.mu.Unlock()
	assert.Equal(t, 1, queued, "sends should coalesce into one wake")

	loop.run()
	assert.Equal(t, []result{
		{1, sounderr.Success},
		{2, sounderr.Success},
		{3, sounderr.Success},
		{4, sounderr.Success},
		{5, sounderr.Success},
	}, rec.get())
}

func TestDispatch_FollowsCompletionOrderNotPlayOrder(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)

	for id := uint32(1); id <= 3; id++ {
		s.Play(id, nil)
	}
	fake.Complete(3, sounderr.Success)
	fake.Complete(1, sounderr.Canceled)
	fake.Complete(2, sounderr.Success)
	loop.run()

	assert.Equal(t, []result{
		{3, sounderr.Success},
		{1, sounderr.Canceled},
		{2, sounderr.Success},
	}, rec.get())
}

func TestDispatch_ConcurrentCompletionsKeepQueueOrder(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)
	for id := uint32(1); id <= 3; id++ {
		s.Play(id, nil)
	}

	// each completion comes from its own goroutine, one after the other
	for _, id := range []uint32{2, 3, 1} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			fake.Complete(id, sounderr.Success)
		}()
		<-done
	}
	loop.run()

	assert.Equal(t, []result{
		{2, sounderr.Success},
		{3, sounderr.Success},
		{1, sounderr.Success},
	}, rec.get())
}

func TestDestroy_FromInsideCallback(t *testing.T) {
	loop := &stepLoop{}
	fake := native.NewFake()
	rec := &recorder{}
	var s *Session
	s, err := Open(loop, fake.Creator(), nil, func(id uint32, err error) {
		rec.callback(id, err)
		if id == 1 {
			s.Destroy()
		}
	})
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		s.Play(id, nil)
	}
	fake.Complete(1, sounderr.Success)
	fake.Complete(2, sounderr.Canceled)
	loop.run()

	// 3 was still in flight when the callback destroyed the session
	assert.Equal(t, []result{
		{1, sounderr.Success},
		{2, sounderr.Canceled},
		{3, sounderr.Destroyed},
	}, rec.get())
	assert.Equal(t, StateDestroyed, s.State())

	s.Play(9, nil)
	s.Cancel(42)
	loop.run()
	assert.Equal(t, result{9, sounderr.Destroyed}, rec.get()[3])
	assert.Len(t, rec.get(), 4)

	assert.Equal(t, 1, s.Refs())
	s.Unref()
	select {
	case <-s.Released():
	default:
		t.Fatal("session not released after the last Unref")
	}
}

func TestDispatch_CallbackPanicDoesNotStopDrain(t *testing.T) {
	var (
		recovered []uint32
		delivered []uint32
	)
	loop := &stepLoop{}
	fake := native.NewFake()
	s, err := Open(loop, fake.Creator(), nil, func(id uint32, _ error) {
		delivered = append(delivered, id)
		if id == 2 {
			panic("callback failure")
		}
	}, WithErrorHandler(func(id uint32, v any) {
		recovered = append(recovered, id)
		assert.Equal(t, "callback failure", v)
	}))
	require.NoError(t, err)

	for id := uint32(1); id <= 3; id++ {
		s.Play(id, nil)
		fake.Complete(id, sounderr.Success)
	}
	loop.run()

	assert.Equal(t, []uint32{1, 2, 3}, delivered)
	assert.Equal(t, []uint32{2}, recovered)
}

func TestPlay_AfterDestroySynthesizesDestroyed(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)
	s.Destroy()
	loop.run()

	s.Play(9, props(t, proplist.EventID, "bell"))
	assert.Empty(t, rec.get())
	loop.run()

	assert.Equal(t, []result{{9, sounderr.Destroyed}}, rec.get())
	assert.Empty(t, fake.Plays)
}

func TestOperationsAfterDestroy(t *testing.T) {
	s, fake, loop, _ := openTestSession(t)
	s.Destroy()
	loop.run()

	s.Cancel(1)
	playing, err := s.Playing(1)
	require.NoError(t, err)
	assert.False(t, playing)
	assert.NoError(t, s.Cache(props(t, proplist.EventID, "bell")))
	assert.NoError(t, s.ChangeProps(props(t, "a", "b")))

	assert.Empty(t, fake.Canceled)
	assert.Empty(t, fake.Cached)
}

func TestDestroy_Idempotent(t *testing.T) {
	s, fake, loop, _ := openTestSession(t)

	s.Destroy()
	s.Destroy()
	loop.run()
	s.Destroy()
	loop.run()

	assert.Equal(t, 1, fake.DestroyCount())
	assert.Equal(t, StateDestroyed, s.State())
	assert.Equal(t, 1, s.Refs())
}

func TestDestroy_TwoPhaseRelease(t *testing.T) {
	s, _, loop, _ := openTestSession(t)

	s.Destroy()
	assert.Equal(t, StateDestroying, s.State())
	assert.Equal(t, 2, s.Refs(), "signal ref held until detach completes")

	loop.run()
	assert.Equal(t, StateDestroyed, s.State())
	assert.Equal(t, 1, s.Refs())

	select {
	case <-s.Released():
		t.Fatal("released while the caller still holds a ref")
	default:
	}

	s.Unref()
	select {
	case <-s.Released():
	default:
		t.Fatal("session should be released")
	}
}

func TestDestroy_AlreadyQueuedCompletionDelivered(t *testing.T) {
	s, fake, loop, rec := openTestSession(t)

	s.Play(2, props(t, proplist.EventID, "x"))
	fake.Complete(2, sounderr.Success)
	s.Destroy()
	loop.run()

	assert.Equal(t, []result{{2, sounderr.Success}}, rec.get())
}

func TestDestroy_InFlightPlayReportsDestroyed(t *testing.T) {
	s, _, loop, rec := openTestSession(t)

	s.Play(2, props(t, proplist.EventID, "x"))
	s.Destroy()
	loop.run()

	assert.Equal(t, []result{{2, sounderr.Destroyed}}, rec.get())
}

func TestDestroy_LateCompletionDropped(t *testing.T) {
	loop := &stepLoop{}
	fake := native.NewFake()
	fake.CompleteOnDestroy = false
	rec := &recorder{}
	s, err := Open(loop, fake.Creator(), nil, rec.callback)
	require.NoError(t, err)

	s.Play(4, nil)
	s.Destroy()
	loop.run()
	fake.Complete(4, sounderr.Success)
	loop.run()

	assert.Empty(t, rec.get())
}

func TestCancel_ForwardsAndSwallowsErrors(t *testing.T) {
	s, fake, _, _ := openTestSession(t)

	s.Cancel(3)
	fake.CancelErr = sounderr.New(sounderr.NotFound)
	s.Cancel(4)

	assert.Equal(t, []uint32{3}, fake.Canceled)
}

func TestPlaying(t *testing.T) {
	s, fake, _, _ := openTestSession(t)
	s.Play(1, nil)

	playing, err := s.Playing(1)
	require.NoError(t, err)
	assert.True(t, playing)

	fake.PlayingErr = sounderr.New(sounderr.NotFound)
	_, err = s.Playing(2)
	assert.ErrorIs(t, err, sounderr.ErrNotFound)
}

func TestCache_NativeError(t *testing.T) {
	s, fake, _, _ := openTestSession(t)

	require.NoError(t, s.Cache(props(t, proplist.EventID, "bell")))
	require.Len(t, fake.Cached, 1)

	fake.CacheErr = errors.New("disk on fire")
	err := s.Cache(props(t, proplist.EventID, "bell"))
	assert.Equal(t, sounderr.Internal, sounderr.CodeOf(err))
}

func TestUnref_Underflow(t *testing.T) {
	s, _, loop, _ := openTestSession(t)
	s.Destroy()
	loop.run()
	s.Unref()

	assert.Panics(t, func() { s.Unref() })
}

func TestGroup_IdleAfterDestroy(t *testing.T) {
	g := wake.NewGroup()
	s, _, loop, _ := openTestSession(t, WithGroup(g))
	assert.Equal(t, 1, g.Len())

	s.Destroy()
	loop.run()

	select {
	case <-g.Idle():
	default:
		t.Fatal("group should be idle after destroy")
	}
}

func TestSession_ConcurrentCompletionsOnRealLoop(t *testing.T) {
	loop, err := runloop.New(zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	const n = 200
	fake := native.NewFake()
	got := make(chan uint32, n)
	s, err := Open(loop, fake.Creator(), nil, func(id uint32, err error) {
		assert.NoError(t, err)
		got <- id
	})
	require.NoError(t, err)

	for id := range uint32(n) {
		s.Play(id, nil)
	}
	var wg sync.WaitGroup
	for id := range uint32(n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fake.Complete(id, sounderr.Success)
		}()
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < n {
		select {
		case id := <-got:
			assert.False(t, seen[id], "duplicate completion %d", id)
			seen[id] = true
		case <-timeout:
			t.Fatalf("received %d of %d completions", len(seen), n)
		}
	}

	s.Destroy()
	s.Unref()
	select {
	case <-s.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("session not released")
	}
}
