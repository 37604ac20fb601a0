package jsbind

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	gojarequire "github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/eventsound/internal/native"
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

type testEnv struct {
	loop     *stepLoop
	rt       *goja.Runtime
	fakes    []*native.Fake
	mod      *Module
	group    *wake.Group
	uncaught []error
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	e := &testEnv{loop: &stepLoop{}, rt: goja.New(), group: wake.NewGroup()}
	create := func() (native.Context, error) {
		f := native.NewFake()
		e.fakes = append(e.fakes, f)
		return f, nil
	}
	opts = append([]Option{
		WithLoop(e.loop),
		WithCreator(create),
		WithGroup(e.group),
		WithOnLoad(func(m *Module) { e.mod = m }),
		WithUncaught(func(err error) { e.uncaught = append(e.uncaught, err) }),
	}, opts...)

	registry := gojarequire.NewRegistry()
	registry.RegisterNativeModule(ModuleName, Require(opts...))
	registry.Enable(e.rt)
	e.run(t, `var es = require('eventsound');`)
	require.NotNil(t, e.mod)
	return e
}

func (e *testEnv) run(t *testing.T, code string) goja.Value {
	t.Helper()
	v, err := e.rt.RunString(code)
	require.NoError(t, err)
	return v
}

// mustThrow runs code expecting an exception and returns the thrown value.
func (e *testEnv) mustThrow(t *testing.T, code string) *goja.Object {
	t.Helper()
	_, err := e.rt.RunString(code)
	require.Error(t, err)
	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	obj, ok := ex.Value().(*goja.Object)
	require.True(t, ok, "thrown value is not an object: %v", ex.Value())
	return obj
}

func (e *testEnv) fake(t *testing.T, i int) *native.Fake {
	t.Helper()
	require.Greater(t, len(e.fakes), i)
	return e.fakes[i]
}

func isTypeError(t *testing.T, obj *goja.Object) {
	t.Helper()
	assert.Equal(t, "TypeError", obj.Get("name").String())
}

func TestExports(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, int64(-11), e.run(t, `es.Error.CANCELED`).ToInteger())
	assert.Equal(t, int64(0), e.run(t, `es.Error.SUCCESS`).ToInteger())
	assert.Equal(t, int64(-18), e.run(t, `es.Error.DISCONNECTED`).ToInteger())
	assert.Equal(t, "event.id", e.run(t, `es.Property.EVENT_ID`).String())
	assert.Equal(t, "canberra.xdg-theme.name", e.run(t, `es.Property.CANBERRA_XDG_THEME_NAME`).String())
	assert.Equal(t, "Canceled", e.run(t, `es.strerror(-11)`).String())
	assert.Equal(t, "Invalid error code", e.run(t, `es.strerror(42)`).String())
	assert.True(t, e.run(t, `es === es.Context && typeof es.NativeContext === 'function'`).ToBoolean())
}

func TestNativeContext_ArgumentErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := map[string]string{
		"without new":          `es.NativeContext({}, () => {})`,
		"missing callback":     `new es.NativeContext({})`,
		"missing props":        `new es.NativeContext()`,
		"props not an object":  `new es.NativeContext('bell', () => {})`,
		"callback not a func":  `new es.NativeContext({}, 42)`,
		"non string value":     `new es.NativeContext({'application.name': 7}, () => {})`,
		"invalid property key": `new es.NativeContext({'bad key': 'x'}, () => {})`,
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			isTypeError(t, e.mustThrow(t, code))
		})
	}
	assert.Empty(t, e.fakes)
}

func TestNativeContext_OpenAppliesProps(t *testing.T) {
	e := newTestEnv(t, WithBaseProps(map[string]string{"application.name": "base", "application.id": "org.example"}))
	e.run(t, `var ctx = new es.NativeContext({'application.name': 'test'}, () => {});`)

	f := e.fake(t, 0)
	assert.True(t, f.Opened)
	assert.Equal(t, "test", f.Props.Get("application.name"))
	assert.Equal(t, "org.example", f.Props.Get("application.id"))
	assert.Equal(t, 1, e.mod.Sessions())
	assert.Equal(t, 1, e.group.Len())
}

func TestNativeContext_OpenFailureThrowsNativeError(t *testing.T) {
	e := newTestEnv(t, WithCreator(func() (native.Context, error) {
		f := native.NewFake()
		f.OpenErr = sounderr.Op("open", sounderr.NoDriver)
		return f, nil
	}))

	obj := e.mustThrow(t, `new es.NativeContext({}, () => {})`)
	assert.Equal(t, "Error", obj.Get("name").String())
	assert.Equal(t, "No such driver", obj.Get("message").String())
	assert.Equal(t, int64(sounderr.NoDriver), obj.Get("code").ToInteger())
	assert.Equal(t, 0, e.mod.Sessions())
}

func TestNativeContext_PlayCompletes(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var results = [];
		var ctx = new es.NativeContext({'application.name': 'test'}, (id, err) => {
			results.push(err ? id + ':' + err.code + ':' + err.message : id + ':ok');
		});
		ctx.play(1, {'event.id': 'bell'});
		ctx.play(2, {'event.id': 'message'});
	`)
	f := e.fake(t, 0)
	assert.Equal(t, []uint32{1, 2}, f.Plays)

	// never synchronous
	assert.Equal(t, int64(0), e.run(t, `results.length`).ToInteger())

	require.True(t, f.Complete(2, sounderr.Canceled))
	require.True(t, f.Complete(1, sounderr.Success))
	e.loop.run()

	assert.Equal(t, "2:-11:Canceled,1:ok", e.run(t, `results.join(',')`).String())
}

func TestNativeContext_PlayArgumentErrors(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `var ctx = new es.NativeContext({}, () => {});`)

	isTypeError(t, e.mustThrow(t, `ctx.play('one', {'event.id': 'bell'})`))
	isTypeError(t, e.mustThrow(t, `ctx.play(-1, {'event.id': 'bell'})`))
	isTypeError(t, e.mustThrow(t, `ctx.play(1.5, {'event.id': 'bell'})`))
	isTypeError(t, e.mustThrow(t, `ctx.play(1)`))
	isTypeError(t, e.mustThrow(t, `es.NativeContext.prototype.play.call({}, 1, {})`))
	assert.Empty(t, e.fake(t, 0).Plays)
}

func TestNativeContext_QueriesAndErrors(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `var ctx = new es.NativeContext({}, () => {}); ctx.play(4, {'event.id': 'bell'});`)
	f := e.fake(t, 0)

	assert.True(t, e.run(t, `ctx.playing(4)`).ToBoolean())
	assert.False(t, e.run(t, `ctx.playing(5)`).ToBoolean())

	e.run(t, `ctx.cache({'event.id': 'bell'}); ctx.changeProps({'application.name': 'later'});`)
	require.Len(t, f.Cached, 1)
	assert.Equal(t, "later", f.Props.Get("application.name"))

	f.CacheErr = sounderr.Op("cache", sounderr.NotSupported)
	obj := e.mustThrow(t, `ctx.cache({'event.id': 'bell'})`)
	assert.Equal(t, int64(sounderr.NotSupported), obj.Get("code").ToInteger())

	f.PlayingErr = sounderr.Op("playing", sounderr.Invalid)
	obj = e.mustThrow(t, `ctx.playing(4)`)
	assert.Equal(t, int64(sounderr.Invalid), obj.Get("code").ToInteger())

	f.CancelErr = sounderr.Op("cancel", sounderr.Invalid)
	e.run(t, `ctx.cancel(4)`)
}

func TestNativeContext_DestroyDeliversAndRejectsLaterPlays(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var results = [];
		var ctx = new es.NativeContext({}, (id, err) => { results.push(id + ':' + (err ? err.code : 0)); });
		ctx.play(1, {'event.id': 'bell'});
		ctx.destroy();
		ctx.destroy();
		ctx.play(2, {'event.id': 'bell'});
	`)
	assert.Equal(t, 0, e.mod.Sessions())
	assert.False(t, e.run(t, `ctx.playing(1)`).ToBoolean())
	e.run(t, `ctx.cancel(1); ctx.cache({'event.id': 'bell'});`)

	e.loop.run()
	assert.Equal(t, "1:-10,2:-10", e.run(t, `results.join(',')`).String())
	assert.Equal(t, 1, e.fake(t, 0).DestroyCount())

	select {
	case <-e.group.Idle():
	default:
		t.Fatal("wake group not idle after destroy")
	}
}

func TestNativeContext_CallbackThrowDoesNotStopDelivery(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var seen = [];
		var ctx = new es.NativeContext({}, (id) => {
			seen.push(id);
			if (id === 1) throw new Error('boom');
		});
		ctx.play(1, {'event.id': 'a'});
		ctx.play(2, {'event.id': 'b'});
	`)
	f := e.fake(t, 0)
	f.Complete(1, sounderr.Success)
	f.Complete(2, sounderr.Success)
	e.loop.run()

	assert.Equal(t, "1,2", e.run(t, `seen.join(',')`).String())
	require.Len(t, e.uncaught, 1)
	assert.Contains(t, e.uncaught[0].Error(), "boom")
}

func TestContext_Promises(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var outcome = {};
		var ctx = new es.Context({'application.name': 'test'});
		ctx.play(1, {'event.id': 'bell'}).then(() => { outcome.one = 'resolved'; });
		ctx.play(2, {'event.id': 'bell'}).catch((err) => { outcome.two = err.code; });
	`)
	f := e.fake(t, 0)
	f.Complete(1, sounderr.Success)
	f.Complete(2, sounderr.Canceled)
	e.loop.run()

	assert.Equal(t, "resolved", e.run(t, `outcome.one`).String())
	assert.Equal(t, int64(-11), e.run(t, `outcome.two`).ToInteger())
	assert.Equal(t, int64(0), e.run(t, `ctx._callbacks.size`).ToInteger())
}

func TestContext_RejectedPlayKeepsPendingPromise(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var outcome = {};
		var ctx = new es.Context({});
		ctx.play(1, {'event.id': 'bell'}).then(() => { outcome.one = 'resolved'; });
	`)
	isTypeError(t, e.mustThrow(t, `ctx.play(1, {'event.id': 5})`))
	isTypeError(t, e.mustThrow(t, `ctx.play(-1, {'event.id': 'bell'})`))
	assert.Equal(t, int64(1), e.run(t, `ctx._callbacks.size`).ToInteger())

	e.fake(t, 0).Complete(1, sounderr.Success)
	e.loop.run()

	assert.Equal(t, "resolved", e.run(t, `outcome.one`).String())
	assert.Equal(t, int64(0), e.run(t, `ctx._callbacks.size`).ToInteger())
}

func TestContext_DefaultProps(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `var ctx = new es(); ctx.destroy();`)
	require.Len(t, e.fakes, 1)
	assert.Equal(t, 1, e.fake(t, 0).DestroyCount())
}

func TestModule_Close(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, `
		var codes = [];
		var a = new es.NativeContext({}, (id, err) => { codes.push(err.code); });
		var b = new es.NativeContext({}, (id, err) => { codes.push(err.code); });
		a.play(1, {'event.id': 'bell'});
		b.play(2, {'event.id': 'bell'});
	`)
	require.Equal(t, 2, e.mod.Sessions())

	e.mod.Close()
	e.loop.run()

	assert.Equal(t, 0, e.mod.Sessions())
	assert.Equal(t, "-10,-10", e.run(t, `codes.join(',')`).String())
	assert.Equal(t, 0, e.group.Len())

	obj := e.mustThrow(t, `new es.NativeContext({}, () => {})`)
	assert.Equal(t, int64(sounderr.State), obj.Get("code").ToInteger())
}

func TestModule_RequiresLoopAndCreator(t *testing.T) {
	_, err := New(goja.New(), WithCreator(native.NewFake().Creator()))
	require.Error(t, err)
	_, err = New(goja.New(), WithLoop(&stepLoop{}))
	require.Error(t, err)
	assert.Panics(t, func() { _, _ = New(nil) })
}

func TestModule_RealLoop(t *testing.T) {
	loop, err := runloop.New(zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	loop.Start(ctx)

	f := native.NewFake()
	rt := goja.New()
	registry := gojarequire.NewRegistry()
	registry.RegisterNativeModule(ModuleName, Require(WithLoop(loop), WithCreator(f.Creator())))

	done := make(chan string, 1)
	require.NoError(t, loop.Do(ctx, func() {
		registry.Enable(rt)
		_ = rt.Set("report", func(s string) { done <- s })
		_, err = rt.RunString(`
			const es = require('eventsound');
			const c = new es.Context();
			c.play(9, {'event.id': 'bell'}).then(() => report('ok'), (e) => report(e.message));
		`)
	}))
	require.NoError(t, err)

	go f.Complete(9, sounderr.Success)

	select {
	case got := <-done:
		assert.Equal(t, "ok", got)
	case <-time.After(2 * time.Second):
		t.Fatal("promise never settled")
	}
}
