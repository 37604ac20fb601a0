package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/backend"
	"github.com/llehouerou/eventsound/internal/jsbind"
	"github.com/llehouerou/eventsound/internal/runloop"
	"github.com/llehouerou/eventsound/internal/wake"
)

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	driver := fs.String("driver", "", "output driver: auto, pulse, speaker or null")
	themeName := fs.String("theme", "", "sound theme (default: config, then desktop)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return &exitError{status: 2, err: errors.New("missing script")}
	}
	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	base, err := e.baseProps()
	if err != nil {
		return err
	}

	loop, err := runloop.New(e.log)
	if err != nil {
		return err
	}
	loop.Start(context.Background())
	defer shutdownLoop(loop)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	h := newScriptHost(loop, e.log.With().Str("component", "script").Logger(), abort)
	group := wake.NewGroup()

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&scriptConsole{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}))
	registry.RegisterNativeModule(jsbind.ModuleName, jsbind.Require(
		jsbind.WithLoop(loop),
		jsbind.WithCreator(backend.Creator(e.backendOptions(*driver, *themeName)...)),
		jsbind.WithGroup(group),
		jsbind.WithLogger(e.log.With().Str("component", "jsbind").Logger()),
		jsbind.WithBaseProps(base.Map()),
		jsbind.WithOnLoad(h.track),
		jsbind.WithUncaught(h.fail),
	))

	var scriptErr error
	if err := loop.Do(ctx, func() {
		registry.Enable(h.rt)
		console.Enable(h.rt)
		h.install(fs.Args())
		_, scriptErr = h.rt.RunScript(path, string(src))
	}); err != nil {
		return err
	}
	if scriptErr != nil {
		h.teardown(group)
		return scriptErr
	}

	waitErr := h.wait(ctx, group)
	h.teardown(group)

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		var ee *exitError
		if errors.As(cause, &ee) && ee.status == 0 {
			return nil
		}
		return cause
	}
	if waitErr != nil {
		return &exitError{status: 130, err: errors.New("interrupted")}
	}
	return nil
}

// scriptHost owns the runtime and the script's pending timers. Everything
// except wait runs on the loop.
type scriptHost struct {
	loop  *runloop.Loop
	rt    *goja.Runtime
	log   zerolog.Logger
	abort context.CancelCauseFunc

	nextTimer int64
	timers    map[int64]func() bool
	changed   chan struct{}
	modules   []*jsbind.Module
}

func newScriptHost(loop *runloop.Loop, log zerolog.Logger, abort context.CancelCauseFunc) *scriptHost {
	return &scriptHost{
		loop:    loop,
		rt:      goja.New(),
		log:     log,
		abort:   abort,
		timers:  make(map[int64]func() bool),
		changed: make(chan struct{}, 1),
	}
}

func (h *scriptHost) install(argv []string) {
	_ = h.rt.Set("setTimeout", h.setTimeout)
	_ = h.rt.Set("clearTimeout", h.clearTimeout)

	process := h.rt.NewObject()
	_ = process.Set("argv", argv)
	_ = process.Set("exit", func(code int) {
		h.abort(&exitError{status: code, err: fmt.Errorf("exit %d", code)})
	})
	_ = h.rt.Set("process", process)
}

func (h *scriptHost) track(m *jsbind.Module) {
	h.modules = append(h.modules, m)
}

// fail ends the run on an exception nobody caught.
func (h *scriptHost) fail(err error) {
	h.log.Error().Err(err).Msg("uncaught exception")
	h.abort(fmt.Errorf("uncaught exception: %w", err))
}

func (h *scriptHost) notify() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *scriptHost) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.rt.NewTypeError("setTimeout requires a function as first argument"))
	}
	delay := max(time.Duration(call.Argument(1).ToInteger())*time.Millisecond, 0)
	var extra []goja.Value
	if len(call.Arguments) > 2 {
		extra = call.Arguments[2:]
	}

	h.nextTimer++
	id := h.nextTimer
	stop, err := h.loop.AfterFunc(delay, func() {
		if _, ok := h.timers[id]; !ok {
			return
		}
		delete(h.timers, id)
		if _, err := fn(goja.Undefined(), extra...); err != nil {
			h.fail(err)
		}
		h.notify()
	})
	if err != nil {
		panic(h.rt.NewGoError(err))
	}
	h.timers[id] = stop
	return h.rt.ToValue(id)
}

func (h *scriptHost) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if stop, ok := h.timers[id]; ok {
		stop()
		delete(h.timers, id)
		h.notify()
	}
	return goja.Undefined()
}

// wait blocks until the script has no pending timers and every context it
// created has been torn down.
func (h *scriptHost) wait(ctx context.Context, group *wake.Group) error {
	for {
		var timers, sessions int
		if err := h.loop.Do(ctx, func() {
			timers = len(h.timers)
			sessions = group.Len()
		}); err != nil {
			return err
		}
		switch {
		case sessions > 0:
			select {
			case <-group.Idle():
			case <-ctx.Done():
				return ctx.Err()
			}
		case timers > 0:
			select {
			case <-h.changed:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return nil
		}
	}
}

// teardown stops pending timers, destroys every context still open and
// waits for them to detach.
func (h *scriptHost) teardown(group *wake.Group) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	err := h.loop.Do(ctx, func() {
		for id, stop := range h.timers {
			stop()
			delete(h.timers, id)
		}
		for _, m := range h.modules {
			m.Close()
		}
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("tearing down script")
		return
	}
	select {
	case <-group.Idle():
	case <-ctx.Done():
		h.log.Warn().Int("contexts", group.Len()).Msg("contexts still open at exit")
	}
}

// scriptConsole prints console output the way node does: log and info to
// stdout, warn and error to stderr.
type scriptConsole struct {
	stdout io.Writer
	stderr io.Writer
}

func (c *scriptConsole) Log(s string)   { fmt.Fprintln(c.stdout, s) }
func (c *scriptConsole) Warn(s string)  { fmt.Fprintln(c.stderr, s) }
func (c *scriptConsole) Error(s string) { fmt.Fprintln(c.stderr, s) }
