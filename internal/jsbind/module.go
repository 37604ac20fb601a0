// Package jsbind exposes sound contexts to goja scripts as the "eventsound"
// module.
package jsbind

import (
	"fmt"
	"math"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/session"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// ModuleName is the name scripts require.
const ModuleName = "eventsound"

// Module binds sound contexts to one [goja.Runtime]. Scripts may only run,
// and completions are only delivered, on the configured loop.
type Module struct {
	runtime *goja.Runtime
	opts    *moduleOptions
	log     zerolog.Logger
	key     *goja.Symbol

	mu      sync.Mutex
	handles map[*handle]struct{}
	closed  bool
}

// handle is the script object's link to its session.
type handle struct {
	s        *session.Session
	released bool
}

// New creates a [Module] bound to runtime. New panics if runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("jsbind: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime: runtime,
		opts:    cfg,
		log:     cfg.log,
		key:     goja.NewSymbol("eventsound.session"),
		handles: make(map[*handle]struct{}),
	}, nil
}

// Runtime returns the runtime this module is bound to.
func (m *Module) Runtime() *goja.Runtime {
	return m.runtime
}

// SetupExports wires the module's script API onto exports.
func (m *Module) SetupExports(exports *goja.Object) error {
	return m.setupExports(exports)
}

// setupExports wires the module's script API onto the given exports object.
//
// Exports:
//   - NativeContext: callback based context
//   - Context: promise based context (also the module's default shape)
//   - Error: code table
//   - Property: property key table
//   - strerror: code to message
func (m *Module) setupExports(exports *goja.Object) error {
	r := m.runtime

	factory, err := r.RunString(prelude)
	if err != nil {
		return fmt.Errorf("jsbind: compiling prelude: %w", err)
	}
	build, ok := goja.AssertFunction(factory)
	if !ok {
		return fmt.Errorf("jsbind: prelude is not a function")
	}
	classes, err := build(goja.Undefined(), m.bindingObject())
	if err != nil {
		return fmt.Errorf("jsbind: building classes: %w", err)
	}
	obj := classes.ToObject(r)

	_ = exports.Set("NativeContext", obj.Get("NativeContext"))
	_ = exports.Set("Context", obj.Get("Context"))
	_ = exports.Set("Error", m.errorTable())
	_ = exports.Set("Property", m.propertyTable())
	_ = exports.Set("strerror", r.ToValue(func(call goja.FunctionCall) goja.Value {
		code := call.Argument(0).ToInteger()
		if code < math.MinInt32 || code > 0 {
			code = 1 // never a valid code
		}
		return r.ToValue(sounderr.Strerror(sounderr.Code(code)))
	}))
	return nil
}

// bindingObject holds the native half of NativeContext. Every function
// takes the script object as its first argument.
func (m *Module) bindingObject() *goja.Object {
	r := m.runtime
	b := r.NewObject()
	_ = b.Set("init", r.ToValue(m.jsInit))
	_ = b.Set("play", r.ToValue(m.jsPlay))
	_ = b.Set("cancel", r.ToValue(m.jsCancel))
	_ = b.Set("cache", r.ToValue(m.jsCache))
	_ = b.Set("playing", r.ToValue(m.jsPlaying))
	_ = b.Set("changeProps", r.ToValue(m.jsChangeProps))
	_ = b.Set("destroy", r.ToValue(m.jsDestroy))
	return b
}

func (m *Module) errorTable() *goja.Object {
	obj := m.runtime.NewObject()
	for _, c := range sounderr.Codes() {
		_ = obj.Set(c.String(), int(c))
	}
	return obj
}

func (m *Module) propertyTable() *goja.Object {
	obj := m.runtime.NewObject()
	for name, key := range proplist.Names {
		_ = obj.Set(name, key)
	}
	return obj
}

// Sessions returns the number of contexts not yet destroyed.
func (m *Module) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close destroys every context the module created. It must run on the loop.
// Contexts created afterwards fail to open with State.
func (m *Module) Close() {
	m.mu.Lock()
	m.closed = true
	handles := make([]*handle, 0, len(m.handles))
	for h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.destroy(h)
	}
}

func (m *Module) destroy(h *handle) {
	h.s.Destroy()
	m.mu.Lock()
	delete(m.handles, h)
	release := !h.released
	h.released = true
	m.mu.Unlock()
	if release {
		h.s.Unref()
	}
}
