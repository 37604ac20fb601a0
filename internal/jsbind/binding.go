package jsbind

import (
	"fmt"
	"math"

	"github.com/dop251/goja"

	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/session"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// jsInit implements the NativeContext constructor: init(self, props, callback).
func (m *Module) jsInit(call goja.FunctionCall) goja.Value {
	r := m.runtime
	self, ok := call.Argument(0).(*goja.Object)
	if !ok {
		panic(r.NewTypeError("NativeContext() must be called as a constructor"))
	}
	props := m.toProplist(call.Argument(1))
	fn, ok := goja.AssertFunction(call.Argument(2))
	if !ok {
		panic(r.NewTypeError("callback must be a function"))
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		panic(m.nativeError(sounderr.State))
	}

	if len(m.opts.baseProps) > 0 {
		base, err := proplist.FromMap(m.opts.baseProps)
		if err != nil {
			panic(m.nativeError(sounderr.CodeOf(err)))
		}
		props = base.Merge(props)
	}

	s, err := session.Open(m.opts.loop, m.opts.create, props, m.callback(fn),
		session.WithGroup(m.opts.group),
		session.WithLogger(m.log),
		session.WithErrorHandler(m.recovered),
	)
	if err != nil {
		panic(m.nativeError(sounderr.CodeOf(err)))
	}

	h := &handle{s: s}
	if err := self.DefineDataPropertySymbol(m.key, r.ToValue(h), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		m.destroy(h)
		panic(r.NewGoError(err))
	}
	m.mu.Lock()
	m.handles[h] = struct{}{}
	m.mu.Unlock()
	return goja.Undefined()
}

// callback adapts a script function to a session callback. It runs on the
// loop, where the runtime lives.
func (m *Module) callback(fn goja.Callable) session.Callback {
	return func(id uint32, err error) {
		errVal := goja.Null()
		if err != nil {
			errVal = m.nativeError(sounderr.CodeOf(err))
		}
		if _, jsErr := fn(goja.Undefined(), m.runtime.ToValue(id), errVal); jsErr != nil {
			m.opts.uncaught(jsErr)
		}
	}
}

func (m *Module) recovered(id uint32, v any) {
	err, ok := v.(error)
	if !ok {
		err = &callbackPanic{id: id, value: v}
	}
	m.opts.uncaught(err)
}

func (m *Module) jsPlay(call goja.FunctionCall) goja.Value {
	h := m.handleOf(call.Argument(0))
	id := m.toID(call.Argument(1))
	props := m.toProplist(call.Argument(2))
	h.s.Play(id, props)
	return goja.Undefined()
}

func (m *Module) jsCancel(call goja.FunctionCall) goja.Value {
	h := m.handleOf(call.Argument(0))
	h.s.Cancel(m.toID(call.Argument(1)))
	return goja.Undefined()
}

func (m *Module) jsCache(call goja.FunctionCall) goja.Value {
	h := m.handleOf(call.Argument(0))
	props := m.toProplist(call.Argument(1))
	if err := h.s.Cache(props); err != nil {
		panic(m.nativeError(sounderr.CodeOf(err)))
	}
	return goja.Undefined()
}

func (m *Module) jsPlaying(call goja.FunctionCall) goja.Value {
	h := m.handleOf(call.Argument(0))
	playing, err := h.s.Playing(m.toID(call.Argument(1)))
	if err != nil {
		panic(m.nativeError(sounderr.CodeOf(err)))
	}
	return m.runtime.ToValue(playing)
}

func (m *Module) jsChangeProps(call goja.FunctionCall) goja.Value {
	h := m.handleOf(call.Argument(0))
	props := m.toProplist(call.Argument(1))
	if err := h.s.ChangeProps(props); err != nil {
		panic(m.nativeError(sounderr.CodeOf(err)))
	}
	return goja.Undefined()
}

func (m *Module) jsDestroy(call goja.FunctionCall) goja.Value {
	m.destroy(m.handleOf(call.Argument(0)))
	return goja.Undefined()
}

func (m *Module) handleOf(v goja.Value) *handle {
	if obj, ok := v.(*goja.Object); ok {
		if v := obj.GetSymbol(m.key); v != nil {
			if h, ok := v.Export().(*handle); ok {
				return h
			}
		}
	}
	panic(m.runtime.NewTypeError("receiver is not a NativeContext"))
}

// toID converts a play id, which must be an integer in uint32 range.
func (m *Module) toID(v goja.Value) uint32 {
	if v == nil {
		panic(m.runtime.NewTypeError("id must be a number"))
	}
	switch v.Export().(type) {
	case int64, float64:
	default:
		panic(m.runtime.NewTypeError("id must be a number"))
	}
	f := v.ToFloat()
	if math.IsNaN(f) || f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		panic(m.runtime.NewTypeError("id must be an unsigned 32-bit integer"))
	}
	return uint32(f)
}

// toProplist converts a script object whose values are all strings.
func (m *Module) toProplist(v goja.Value) *proplist.Proplist {
	r := m.runtime
	obj, ok := v.(*goja.Object)
	if !ok {
		panic(r.NewTypeError("properties must be an object"))
	}
	p := proplist.New()
	for _, key := range obj.Keys() {
		val := obj.Get(key)
		s, ok := val.Export().(string)
		if !ok {
			panic(r.NewTypeError("Property value must be a string"))
		}
		if err := p.Sets(key, s); err != nil {
			panic(r.NewTypeError("invalid property name %q", key))
		}
	}
	return p
}

// nativeError builds the script error for a code: an Error whose message is
// the code's description, with the code attached.
func (m *Module) nativeError(code sounderr.Code) *goja.Object {
	r := m.runtime
	msg := r.ToValue(sounderr.Strerror(code))
	obj, err := r.New(r.GlobalObject().Get("Error"), msg)
	if err != nil {
		obj = r.NewObject()
		_ = obj.Set("message", msg)
	}
	_ = obj.Set("code", int(code))
	return obj
}

type callbackPanic struct {
	id    uint32
	value any
}

func (p *callbackPanic) Error() string {
	return fmt.Sprintf("completion callback for %d panicked: %v", p.id, p.value)
}
