package jsbind

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Require returns a [require.ModuleLoader] that initialises the module when
// loaded by a [goja.Runtime]:
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule(jsbind.ModuleName, jsbind.Require(
//	    jsbind.WithLoop(loop),
//	    jsbind.WithCreator(backend.Creator()),
//	))
//	registry.Enable(runtime)
//
// Scripts then load it with require('eventsound'). The module itself is
// the Context class, with NativeContext, Context, Error, Property and
// strerror attached, matching the classic binding.
func Require(opts ...Option) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		m, err := New(runtime, opts...)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		exports := runtime.NewObject()
		if err := m.setupExports(exports); err != nil {
			panic(runtime.NewGoError(err))
		}

		ctx := exports.Get("Context").ToObject(runtime)
		for _, name := range exports.Keys() {
			_ = ctx.Set(name, exports.Get(name))
		}
		_ = module.Set("exports", ctx)

		if m.opts.onLoad != nil {
			m.opts.onLoad(m)
		}
	}
}
