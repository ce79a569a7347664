package inline

import (
	"fmt"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/shim"

	"github.com/dop251/goja"
)

// bind installs define, require and requirejs on the global object.
// require resolves against the default context; require.context(name)
// returns the same function bound to another configured context.
func (p *pageInstance) bind(vm *goja.Runtime) error {
	c, ok := p.system.Context(amd.DefaultContext)
	if !ok {
		return fmt.Errorf("context %q is not configured", amd.DefaultContext)
	}

	define := vm.ToValue(p.define(vm)).ToObject(vm)
	amdFlags := vm.NewObject()
	if err := amdFlags.Set("jQuery", true); err != nil {
		return err
	}
	if err := define.Set("amd", amdFlags); err != nil {
		return err
	}

	req, err := p.requireObject(vm, c)
	if err != nil {
		return err
	}
	if err := req.Set("context", p.contextLookup(vm)); err != nil {
		return err
	}

	for name, v := range map[string]goja.Value{
		"define":    define,
		"require":   req,
		"requirejs": req,
	} {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}

	return nil
}

func (p *pageInstance) requireObject(vm *goja.Runtime, c *amd.Context) (*goja.Object, error) {
	req := vm.ToValue(p.require(vm, c)).ToObject(vm)

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"config": p.configure(vm, c),
		"toUrl": func(fc goja.FunctionCall) goja.Value {
			return vm.ToValue(c.ToURL(fc.Argument(0).String()))
		},
		"defined": func(fc goja.FunctionCall) goja.Value {
			return vm.ToValue(c.Defined(fc.Argument(0).String()))
		},
	} {
		if err := req.Set(name, fn); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// contextLookup backs require.context(name).
func (p *pageInstance) contextLookup(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	bound := make(map[string]*goja.Object)

	return func(fc goja.FunctionCall) goja.Value {
		name := fc.Argument(0).String()
		if req, ok := bound[name]; ok {
			return req
		}

		c, ok := p.system.Context(name)
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("%w: %q", shim.ErrUnknownContext, name)))
		}

		req, err := p.requireObject(vm, c)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		bound[name] = req

		return req
	}
}

// define accepts define(factory), define(id, factory), define(deps, factory)
// and define(id, deps, factory). A factory that is not a function is the
// module value itself.
func (p *pageInstance) define(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		args := fc.Arguments

		var id string
		if len(args) > 1 {
			if s, ok := args[0].Export().(string); ok {
				id = s
				args = args[1:]
			}
		}

		var deps []string
		if len(args) > 1 {
			if err := vm.ExportTo(args[0], &deps); err != nil {
				panic(vm.NewTypeError("define: dependencies must be an array of module ids"))
			}
			args = args[1:]
		}

		if len(args) == 0 {
			panic(vm.NewTypeError("define: missing factory"))
		}

		p.system.Define(id, deps, jsFactory(vm, args[0]))

		return goja.Undefined()
	}
}

// require is both the synchronous require(id) returning an already resolved
// module and the asynchronous require(ids, callback, errback).
func (p *pageInstance) require(vm *goja.Runtime, c *amd.Context) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		first := fc.Argument(0)
		if id, ok := first.Export().(string); ok {
			v, err := c.Get(id)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return toValue(vm, v)
		}

		var ids []string
		if err := vm.ExportTo(first, &ids); err != nil {
			panic(vm.NewTypeError("require: expected a module id or an array of module ids"))
		}

		callback, _ := goja.AssertFunction(fc.Argument(1))
		errback, _ := goja.AssertFunction(fc.Argument(2))

		c.Require(ids, func(values []any) {
			if callback == nil {
				return
			}
			if _, err := callback(goja.Undefined(), toValues(vm, values)...); err != nil {
				p.scriptError("require callback", err)
			}
		}, func(err error) {
			if errback == nil {
				p.scriptError("require", err)
				return
			}
			if _, err := errback(goja.Undefined(), vm.NewGoError(err)); err != nil {
				p.scriptError("require errback", err)
			}
		})

		return goja.Undefined()
	}
}

// configure backs require.config. Only the options the resolver understands
// are read; anything else is ignored.
func (p *pageInstance) configure(vm *goja.Runtime, c *amd.Context) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		arg := fc.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return goja.Undefined()
		}
		obj := arg.ToObject(vm)

		var cfg amd.Config
		if v := obj.Get("baseUrl"); present(v) {
			cfg.BaseURL = v.String()
		}
		if v := obj.Get("urlArgs"); present(v) {
			cfg.URLArgs = v.String()
		}
		if v := obj.Get("paths"); present(v) {
			if err := vm.ExportTo(v, &cfg.Paths); err != nil {
				panic(vm.NewTypeError("require.config: paths must map module ids to strings"))
			}
		}
		if v := obj.Get("bundles"); present(v) {
			if err := vm.ExportTo(v, &cfg.Bundles); err != nil {
				panic(vm.NewTypeError("require.config: bundles must map layer ids to arrays of module ids"))
			}
		}

		c.Configure(cfg)

		return goja.Undefined()
	}
}

func jsFactory(vm *goja.Runtime, v goja.Value) amd.Factory {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return amd.Value(v)
	}
	return func(deps []any) (any, error) {
		ret, err := fn(goja.Undefined(), toValues(vm, deps)...)
		if err != nil {
			return nil, err
		}
		return ret, nil
	}
}

func toValue(vm *goja.Runtime, v any) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return vm.ToValue(v)
}

func toValues(vm *goja.Runtime, values []any) []goja.Value {
	args := make([]goja.Value, len(values))
	for i, v := range values {
		args[i] = toValue(vm, v)
	}
	return args
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
