package zap_console

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ModuleName = "page:console"

type Console struct {
	runtime *goja.Runtime
	util    *goja.Object
	logger  *zap.Logger
}

func (c *Console) log(level zapcore.Level) func(goja.FunctionCall, *goja.Runtime) goja.Value {
	return func(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
		format, ok := goja.AssertFunction(c.util.Get("format"))
		if !ok {
			panic(c.runtime.NewTypeError("util.format is not a function"))
		}

		ret, err := format(c.util, call.Arguments...)
		if err != nil {
			panic(err)
		}

		ce := c.logger.Check(level, ret.String())
		if ce == nil {
			return goja.Undefined()
		}

		var fields []zap.Field
		stacks := vm.CaptureCallStack(0, nil)
		if len(stacks) > 1 {
			caller := stacks[1]
			fields = append(fields,
				zap.String("position", caller.Position().String()),
				zap.String("funcName", caller.FuncName()),
				zap.String("script", caller.SrcName()),
			)
		}
		ce.Write(fields...)

		return goja.Undefined()
	}
}

// RequireWithLogger returns the console module loader for one page.
func RequireWithLogger(logger *zap.Logger) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		c := &Console{
			runtime: runtime,
			logger:  logger,
		}

		c.util = require.Require(runtime, util.ModuleName).(*goja.Object)

		o := module.Get("exports").(*goja.Object)
		o.Set("log", c.log(zapcore.InfoLevel))
		o.Set("info", c.log(zapcore.InfoLevel))
		o.Set("debug", c.log(zapcore.DebugLevel))
		o.Set("warn", c.log(zapcore.WarnLevel))
		o.Set("error", c.log(zapcore.ErrorLevel))
	}
}

func Enable(runtime *goja.Runtime) {
	runtime.Set("console", require.Require(runtime, ModuleName))
}
