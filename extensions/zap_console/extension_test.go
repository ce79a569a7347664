package zap_console

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsoleLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	registry := require.NewRegistry()
	registry.RegisterNativeModule(ModuleName, RequireWithLogger(logger))

	vm := goja.New()
	registry.Enable(vm)
	Enable(vm)

	_, err := vm.RunScript("page.js", `
function greet() {
	console.log("hello %s", "page")
}
greet()
console.debug("hidden")
console.warn("careful", 1)
console.error("broken")
`)
	assert.NoError(t, err)

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "hello page", entries[0].Message)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Contains(t, entries[0].ContextMap(), "position")

		assert.Equal(t, "careful 1", entries[1].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	}
}
