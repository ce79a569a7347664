package inline

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/config"
	"go.miragespace.co/inline/source/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testScriptApp = `
define(["jquery"], function ($) {
	return { title: "hello " + $.name }
})
`

const testScriptJQuery = `
define([], function () {
	return { name: "jq" }
})
`

const testPageInline = `<html><head>
<script src="require-inline.js"></script>
<script src="require-inline.js" data-require="app"></script>
<script>
console.log("title=" + require("app").title)
</script>
</head><body><p>page</p></body></html>`

func newTestRuntime(t *testing.T, cfg *config.Config, src *memory.MemorySource) (*Runtime, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	rt, err := NewRuntime(zap.New(core), Options{
		Config: cfg,
		Source: src,
	})
	require.NoError(t, err)

	return rt, logs
}

func TestNewRuntimeValidation(t *testing.T) {
	as := require.New(t)

	_, err := NewRuntime(nil, Options{Source: memory.NewMemorySource()})
	as.Error(err)

	_, err = NewRuntime(zap.NewNop(), Options{})
	as.Error(err)

	cfg := config.Default()
	cfg.MaxPages = 0
	_, err = NewRuntime(zap.NewNop(), Options{Config: cfg, Source: memory.NewMemorySource()})
	as.Error(err)
}

func TestRenderInlineRequire(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("app.js", testScriptApp).
		Put("jquery.js", testScriptJQuery)
	rt, logs := newTestRuntime(t, nil, src)

	res, err := rt.Render(context.Background(), "inline.html", strings.NewReader(testPageInline))
	as.NoError(err)
	as.Empty(res.Errors)

	as.Equal(1, logs.FilterMessage("title=hello jq").Len())
	as.Equal([]string{"app", "jquery"}, res.Defined[amd.DefaultContext])

	as.NotContains(res.HTML, "data-require")
	as.NotContains(res.HTML, "app.js")
	as.NotContains(res.HTML, "jquery.js")
	as.Contains(res.HTML, `<script src="require-inline.js"></script>`)
	as.Contains(res.HTML, "<p>page</p>")

	stats := rt.Stats()
	as.Equal(uint64(1), stats.Pages)
	as.Equal(uint64(0), stats.Failures)
	as.Equal(int64(0), stats.Active)
}

func TestRenderAsyncRequire(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("lazy.js", `define(function () { return "ok" })`)
	rt, logs := newTestRuntime(t, nil, src)

	page := `<script>
require(["lazy"], function (lazy) {
	console.log("lazy=" + lazy)
})
</script>`

	res, err := rt.Render(context.Background(), "async.html", strings.NewReader(page))
	as.NoError(err)
	as.Empty(res.Errors)
	as.Equal(1, logs.FilterMessage("lazy=ok").Len())
	as.Equal([]string{"lazy"}, res.Defined[amd.DefaultContext])
	as.Equal(page, res.HTML)
}

func TestRenderAsyncMissingModule(t *testing.T) {
	as := require.New(t)

	rt, logs := newTestRuntime(t, nil, memory.NewMemorySource())

	page := `<script>
require(["gone"], function () {
	console.log("unreachable")
}, function (err) {
	console.log("errback")
})
</script>`

	res, err := rt.Render(context.Background(), "missing.html", strings.NewReader(page))
	as.NoError(err)
	as.Len(res.Errors, 1)
	as.Contains(res.Errors[0], "gone.js")
	as.Equal(1, logs.FilterMessage("errback").Len())
	as.Equal(0, logs.FilterMessage("unreachable").Len())
}

func TestRenderTextPlugin(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("tmpl/hello.html", "<p>hi</p>")
	cfg := config.Default()
	cfg.Contexts = []*config.Context{{Name: amd.DefaultContext, BaseURL: "tmpl"}}
	rt, logs := newTestRuntime(t, cfg, src)

	page := `<script src="require-inline.js" data-require="text!hello.html"></script>
<script>console.log(require("text!hello.html"))</script>`

	res, err := rt.Render(context.Background(), "text.html", strings.NewReader(page))
	as.NoError(err)
	as.Empty(res.Errors)
	as.Equal(1, logs.FilterMessage("<p>hi</p>").Len())
	as.NotContains(res.HTML, "data-require")
}

func TestRenderCustomPlugin(t *testing.T) {
	as := require.New(t)

	rt, logs := newTestRuntime(t, nil, memory.NewMemorySource())
	rt.RegisterPlugin("upper", func(env PluginEnv) amd.Plugin {
		return amd.PluginFunc(func(req amd.PluginRequest, onload func(any), onerror func(error)) {
			onload(strings.ToUpper(req.Resource))
		})
	})

	page := `<script src="/static/require-inline.js?v=2" data-require="upper!abc"></script>
<script>console.log(require("upper!abc"))</script>`

	res, err := rt.Render(context.Background(), "plugin.html", strings.NewReader(page))
	as.NoError(err)
	as.Empty(res.Errors)
	as.Equal(1, logs.FilterMessage("ABC").Len())
}

func TestRenderCollectsScriptErrors(t *testing.T) {
	as := require.New(t)

	rt, _ := newTestRuntime(t, nil, memory.NewMemorySource())

	page := `<script>throw new Error("boom")</script>
<script src="missing.js"></script>
<script type="text/template"><%= ignored %></script>
<script src="require-inline.js" data-require="x" data-context="admin"></script>`

	res, err := rt.Render(context.Background(), "errors.html", strings.NewReader(page))
	as.NoError(err)
	as.Len(res.Errors, 3)
	as.Contains(res.Errors[0], "boom")
	as.Contains(res.Errors[1], "missing.js")
	as.Contains(res.Errors[2], "admin")

	as.Contains(res.HTML, "text/template")
	as.NotContains(res.HTML, "data-context")
}

func TestRenderTimeout(t *testing.T) {
	as := require.New(t)

	rt, _ := newTestRuntime(t, nil, memory.NewMemorySource())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := rt.Render(ctx, "spin.html", strings.NewReader(`<script>for (;;) {}</script>`))
	as.ErrorIs(err, context.DeadlineExceeded)
	as.Equal(uint64(1), rt.Stats().Failures)
}

func TestRenderRequireConfig(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("vendor/jquery-3.js", testScriptJQuery)
	rt, logs := newTestRuntime(t, nil, src)

	page := `<script>
require.config({ paths: { jquery: "vendor/jquery-3" } })
console.log(require.toUrl("a.txt"))
</script>
<script src="require-inline.js" data-require="jquery"></script>
<script>console.log("name=" + require("jquery").name)</script>`

	res, err := rt.Render(context.Background(), "config.html", strings.NewReader(page))
	as.NoError(err)
	as.Empty(res.Errors)
	as.Equal(1, logs.FilterMessage("name=jq").Len())
	as.Equal(1, logs.FilterMessage("a.txt").Len())
}

func TestRenderModuleNamedLikeShim(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("legacy/require-inline.js", `define(function () { return "legacy" })`)
	rt, logs := newTestRuntime(t, nil, src)

	page := `<script src="require-inline.js" data-require="legacy/require-inline"></script>
<script>console.log("v=" + require("legacy/require-inline"))</script>`

	res, err := rt.Render(context.Background(), "legacy.html", strings.NewReader(page))
	as.NoError(err)
	as.Empty(res.Errors)
	as.Equal(1, logs.FilterMessage("v=legacy").Len())
	as.Equal(0, logs.FilterMessage("v=undefined").Len())
	as.NotContains(res.HTML, "legacy/require-inline.js")
}

func TestRenderRequireContext(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource().
		Put("admin/widget.js", `define(function () { return "admin widget" })`)
	cfg := config.Default()
	cfg.Contexts = []*config.Context{{Name: "admin", BaseURL: "admin"}}
	rt, logs := newTestRuntime(t, cfg, src)

	page := `<script src="require-inline.js" data-require="widget" data-context="admin"></script>
<script>
var admin = require.context("admin")
console.log("w=" + admin("widget"))
console.log("default=" + require.defined("widget"))
</script>
<script>require.context("missing")</script>`

	res, err := rt.Render(context.Background(), "contexts.html", strings.NewReader(page))
	as.NoError(err)
	as.Equal(1, logs.FilterMessage("w=admin widget").Len())
	as.Equal(1, logs.FilterMessage("default=false").Len())
	as.Equal([]string{"widget"}, res.Defined["admin"])
	as.Empty(res.Defined[amd.DefaultContext])

	as.Len(res.Errors, 1)
	as.Contains(res.Errors[0], "missing")
}
