package amd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingLoader struct {
	mode  Mode
	loads []LoadRequest
	ticks int
}

func (l *recordingLoader) Mode() Mode {
	return l.mode
}

func (l *recordingLoader) Load(req LoadRequest) {
	l.loads = append(l.loads, req)
}

func (l *recordingLoader) NextTick(fn func()) {
	l.ticks++
	fn()
}

func newTestContext(t *testing.T, cfg Config) (*System, *Context, *recordingLoader) {
	as := require.New(t)

	loader := &recordingLoader{}
	sys, err := NewSystem(zaptest.NewLogger(t), loader)
	as.NoError(err)

	c, err := sys.NewContext(DefaultContext, cfg)
	as.NoError(err)

	return sys, c, loader
}

func TestRequireResolvesTransitiveDependencies(t *testing.T) {
	as := require.New(t)
	sys, c, loader := newTestContext(t, Config{BaseURL: "js"})

	var got []any
	c.Require([]string{"foo"}, func(values []any) {
		got = values
	}, nil)

	as.Equal([]LoadRequest{{Context: "_", ID: "foo", URL: "js/foo.js", Mode: ModeAsync}}, loader.loads)

	sys.Define("", []string{"bar"}, func(deps []any) (any, error) {
		return deps[0].(int) + 1, nil
	})
	c.CompleteLoad("foo")

	as.Len(loader.loads, 2)
	as.Equal("bar", loader.loads[1].ID)
	as.Nil(got)
	as.False(c.Defined("foo"))

	sys.Define("", nil, Value(1))
	c.CompleteLoad("bar")

	as.Equal([]any{2}, got)
	as.True(c.Defined("foo"))
	as.Equal([]string{"bar", "foo"}, c.Ready())

	v, err := c.Get("foo")
	as.NoError(err)
	as.Equal(2, v)
}

func TestRequireIssuesOneLoadPerModule(t *testing.T) {
	as := require.New(t)
	_, c, loader := newTestContext(t, Config{})

	c.Require([]string{"a", "b"}, nil, nil)
	c.Require([]string{"a"}, nil, nil)

	as.Len(loader.loads, 2)
	as.Equal(2, loader.ticks)
}

func TestGetNotLoaded(t *testing.T) {
	as := require.New(t)
	_, c, _ := newTestContext(t, Config{})

	_, err := c.Get("missing")
	as.ErrorIs(err, ErrNotLoaded)

	c.Require([]string{"pending"}, nil, nil)
	_, err = c.Get("pending")
	as.ErrorIs(err, ErrNotLoaded)
}

func TestCompleteLoadWithoutDefine(t *testing.T) {
	as := require.New(t)
	_, c, _ := newTestContext(t, Config{})

	called := false
	c.Require([]string{"legacy"}, func(values []any) {
		called = true
		as.Equal([]any{nil}, values)
	}, nil)
	c.CompleteLoad("legacy")

	as.True(called)
	as.True(c.Defined("legacy"))
}

func TestNamedDefineOutsideLoad(t *testing.T) {
	as := require.New(t)
	sys, c, loader := newTestContext(t, Config{})

	sys.Define("config", nil, Value("cfg"))
	sys.Define("", nil, Value("dropped"))

	var got []any
	c.Require([]string{"config"}, func(values []any) {
		got = values
	}, nil)

	as.Empty(loader.loads)
	as.Equal([]any{"cfg"}, got)
}

func TestRelativeDependencies(t *testing.T) {
	as := require.New(t)
	sys, c, loader := newTestContext(t, Config{})

	c.Require([]string{"app/main"}, nil, nil)
	sys.Define("", []string{"./util", "../lib/dom"}, Value("main"))
	c.CompleteLoad("app/main")

	as.Len(loader.loads, 3)
	as.Equal("app/util", loader.loads[1].ID)
	as.Equal("lib/dom", loader.loads[2].ID)
}

func TestFactoryErrorFailsRequest(t *testing.T) {
	as := require.New(t)
	sys, c, _ := newTestContext(t, Config{})

	var failure error
	c.Require([]string{"broken"}, func([]any) {
		t.Fatal("callback should not run")
	}, func(err error) {
		failure = err
	})

	sys.Define("", nil, func([]any) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	c.CompleteLoad("broken")

	as.Error(failure)
	as.Contains(failure.Error(), "boom")

	_, err := c.Get("broken")
	as.Error(err)
}

func TestBundleLoadsLayerOnce(t *testing.T) {
	as := require.New(t)
	sys, c, loader := newTestContext(t, Config{
		BaseURL: "/static/",
		Bundles: map[string][]string{
			"layer/core": {"a", "b"},
		},
	})

	var got []any
	c.Require([]string{"a", "b"}, func(values []any) {
		got = values
	}, nil)

	as.Equal([]LoadRequest{{Context: "_", ID: "layer/core", URL: "/static/layer/core.js"}}, loader.loads)

	sys.Define("a", nil, Value("A"))
	sys.Define("b", []string{"a"}, func(deps []any) (any, error) {
		return deps[0].(string) + "B", nil
	})
	c.CompleteLoad("layer/core")

	as.Equal([]any{"A", "AB"}, got)
}

func TestBundleMissingMember(t *testing.T) {
	as := require.New(t)
	sys, c, _ := newTestContext(t, Config{
		Bundles: map[string][]string{
			"layer": {"a", "b"},
		},
	})

	var failure error
	c.Require([]string{"b"}, nil, func(err error) {
		failure = err
	})

	sys.Define("a", nil, Value("A"))
	c.CompleteLoad("layer")

	as.ErrorIs(failure, ErrNotDefined)
}

func TestWithLoaderRestores(t *testing.T) {
	as := require.New(t)
	_, c, loader := newTestContext(t, Config{})

	inline := &recordingLoader{mode: ModeInline}

	err := c.WithLoader(inline, func() error {
		as.Same(inline, c.Loader())
		c.Require([]string{"x"}, nil, nil)
		return nil
	})
	as.NoError(err)
	as.Same(loader, c.Loader())
	as.Equal([]LoadRequest{{Context: "_", ID: "x", URL: "x.js", Mode: ModeInline}}, inline.loads)
	as.Empty(loader.loads)

	sentinel := errors.New("sentinel")
	err = c.WithLoader(inline, func() error {
		return sentinel
	})
	as.ErrorIs(err, sentinel)
	as.Same(loader, c.Loader())

	as.Panics(func() {
		_ = c.WithLoader(inline, func() error {
			panic("boom")
		})
	})
	as.Same(loader, c.Loader())

	as.ErrorIs(c.WithLoader(nil, func() error { return nil }), ErrNilLoader)
}

func TestPluginReceivesMode(t *testing.T) {
	as := require.New(t)
	sys, c, _ := newTestContext(t, Config{BaseURL: "tmpl"})

	var seen []PluginRequest
	sys.RegisterPlugin("text", PluginFunc(func(req PluginRequest, onload func(any), onerror func(error)) {
		seen = append(seen, req)
		onload("<p>" + req.Resource + "</p>")
	}))

	inline := &recordingLoader{mode: ModeInline}
	as.NoError(c.WithLoader(inline, func() error {
		c.Require([]string{"text!a.html"}, nil, nil)
		return nil
	}))
	c.Require([]string{"text!b.html"}, nil, nil)

	as.Len(seen, 2)
	as.True(seen[0].Inline())
	as.Equal("tmpl/a.html", seen[0].URL)
	as.False(seen[1].Inline())

	v, err := c.Get("text!a.html")
	as.NoError(err)
	as.Equal("<p>a.html</p>", v)
}

func TestDeferredPluginStaysUnresolved(t *testing.T) {
	as := require.New(t)
	sys, c, _ := newTestContext(t, Config{})

	var later func()
	sys.RegisterPlugin("slow", PluginFunc(func(req PluginRequest, onload func(any), onerror func(error)) {
		later = func() { onload(req.Resource) }
	}))

	as.NoError(c.WithLoader(&recordingLoader{mode: ModeInline}, func() error {
		c.Require([]string{"slow!thing"}, nil, nil)
		return nil
	}))
	as.False(c.Defined("slow!thing"))

	later()
	as.True(c.Defined("slow!thing"))
}

func TestPluginNotRegistered(t *testing.T) {
	as := require.New(t)
	_, c, _ := newTestContext(t, Config{})

	var failure error
	c.Require([]string{"css!site"}, nil, func(err error) {
		failure = err
	})
	as.ErrorIs(failure, ErrPluginNotFound)
}

func TestNewContextDuplicate(t *testing.T) {
	as := require.New(t)
	sys, _, _ := newTestContext(t, Config{})

	_, err := sys.NewContext(DefaultContext, Config{})
	as.ErrorIs(err, ErrContextExists)

	_, err = sys.NewContext("admin", Config{})
	as.NoError(err)
	as.Equal([]string{"_", "admin"}, sys.Contexts())

	_, ok := sys.Scope("admin")
	as.True(ok)
	_, ok = sys.Scope("missing")
	as.False(ok)
}

func TestFailLoad(t *testing.T) {
	as := require.New(t)
	_, c, _ := newTestContext(t, Config{
		Bundles: map[string][]string{"layer": {"a"}},
	})

	var failures []error
	errback := func(err error) {
		failures = append(failures, err)
	}
	c.Require([]string{"x"}, nil, errback)
	c.Require([]string{"a"}, nil, errback)

	sentinel := errors.New("unreachable")
	c.FailLoad("x", sentinel)
	c.FailLoad("layer", sentinel)

	as.Len(failures, 2)
	as.ErrorIs(failures[0], sentinel)
	as.ErrorIs(failures[1], sentinel)
}
