package inline

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/document"
	"go.miragespace.co/inline/extensions/zap_console"
	"go.miragespace.co/inline/shim"
	"go.miragespace.co/inline/source"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// pageInstance owns the event loop of one page render. Every field below
// eventLoop is only touched from the loop.
type pageInstance struct {
	ctx       context.Context
	name      string
	logger    *zap.Logger
	source    source.Source
	shimSrc   string
	eventLoop *eventloop.EventLoop
	vm        *goja.Runtime

	doc    *document.Document
	system *amd.System
	shim   *shim.Shim

	inflight int
	streamed bool
	idle     chan struct{}
	errors   []string
}

func (rt *Runtime) newPage(ctx context.Context, name string, doc *document.Document) (page *pageInstance, err error) {
	logger := rt.logger.With(zap.String("page", name))

	registry := require.NewRegistry()
	registry.RegisterNativeModule(zap_console.ModuleName, zap_console.RequireWithLogger(logger))

	eventLoop := eventloop.NewEventLoop(
		eventloop.EnableConsole(false),
		eventloop.WithRegistry(registry),
	)
	eventLoop.Start()

	defer func() {
		if err != nil {
			eventLoop.StopNoWait()
		}
	}()

	page = &pageInstance{
		ctx:       ctx,
		name:      name,
		logger:    logger,
		source:    rt.source,
		shimSrc:   rt.shimSrc,
		eventLoop: eventLoop,
		doc:       doc,
		idle:      make(chan struct{}),
	}

	page.system, err = amd.NewSystem(logger, &asyncLoader{page: page})
	if err != nil {
		return
	}

	for contextName, cfg := range rt.contexts {
		if _, err = page.system.NewContext(contextName, cfg); err != nil {
			return
		}
	}

	env := PluginEnv{
		Context: ctx,
		Logger:  logger,
		Source:  rt.source,
		Offload: page.offload,
	}
	rt.plugins.Range(func(pluginName string, factory PluginFactory) bool {
		page.system.RegisterPlugin(pluginName, factory(env))
		return true
	})

	page.shim, err = shim.New(logger, page.system)
	if err != nil {
		return
	}

	err = <-page.prepare()

	return
}

func (p *pageInstance) prepare() (setup chan error) {
	setup = make(chan error, 1)

	p.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		zap_console.Enable(vm)

		if err := p.bind(vm); err != nil {
			setup <- fmt.Errorf("error binding loader globals: %w", err)
			return
		}

		p.vm = vm // reference is kept for .Interrupt

		setup <- nil
	})

	return
}

func (p *pageInstance) stop(interrupt bool) {
	if interrupt && p.vm != nil {
		p.vm.Interrupt(context.Canceled)
	}
	p.eventLoop.StopNoWait()
}

// run streams the document, then waits for outstanding asynchronous work
// for at most settle before snapshotting the result.
func (p *pageInstance) run(ctx context.Context, settle time.Duration) (*Result, error) {
	streamed := make(chan struct{})
	p.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		defer close(streamed)
		p.stream(vm)
	})

	select {
	case <-streamed:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(settle)
	defer timer.Stop()

	select {
	case <-p.idle:
	case <-timer.C:
		p.logger.Warn("Page did not settle", zap.Duration("timeout", settle))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := make(chan *Result, 1)
	p.eventLoop.RunOnLoop(func(*goja.Runtime) {
		result <- p.result()
	})

	select {
	case res := <-result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pageInstance) stream(vm *goja.Runtime) {
	index := 0
	for m := p.doc.Begin(); m != nil; m = p.doc.Next() {
		if !m.IsScript() || !isJavaScript(m) {
			continue
		}
		index++

		if err := p.execute(vm, m, index); err != nil {
			p.scriptError(scriptName(p.name, m, index), err)
		}
	}

	p.streamed = true
	p.settled()
}

func (p *pageInstance) execute(vm *goja.Runtime, m *document.Marker, index int) error {
	src := m.Src()
	switch {
	case src == "":
		_, err := vm.RunScript(scriptName(p.name, m, index), m.Body())
		return err
	case p.isShim(m):
		return p.shim.Execute(p.doc, m)
	default:
		b, err := p.source.Fetch(p.ctx, src)
		if err != nil {
			return err
		}
		_, err = vm.RunScript(src, string(b))
		return err
	}
}

// isShim reports whether m runs the shim. Only markers carrying shim
// attributes may match on the base name, so a module whose url happens to
// end like the shim is still fetched.
func (p *pageInstance) isShim(m *document.Marker) bool {
	src := stripQuery(m.Src())
	if src == p.shimSrc {
		return true
	}
	if path.Base(src) != path.Base(p.shimSrc) {
		return false
	}
	_, starts := m.LookupAttr(shim.AttrRequire)
	_, completes := m.LookupAttr(shim.AttrModule)
	return starts || completes
}

// offload runs work off the loop and delivers its continuation on the loop.
// The page does not settle while offloaded work is outstanding.
func (p *pageInstance) offload(work func() (deliver func())) {
	p.track()
	go func() {
		deliver := work()
		p.eventLoop.RunOnLoop(func(*goja.Runtime) {
			defer p.release()
			deliver()
		})
	}()
}

func (p *pageInstance) track() {
	p.inflight++
}

func (p *pageInstance) release() {
	p.inflight--
	p.settled()
}

func (p *pageInstance) settled() {
	if !p.streamed || p.inflight > 0 {
		return
	}
	select {
	case <-p.idle:
	default:
		close(p.idle)
	}
}

func (p *pageInstance) scriptError(where string, err error) {
	p.logger.Warn("Script error", zap.String("script", where), zap.Error(err))
	p.errors = append(p.errors, fmt.Sprintf("%s: %v", where, err))
}

func (p *pageInstance) result() *Result {
	res := &Result{
		HTML:    p.doc.String(),
		Defined: make(map[string][]string),
		Errors:  p.errors,
	}
	for _, name := range p.system.Contexts() {
		if c, ok := p.system.Context(name); ok {
			res.Defined[name] = c.Ready()
		}
	}
	return res
}

func isJavaScript(m *document.Marker) bool {
	switch strings.ToLower(strings.TrimSpace(m.Attr("type"))) {
	case "", "text/javascript", "application/javascript":
		return true
	default:
		return false
	}
}

func scriptName(page string, m *document.Marker, index int) string {
	if src := m.Src(); src != "" {
		return src
	}
	return fmt.Sprintf("%s#script%d", page, index)
}

func stripQuery(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		return src[:i]
	}
	return src
}
