package inline

import (
	"fmt"

	"go.miragespace.co/inline/amd"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// asyncLoader is the loader installed in every context outside of an
// inline require. Scripts are fetched off the loop and executed on a later
// loop iteration, the way a browser handles an injected script element.
type asyncLoader struct {
	page *pageInstance
}

var _ amd.Loader = (*asyncLoader)(nil)

func (l *asyncLoader) Mode() amd.Mode {
	return amd.ModeAsync
}

func (l *asyncLoader) NextTick(fn func()) {
	p := l.page
	p.track()
	p.eventLoop.RunOnLoop(func(*goja.Runtime) {
		defer p.release()
		fn()
	})
}

func (l *asyncLoader) Load(req amd.LoadRequest) {
	p := l.page
	c, ok := p.system.Context(req.Context)
	if !ok {
		p.logger.Error("Load issued for unknown context", zap.String("context", req.Context))
		return
	}

	p.offload(func() func() {
		b, err := p.source.Fetch(p.ctx, req.URL)
		return func() {
			if err != nil {
				p.scriptError(req.URL, err)
				c.FailLoad(req.ID, fmt.Errorf("loading %q: %w", req.URL, err))
				return
			}

			if _, err := p.vm.RunScript(req.URL, string(b)); err != nil {
				p.scriptError(req.URL, err)
			}
			c.CompleteLoad(req.ID)
		}
	})
}
