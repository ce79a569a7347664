// Package text implements the `text!` loader plugin: the module value is the
// content of the named resource as a string.
package text

import (
	"context"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/source"

	"go.uber.org/zap"
)

const Name = "text"

// Offload runs work off the event loop, then runs the returned deliver
// function back on it.
type Offload func(work func() (deliver func()))

type Plugin struct {
	ctx     context.Context
	logger  *zap.Logger
	source  source.Source
	offload Offload
}

var _ amd.Plugin = (*Plugin)(nil)

func New(ctx context.Context, logger *zap.Logger, src source.Source, offload Offload) *Plugin {
	return &Plugin{
		ctx:     ctx,
		logger:  logger.With(zap.String("plugin", Name)),
		source:  src,
		offload: offload,
	}
}

// Load fetches req.URL. In inline mode the fetch blocks so the value is
// delivered before Load returns.
func (p *Plugin) Load(req amd.PluginRequest, onload func(value any), onerror func(err error)) {
	if req.Inline() || p.offload == nil {
		b, err := p.source.Fetch(p.ctx, req.URL)
		if err != nil {
			onerror(err)
			return
		}
		onload(string(b))
		return
	}

	p.offload(func() func() {
		b, err := p.source.Fetch(p.ctx, req.URL)
		return func() {
			if err != nil {
				p.logger.Debug("Fetch failed", zap.String("url", req.URL), zap.Error(err))
				onerror(err)
				return
			}
			onload(string(b))
		}
	})
}
