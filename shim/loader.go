package shim

import (
	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/document"

	"go.uber.org/zap"
)

// inlineLoader turns every load into two markers written at the current
// document position, and runs ticks immediately.
type inlineLoader struct {
	logger  *zap.Logger
	doc     *document.Document
	src     string
	context string
}

var _ amd.Loader = (*inlineLoader)(nil)

func (l *inlineLoader) Mode() amd.Mode {
	return amd.ModeInline
}

func (l *inlineLoader) NextTick(fn func()) {
	fn()
}

func (l *inlineLoader) Load(req amd.LoadRequest) {
	fetch := document.NewScript("",
		document.Attr{Key: "type", Val: "text/javascript"},
		document.Attr{Key: "src", Val: req.URL},
	)
	callback := document.NewScript("",
		document.Attr{Key: "type", Val: "text/javascript"},
		document.Attr{Key: "src", Val: l.src},
		document.Attr{Key: AttrModule, Val: req.ID},
		document.Attr{Key: AttrModuleContext, Val: l.context},
	)

	for _, m := range []*document.Marker{fetch, callback} {
		if err := l.doc.Write(m); err != nil {
			l.logger.Warn("Unable to write load marker",
				zap.String("module", req.ID),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			return
		}
	}
}
