// Package shim makes a module context resolve a set of dependencies at the
// exact position of a script marker in a streamed document.
//
// A page embeds the shim with
//
//	<script src="require-inline.js" data-require="jquery,app/main" data-context="_"></script>
//
// and any script after it can rely on jquery, app/main and all of their
// dependencies being defined. For every resource the context needs while the
// shim runs, two markers are written after the executing one: a script that
// fetches the resource, then the shim again carrying data-requiremodule and
// data-requirecontext so it can report the load as complete once the
// resource has executed. Both are removed once that second marker has run.
//
// Resolution only succeeds while the document is still streaming, and only
// if every loader plugin involved calls back before returning. Otherwise the
// dependency is left undefined and nothing is reported.
package shim

import (
	"fmt"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/document"

	"go.uber.org/zap"
)

const (
	AttrRequire       = "data-require"
	AttrContext       = "data-context"
	AttrModule        = "data-requiremodule"
	AttrModuleContext = "data-requirecontext"

	DefaultSrc = "require-inline.js"
)

var ErrUnknownContext = fmt.Errorf("shim: unknown module context")

// Resolver looks up module contexts by name.
type Resolver interface {
	Scope(name string) (amd.Scope, bool)
}

type Shim struct {
	logger   *zap.Logger
	resolver Resolver
}

func New(logger *zap.Logger, resolver Resolver) (*Shim, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	return &Shim{
		logger:   logger.With(zap.String("component", "shim")),
		resolver: resolver,
	}, nil
}

// Execute runs the shim for marker, which must be the marker doc is
// currently executing. A marker with data-require starts a load; one with
// data-requiremodule and data-requirecontext completes a load started by an
// earlier marker. A marker with neither is left alone.
func (s *Shim) Execute(doc *document.Document, marker *document.Marker) error {
	if list := marker.Attr(AttrRequire); list != "" {
		name := marker.Attr(AttrContext)
		if name == "" {
			name = amd.DefaultContext
		}
		return s.require(doc, marker, name, ParseDeps(list))
	}

	id := marker.Attr(AttrModule)
	name := marker.Attr(AttrModuleContext)
	if id != "" && name != "" {
		return s.complete(doc, marker, name, id)
	}

	return nil
}

func (s *Shim) require(doc *document.Document, marker *document.Marker, name string, deps []string) error {
	defer doc.Remove(marker)

	scope, ok := s.resolver.Scope(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}

	s.logger.Debug("Inline require",
		zap.String("context", name),
		zap.Strings("deps", deps),
	)

	return scope.WithLoader(s.loader(doc, marker, name), func() error {
		scope.Require(deps, nil, nil)
		return nil
	})
}

func (s *Shim) complete(doc *document.Document, marker *document.Marker, name, id string) error {
	defer func() {
		if prev := marker.Prev(); prev != nil {
			doc.Remove(prev)
		}
		doc.Remove(marker)
	}()

	scope, ok := s.resolver.Scope(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}

	s.logger.Debug("Inline load complete",
		zap.String("context", name),
		zap.String("module", id),
	)

	// completing a module may request its own dependencies: keep those inline too
	return scope.WithLoader(s.loader(doc, marker, name), func() error {
		scope.CompleteLoad(id)
		return nil
	})
}

func (s *Shim) loader(doc *document.Document, marker *document.Marker, name string) *inlineLoader {
	src := marker.Src()
	if src == "" {
		src = DefaultSrc
	}
	return &inlineLoader{
		logger:  s.logger,
		doc:     doc,
		src:     src,
		context: name,
	}
}
