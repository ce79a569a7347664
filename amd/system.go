// Package amd is a small asynchronous module definition host: named contexts,
// a shared define queue, loader plugins and layers. Everything in it is meant
// to be driven from a single goroutine (the page event loop); none of its
// types are safe for concurrent use.
package amd

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// DefaultContext is the context used when a caller does not name one.
const DefaultContext = "_"

var (
	ErrNilLoader      = fmt.Errorf("amd: loader cannot be nil")
	ErrContextExists  = fmt.Errorf("amd: context already exists")
	ErrNotLoaded      = fmt.Errorf("amd: module has not been loaded yet")
	ErrNotDefined     = fmt.Errorf("amd: script did not define module")
	ErrPluginNotFound = fmt.Errorf("amd: loader plugin not registered")
)

// Factory produces a module value from the values of its dependencies, in
// the order the dependencies were declared.
type Factory func(deps []any) (any, error)

// Value returns a Factory that always yields v.
func Value(v any) Factory {
	return func([]any) (any, error) {
		return v, nil
	}
}

type definition struct {
	id      string
	deps    []string
	factory Factory
}

type System struct {
	logger   *zap.Logger
	loader   Loader
	contexts map[string]*Context
	plugins  map[string]Plugin
	queue    []definition
}

// NewSystem returns a module system whose contexts start out with loader
// installed.
func NewSystem(logger *zap.Logger, loader Loader) (*System, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if loader == nil {
		return nil, ErrNilLoader
	}

	return &System{
		logger:   logger,
		loader:   loader,
		contexts: make(map[string]*Context),
		plugins:  make(map[string]Plugin),
	}, nil
}

func (s *System) NewContext(name string, cfg Config) (*Context, error) {
	if _, ok := s.contexts[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrContextExists, name)
	}

	c := &Context{
		name:    name,
		system:  s,
		loader:  s.loader,
		logger:  s.logger.With(zap.String("context", name)),
		modules: make(map[string]*module),
		issued:  make(map[string]bool),
		layers:  make(map[string]string),
	}
	c.Configure(cfg)

	s.contexts[name] = c
	return c, nil
}

func (s *System) Context(name string) (*Context, bool) {
	c, ok := s.contexts[name]
	return c, ok
}

// Scope looks up a context by name for a loader strategy.
func (s *System) Scope(name string) (Scope, bool) {
	c, ok := s.contexts[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// Contexts returns the context names in sorted order.
func (s *System) Contexts() []string {
	names := make([]string, 0, len(s.contexts))
	for name := range s.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Define queues a module definition. An empty id is an anonymous define and
// takes the name of the load that completes next.
func (s *System) Define(id string, deps []string, factory Factory) {
	s.queue = append(s.queue, definition{
		id:      id,
		deps:    deps,
		factory: factory,
	})
}

func (s *System) RegisterPlugin(name string, p Plugin) {
	s.plugins[name] = p
}

func (s *System) plugin(name string) (Plugin, bool) {
	p, ok := s.plugins[name]
	return p, ok
}

func (s *System) takeQueue() []definition {
	q := s.queue
	s.queue = nil
	return q
}
