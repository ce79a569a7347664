package amd

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type state int

const (
	stateLoading state = iota
	stateDefined
	stateReady
	stateFailed
)

type module struct {
	id        string
	deps      []string
	factory   Factory
	value     any
	err       error
	state     state
	requested bool
}

type request struct {
	ids      []string
	callback func(values []any)
	errback  func(err error)
}

// Context is one named, isolated module registry.
type Context struct {
	name   string
	system *System
	config Config
	loader Loader
	logger *zap.Logger

	modules map[string]*module
	order   []*module
	issued  map[string]bool   // load ids already handed to a loader
	layers  map[string]string // module id -> layer id
	pending []*request

	checking bool
	recheck  bool
}

func (c *Context) Name() string {
	return c.name
}

// Require resolves ids and their transitive dependencies, then calls
// callback with their values. The work starts on the installed loader's next
// tick, so an inline loader resolves everything before Require returns as
// long as every load and plugin in the chain completes synchronously.
func (c *Context) Require(ids []string, callback func(values []any), errback func(err error)) {
	ids = append([]string(nil), ids...)

	c.loader.NextTick(func() {
		c.takeQueue("")

		c.pending = append(c.pending, &request{
			ids:      ids,
			callback: callback,
			errback:  errback,
		})
		for _, id := range ids {
			c.request(id)
		}

		c.check()
	})
}

// CompleteLoad is called once the resource issued for id has executed. It
// names the first anonymous define queued since the last drain after id.
func (c *Context) CompleteLoad(id string) {
	found := c.takeQueue(id)

	if members, ok := c.config.Bundles[id]; ok {
		for _, member := range members {
			if m, ok := c.modules[member]; ok && m.state == stateLoading && m.requested {
				c.fail(m, fmt.Errorf("%w: layer %q, module %q", ErrNotDefined, id, member))
			}
		}
	} else if !found {
		if m, ok := c.modules[id]; ok && m.state == stateLoading {
			// plain script without define, loaded for its side effects
			c.register(id, nil, nil)
		}
	}

	c.check()
}

// FailLoad reports that the resource issued for id could not be fetched.
// Every module waiting on that load fails with err.
func (c *Context) FailLoad(id string, err error) {
	ids := []string{id}
	if members, ok := c.config.Bundles[id]; ok {
		ids = members
	}
	for _, member := range ids {
		if m, ok := c.modules[member]; ok && m.state == stateLoading {
			c.fail(m, err)
		}
	}

	c.check()
}

// Get is the synchronous form of require: it returns the value of an
// already resolved module.
func (c *Context) Get(id string) (any, error) {
	m, ok := c.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q for context %q", ErrNotLoaded, id, c.name)
	}

	switch m.state {
	case stateReady:
		return m.value, nil
	case stateFailed:
		return nil, m.err
	default:
		return nil, fmt.Errorf("%w: %q for context %q", ErrNotLoaded, id, c.name)
	}
}

func (c *Context) Defined(id string) bool {
	m, ok := c.modules[id]
	return ok && m.state == stateReady
}

// Ready returns the ids of every resolved module, sorted.
func (c *Context) Ready() []string {
	ids := make([]string, 0, len(c.order))
	for _, m := range c.order {
		if m.state == stateReady {
			ids = append(ids, m.id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Context) takeQueue(id string) (found bool) {
	anonymous := false
	for _, d := range c.system.takeQueue() {
		name := d.id
		if name == "" {
			if id == "" || anonymous {
				c.logger.Warn("Dropping anonymous define",
					zap.String("load", id),
					zap.Strings("deps", d.deps),
				)
				continue
			}
			anonymous = true
			name = id
		}
		if name == id {
			found = true
		}
		c.register(name, d.deps, d.factory)
	}
	return
}

func (c *Context) add(id string) *module {
	m := &module{id: id}
	c.modules[id] = m
	c.order = append(c.order, m)
	return m
}

func (c *Context) register(id string, deps []string, factory Factory) {
	m, ok := c.modules[id]
	if !ok {
		m = c.add(id)
	}
	if m.state != stateLoading {
		c.logger.Debug("Module already defined", zap.String("module", id))
		return
	}

	m.deps = make([]string, len(deps))
	for i, dep := range deps {
		m.deps[i] = normalize(dep, id)
	}
	m.factory = factory
	m.state = stateDefined

	if m.requested {
		for _, dep := range m.deps {
			c.request(dep)
		}
	}
}

func (c *Context) request(id string) {
	if m, ok := c.modules[id]; ok {
		if m.requested {
			return
		}
		m.requested = true
		if m.state == stateDefined {
			for _, dep := range m.deps {
				c.request(dep)
			}
		} else if m.state == stateLoading {
			c.fetch(id)
		}
		return
	}

	m := c.add(id)
	m.requested = true

	if name, resource, ok := splitPlugin(id); ok {
		c.callPlugin(m, name, resource)
		return
	}

	c.fetch(id)
}

func (c *Context) fetch(id string) {
	key := id
	if layer, ok := c.layers[id]; ok {
		key = layer
	}
	if c.issued[key] {
		return
	}
	c.issued[key] = true

	c.loader.Load(LoadRequest{
		Context: c.name,
		ID:      key,
		URL:     c.NameToURL(key),
		Mode:    c.loader.Mode(),
	})
}

func (c *Context) callPlugin(m *module, name, resource string) {
	p, ok := c.system.plugin(name)
	if !ok {
		c.fail(m, fmt.Errorf("%w: %q", ErrPluginNotFound, name))
		return
	}

	done := false
	p.Load(PluginRequest{
		Context:  c.name,
		Name:     name,
		Resource: resource,
		URL:      c.ToURL(resource),
		Mode:     c.loader.Mode(),
	}, func(value any) {
		if done {
			return
		}
		done = true
		m.value = value
		m.state = stateReady
		c.check()
	}, func(err error) {
		if done {
			return
		}
		done = true
		c.fail(m, err)
		c.check()
	})
}

func (c *Context) fail(m *module, err error) {
	m.state = stateFailed
	m.err = err
	c.logger.Warn("Module failed", zap.String("module", m.id), zap.Error(err))
}

// collect returns the values of ids once all of them are ready, or the first
// failure among them.
func (c *Context) collect(ids []string) (values []any, ready bool, err error) {
	values = make([]any, len(ids))
	ready = true
	for i, id := range ids {
		m, ok := c.modules[id]
		if !ok {
			ready = false
			continue
		}
		switch m.state {
		case stateReady:
			values[i] = m.value
		case stateFailed:
			return nil, false, fmt.Errorf("amd: dependency %q: %w", id, m.err)
		default:
			ready = false
		}
	}
	return
}

func (c *Context) check() {
	if c.checking {
		c.recheck = true
		return
	}
	c.checking = true
	defer func() {
		c.checking = false
	}()

	for {
		c.recheck = false
		progress := false

		for _, m := range c.order {
			if m.state != stateDefined || !m.requested {
				continue
			}
			values, ready, err := c.collect(m.deps)
			if err != nil {
				c.fail(m, err)
				progress = true
				continue
			}
			if ready {
				c.execute(m, values)
				progress = true
			}
		}

		pending := c.pending
		c.pending = nil
		for _, r := range pending {
			values, ready, err := c.collect(r.ids)
			switch {
			case err != nil:
				progress = true
				if r.errback != nil {
					r.errback(err)
				} else {
					c.logger.Error("Require failed", zap.Strings("ids", r.ids), zap.Error(err))
				}
			case ready:
				progress = true
				if r.callback != nil {
					r.callback(values)
				}
			default:
				c.pending = append(c.pending, r)
			}
		}

		if !progress && !c.recheck {
			return
		}
	}
}

func (c *Context) execute(m *module, values []any) {
	if m.factory == nil {
		m.state = stateReady
		return
	}

	v, err := m.factory(values)
	if err != nil {
		c.fail(m, fmt.Errorf("amd: module %q: %w", m.id, err))
		return
	}
	m.value = v
	m.state = stateReady
}
