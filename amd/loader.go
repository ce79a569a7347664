package amd

// Mode tells a loader strategy, and any plugin invoked under it, whether the
// current load must finish before control returns to the caller.
type Mode int

const (
	ModeAsync Mode = iota
	ModeInline
)

func (m Mode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	default:
		return "async"
	}
}

// LoadRequest is handed to Loader.Load for every resource the context needs
// fetched. ID is the module (or layer) id that CompleteLoad expects back.
type LoadRequest struct {
	Context string
	ID      string
	URL     string
	Mode    Mode
}

func (r LoadRequest) Inline() bool {
	return r.Mode == ModeInline
}

// Loader is the strategy a Context uses to fetch resources and defer work.
type Loader interface {
	Mode() Mode
	Load(req LoadRequest)
	NextTick(fn func())
}

// Scope is the part of a Context that a loader strategy drives.
type Scope interface {
	Name() string
	WithLoader(l Loader, fn func() error) error
	Require(ids []string, callback func(values []any), errback func(err error))
	CompleteLoad(id string)
}

var _ Scope = (*Context)(nil)

// WithLoader installs l for the duration of fn. The previous loader is put
// back on every exit path, including a panic in fn.
func (c *Context) WithLoader(l Loader, fn func() error) error {
	if l == nil {
		return ErrNilLoader
	}

	prev := c.loader
	c.loader = l
	defer func() {
		c.loader = prev
	}()

	return fn()
}

// Loader returns the strategy currently installed.
func (c *Context) Loader() Loader {
	return c.loader
}
