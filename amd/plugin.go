package amd

import "strings"

// PluginRequest describes one `name!resource` dependency. Mode carries the
// loader mode in effect when the dependency was requested: a plugin that sees
// ModeInline must call onload before returning or the module stays
// unresolved.
type PluginRequest struct {
	Context  string
	Name     string
	Resource string
	URL      string
	Mode     Mode
}

func (r PluginRequest) Inline() bool {
	return r.Mode == ModeInline
}

type Plugin interface {
	Load(req PluginRequest, onload func(value any), onerror func(err error))
}

type PluginFunc func(req PluginRequest, onload func(value any), onerror func(err error))

func (f PluginFunc) Load(req PluginRequest, onload func(value any), onerror func(err error)) {
	f(req, onload, onerror)
}

func splitPlugin(id string) (name, resource string, ok bool) {
	i := strings.IndexByte(id, '!')
	if i <= 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
