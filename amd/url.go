package amd

import (
	"path"
	"strings"
)

type Config struct {
	BaseURL string
	URLArgs string
	Paths   map[string]string
	// Bundles maps a layer id to the module ids it defines.
	Bundles map[string][]string
}

// Configure merges cfg into the context configuration. Non-empty scalar
// fields replace the current ones; paths and bundles are merged by key.
func (c *Context) Configure(cfg Config) {
	if cfg.BaseURL != "" {
		c.config.BaseURL = cfg.BaseURL
		if !strings.HasSuffix(c.config.BaseURL, "/") {
			c.config.BaseURL += "/"
		}
	}
	if cfg.URLArgs != "" {
		c.config.URLArgs = cfg.URLArgs
	}

	if c.config.Paths == nil {
		c.config.Paths = make(map[string]string)
	}
	for k, v := range cfg.Paths {
		c.config.Paths[k] = v
	}

	if c.config.Bundles == nil {
		c.config.Bundles = make(map[string][]string)
	}
	for layer, members := range cfg.Bundles {
		c.config.Bundles[layer] = members
		for _, id := range members {
			c.layers[id] = layer
		}
	}
}

// NameToURL maps a module id to the script URL the loader should fetch.
func (c *Context) NameToURL(id string) string {
	if isScriptURL(id) {
		return c.withArgs(id)
	}
	return c.withArgs(c.resolve(id) + ".js")
}

// ToURL maps a resource name with its own extension, as used by plugins.
func (c *Context) ToURL(resource string) string {
	if isAbsolute(resource) {
		return c.withArgs(resource)
	}
	return c.withArgs(c.resolve(resource))
}

func (c *Context) resolve(id string) string {
	url := id

	parts := strings.Split(id, "/")
	for i := len(parts); i > 0; i-- {
		prefix := strings.Join(parts[:i], "/")
		if p, ok := c.config.Paths[prefix]; ok {
			url = p + strings.TrimPrefix(id, prefix)
			break
		}
	}

	if isAbsolute(url) {
		return url
	}
	return c.config.BaseURL + url
}

func (c *Context) withArgs(url string) string {
	if c.config.URLArgs == "" {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&" + c.config.URLArgs
	}
	return url + "?" + c.config.URLArgs
}

func isScriptURL(id string) bool {
	return strings.HasSuffix(id, ".js") || strings.Contains(id, "?") || isAbsolute(id)
}

func isAbsolute(url string) bool {
	return strings.HasPrefix(url, "/") || strings.Contains(url, ":")
}

// normalize resolves a relative id (./x, ../x) against the id of the module
// that declared it.
func normalize(id, parent string) string {
	if parent == "" || !(strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../")) {
		return id
	}
	return path.Join(path.Dir(parent), id)
}
