// Package source fetches the resources a page refers to.
package source

import (
	"context"
	"fmt"
	"strings"
)

var (
	ErrNotFound = fmt.Errorf("source: not found")
	ErrNoRoute  = fmt.Errorf("source: no source handles url")
)

type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Matcher func(url string) bool

// Prefix matches urls starting with any of prefixes.
func Prefix(prefixes ...string) Matcher {
	return func(url string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(url, p) {
				return true
			}
		}
		return false
	}
}

// Any matches every url.
func Any(string) bool {
	return true
}

type route struct {
	matcher Matcher
	source  Source
}

// Mux hands each url to the first source whose matcher accepts it.
type Mux struct {
	routes []route
}

var _ Source = (*Mux)(nil)

func NewMux() *Mux {
	return &Mux{}
}

func (m *Mux) Handle(matcher Matcher, s Source) *Mux {
	m.routes = append(m.routes, route{
		matcher: matcher,
		source:  s,
	})
	return m
}

func (m *Mux) Fetch(ctx context.Context, url string) ([]byte, error) {
	for _, r := range m.routes {
		if r.matcher(url) {
			return r.source.Fetch(ctx, url)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRoute, url)
}
