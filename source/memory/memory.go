package memory

import (
	"context"
	"fmt"
	"strings"

	"go.miragespace.co/inline/source"

	"github.com/puzpuzpuz/xsync/v2"
)

const Scheme = "memory:"

type MemorySource struct {
	store *xsync.MapOf[string, []byte]
}

var _ source.Source = (*MemorySource)(nil)

func NewMemorySource() *MemorySource {
	return &MemorySource{
		store: xsync.NewMapOf[[]byte](),
	}
}

func (m *MemorySource) Put(url string, content string) *MemorySource {
	m.store.Store(key(url), []byte(content))
	return m
}

func (m *MemorySource) Fetch(ctx context.Context, url string) ([]byte, error) {
	v, ok := m.store.Load(key(url))
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, url)
	}
	return v, nil
}

func key(url string) string {
	url = strings.TrimPrefix(url, Scheme)
	return strings.TrimPrefix(url, "./")
}
